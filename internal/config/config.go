package config

import (
	"os"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"

	"github.com/totegamma/attestlend"
)

type Config struct {
	NodeInfo NodeInfo `yaml:"nodeInfo"`
	Server   Server   `yaml:"server"`
}

type NodeInfo struct {
	FQDN                 string   `yaml:"fqdn"`
	PrivateKey           string   `yaml:"privatekey"`
	Admin                string   `yaml:"admin"`
	EscrowAddress        string   `yaml:"escrowAddress"`
	LendingToken         string   `yaml:"lendingToken"`
	EpochDurationSeconds int64    `yaml:"epochDurationSeconds"`
	AllowedProviders     []string `yaml:"allowedProviders"`
	CreditScoreField     string   `yaml:"creditScoreField"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	Storage       string `yaml:"storage"` // postgres, leveldb
	PostgresDsn   string `yaml:"postgresDsn"`
	LevelDBPath   string `yaml:"leveldbPath"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`
}

const (
	StoragePostgres = "postgres"
	StorageLevelDB  = "leveldb"
)

func Load(path string) (Config, error) {

	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse %s", path)
	}

	if err := config.complete(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// complete fills defaults and rejects configurations the node cannot run with.
func (c *Config) complete() error {
	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if c.Server.Storage == "" {
		c.Server.Storage = StorageLevelDB
	}
	if c.Server.LevelDBPath == "" {
		c.Server.LevelDBPath = "./data"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.NodeInfo.CreditScoreField == "" {
		c.NodeInfo.CreditScoreField = "CreditScore"
	}

	switch c.Server.Storage {
	case StoragePostgres:
		if c.Server.PostgresDsn == "" {
			return errors.New("server.postgresDsn is required for postgres storage")
		}
	case StorageLevelDB:
	default:
		return errors.Errorf("unknown storage %q", c.Server.Storage)
	}

	if c.NodeInfo.FQDN == "" {
		return errors.New("nodeInfo.fqdn is required")
	}
	if !attestlend.IsAddress(c.NodeInfo.Admin) {
		return errors.Errorf("nodeInfo.admin %q is not an address", c.NodeInfo.Admin)
	}

	if c.NodeInfo.EscrowAddress == "" && c.NodeInfo.PrivateKey != "" {
		escrow, err := attestlend.PrivKeyToAddr(c.NodeInfo.PrivateKey)
		if err != nil {
			return errors.Wrap(err, "nodeInfo.privatekey")
		}
		c.NodeInfo.EscrowAddress = attestlend.AddressString(escrow)
	}
	if !attestlend.IsAddress(c.NodeInfo.EscrowAddress) {
		return errors.New("nodeInfo.escrowAddress or nodeInfo.privatekey is required")
	}
	if c.NodeInfo.LendingToken != "" && !attestlend.IsAddress(c.NodeInfo.LendingToken) {
		return errors.Errorf("nodeInfo.lendingToken %q is not an address", c.NodeInfo.LendingToken)
	}
	if c.NodeInfo.EpochDurationSeconds < 0 {
		return errors.New("nodeInfo.epochDurationSeconds must not be negative")
	}
	return nil
}

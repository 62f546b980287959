package domain

type Config struct {
	FQDN          string `yaml:"fqdn"`
	Admin         string `yaml:"admin"`
	EscrowAddress string `yaml:"escrowAddress"`
	LendingToken  string `yaml:"lendingToken"`
}

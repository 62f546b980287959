package main

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend/internal/config"
	"github.com/totegamma/attestlend/internal/infra/database"
	"github.com/totegamma/attestlend/internal/infra/kvstore"
	"github.com/totegamma/attestlend/internal/infra/repository"
	"github.com/totegamma/attestlend/internal/usecase"
)

type storage struct {
	tx       usecase.Transactor
	epochs   usecase.EpochRepository
	loans    usecase.LoanRepository
	users    usecase.UserRepository
	settings usecase.SettingsRepository
	balances usecase.BalanceRepository
	events   usecase.EventIndex
	close    func() error
}

func openStorage(conf config.Config, log *zap.Logger) (*storage, error) {
	switch conf.Server.Storage {
	case config.StoragePostgres:
		db, err := database.NewPostgres(conf.Server.PostgresDsn, log)
		if err != nil {
			return nil, errors.Wrap(err, "connect postgres")
		}
		if err := database.MigratePostgres(db); err != nil {
			return nil, errors.Wrap(err, "migrate postgres")
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		return &storage{
			tx:       repository.NewTransactor(db),
			epochs:   repository.NewEpochRepository(db),
			loans:    repository.NewLoanRepository(db),
			users:    repository.NewUserRepository(db),
			settings: repository.NewSettingsRepository(db),
			balances: repository.NewBalanceRepository(db),
			events:   repository.NewEventRepository(db),
			close:    sqlDB.Close,
		}, nil

	case config.StorageLevelDB:
		db, err := kvstore.Open(conf.Server.LevelDBPath)
		if err != nil {
			return nil, errors.Wrapf(err, "open leveldb at %s", conf.Server.LevelDBPath)
		}
		return &storage{
			tx:       db,
			epochs:   kvstore.NewEpochRepository(db),
			loans:    kvstore.NewLoanRepository(db),
			users:    kvstore.NewUserRepository(db),
			settings: kvstore.NewSettingsRepository(db),
			balances: kvstore.NewBalanceRepository(db),
			events:   kvstore.NewEventRepository(db),
			close:    db.Close,
		}, nil

	default:
		return nil, errors.Errorf("unknown storage %q", conf.Server.Storage)
	}
}

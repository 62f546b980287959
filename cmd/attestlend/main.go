package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"

	"github.com/totegamma/attestlend"
	"github.com/totegamma/attestlend/internal/config"
	"github.com/totegamma/attestlend/internal/domain"
	"github.com/totegamma/attestlend/internal/infra/cache"
	"github.com/totegamma/attestlend/internal/infra/database"
	"github.com/totegamma/attestlend/internal/logger"
	"github.com/totegamma/attestlend/internal/present/rest"
	authmw "github.com/totegamma/attestlend/internal/present/rest/middleware"
	"github.com/totegamma/attestlend/internal/service"
	"github.com/totegamma/attestlend/internal/usecase"
)

const serviceName = "attestlend"

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "attestlend",
		Short:        "Attestation gated lending node",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/attestlend/config.yaml", "path to the node configuration")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the REST node",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return serve(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the postgres schema",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return migrate(configPath)
			},
		},
	)
	return cmd
}

func migrate(configPath string) error {
	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(conf.Server.LogLevel, conf.Server.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	if conf.Server.Storage != config.StoragePostgres {
		log.Info("nothing to migrate", zap.String("storage", conf.Server.Storage))
		return nil
	}
	db, err := database.NewPostgres(conf.Server.PostgresDsn, log)
	if err != nil {
		return err
	}
	return database.MigratePostgres(db)
}

func serve(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(conf.Server.LogLevel, conf.Server.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	if conf.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint, serviceName)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	store, err := openStorage(conf, log)
	if err != nil {
		return err
	}
	defer store.close()

	publishers := usecase.MultiPublisher{store.events}
	var signalService *service.SignalService
	if conf.Server.RedisAddr != "" {
		rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
		defer rdb.Close()
		if err := database.PingRedis(ctx, rdb); err != nil {
			return err
		}
		signalService = service.NewSignalService(rdb, log.Named("signal"))
		publishers = append(publishers, signalService)
	}

	var remote cache.Remote
	if conf.Server.MemcachedAddr != "" {
		remote = database.NewMemcached(conf.Server.MemcachedAddr)
	}
	committees := cache.NewCommitteeCache(remote, log.Named("cache"))

	ledgerConfig := usecase.LedgerConfig{
		Escrow:           common.HexToAddress(conf.NodeInfo.EscrowAddress),
		CreditScoreField: conf.NodeInfo.CreditScoreField,
	}
	if conf.NodeInfo.LendingToken != "" {
		ledgerConfig.LendingToken = common.HexToAddress(conf.NodeInfo.LendingToken)
	}

	seq := usecase.NewSequencer(store.tx, store.settings, publishers, usecase.SystemClock{}, log.Named("sequencer"))
	epochs := usecase.NewEpochUsecase(store.epochs, time.Duration(conf.NodeInfo.EpochDurationSeconds)*time.Second)
	verifier := usecase.NewVerifierUsecase(epochs, committees, nil)
	ledger := usecase.NewLedgerUsecase(
		seq,
		store.loans,
		store.users,
		store.settings,
		usecase.NewTokenBook(store.balances),
		epochs,
		verifier,
		ledgerConfig,
		log.Named("ledger"),
	)
	tokens := usecase.NewTokenUsecase(seq, store.balances)

	admin, err := attestlend.ParseAddress(conf.NodeInfo.Admin)
	if err != nil {
		return err
	}
	if err := ledger.Initialize(ctx, admin, conf.NodeInfo.AllowedProviders); err != nil {
		return err
	}

	nodeConfig := domain.Config{
		FQDN:          conf.NodeInfo.FQDN,
		Admin:         conf.NodeInfo.Admin,
		EscrowAddress: conf.NodeInfo.EscrowAddress,
		LendingToken:  conf.NodeInfo.LendingToken,
	}
	auth := authmw.NewAuthMiddleware(service.NewAuthService(nodeConfig))
	handler := rest.NewHandler(nodeConfig, ledger, tokens, store.events, signalService, log.Named("rest"))

	e := echo.New()
	e.HideBanner = true
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware(serviceName))
	}
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(auth.IdentifyIdentity)
	handler.RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", conf.Server.Listen), zap.String("storage", conf.Server.Storage))
		errCh <- e.Start(conf.Server.Listen)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down")
	return e.Shutdown(shutdownCtx)
}

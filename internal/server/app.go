// Package server wires the realtime store server: configuration, logging,
// the PostgreSQL-backed store, attachment offload and the gRPC endpoint.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/hawachat/internal/logging"
	"github.com/dmitrijs2005/hawachat/internal/server/blob"
	"github.com/dmitrijs2005/hawachat/internal/server/config"
	"github.com/dmitrijs2005/hawachat/internal/store"
	"github.com/dmitrijs2005/hawachat/internal/store/sqlstore"

	gs "github.com/dmitrijs2005/hawachat/internal/server/grpc"
)

var openStore = func(ctx context.Context, dsn string, log logging.Logger) (store.Store, error) {
	return sqlstore.Open(ctx, sqlstore.DialectPostgres, dsn, log)
}

type App struct {
	config *config.Config
	logger logging.Logger
	store  store.Store
	blobs  *blob.Offloader
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, logging.ParseLevel(c.LogLevel))

	st, err := openStore(ctx, c.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	var blobs *blob.Offloader
	if c.OffloadEnabled() {
		blobs = blob.New(blob.Config{
			Region:          c.S3Region,
			Endpoint:        c.S3BaseEndpoint,
			AccessKey:       c.S3RootUser,
			SecretKey:       c.S3RootPassword,
			Bucket:          c.S3Bucket,
			Threshold:       c.OffloadThreshold,
			PresignValidity: c.PresignValidity,
		}, logger)
	}

	return &App{config: c, logger: logger, store: st, blobs: blobs}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.store, app.blobs,
		app.config.SecretKey, app.config.AccessTokenValidityDuration)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// closes the store.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "offload", app.blobs.Enabled())

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "store close failed", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}

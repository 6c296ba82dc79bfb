// Package bootstrap initializes the infrastructure the bot runs on.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/vcfbot/core/blobstore"
	coreconfig "github.com/m3rciful/vcfbot/core/config"
	coredatabase "github.com/m3rciful/vcfbot/core/database"
	"github.com/m3rciful/vcfbot/core/logger"
)

// Options control the bootstrap pipeline. Nil hooks select the defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(coreconfig.DatabaseConfig) error
	OpenBlobs  func(ctx context.Context, cfg coreconfig.StorageConfig, rcfg coreconfig.RedisConfig) (blobstore.Store, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil when the task journal is disabled.
	DB    *sqlx.DB
	Blobs blobstore.Store
}

// Close releases everything Run opened.
func (r *Result) Close() error {
	var errs []error
	if r.Blobs != nil {
		errs = append(errs, r.Blobs.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger, opens the blob store and, when enabled,
// connects to the database and applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	openBlobs := opts.OpenBlobs
	if openBlobs == nil {
		openBlobs = blobstore.Open
	}
	blobs, err := openBlobs(ctx, cfg.Storage, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: blob store initialization failed: %w", err)
	}
	res := &Result{Blobs: blobs}

	if !cfg.Database.Enabled {
		return res, nil
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(cfg.Database)
	if err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	res.DB = db

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(cfg.Database); err != nil {
		_ = res.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	return res, nil
}

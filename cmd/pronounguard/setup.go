package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/hpungsan/pronounguard/internal/config"
	"github.com/hpungsan/pronounguard/internal/db"
	"github.com/hpungsan/pronounguard/internal/dedupe"
	"github.com/hpungsan/pronounguard/internal/directory"
	"github.com/hpungsan/pronounguard/internal/engine"
	"github.com/hpungsan/pronounguard/internal/logging"
	"github.com/hpungsan/pronounguard/internal/mcp"
	"github.com/hpungsan/pronounguard/internal/pronoun"
)

// deps is everything a command needs, built once per process.
type deps struct {
	cfg    *config.Config
	db     *sql.DB
	engine *engine.Engine
	log    *zap.Logger

	// globalDir holds the database, global config and exports dir.
	globalDir string
	stopSweep func()
}

// newDeps loads config from globalDir and the repo config above startDir,
// opens the local directory database in globalDir, and wires the engine.
func newDeps(globalDir, startDir string) (*deps, error) {
	cfg, err := config.LoadWithRepo(globalDir, startDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	database, err := db.Init(globalDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	eng, stop, err := buildEngine(cfg, database, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", zap.Strings("tools", unknown))
	}

	return &deps{
		cfg:       cfg,
		db:        database,
		engine:    eng,
		log:       logger,
		globalDir: globalDir,
		stopSweep: stop,
	}, nil
}

// buildEngine registers every directory source and starts the tracker's
// background sweep. The returned func stops the sweep.
func buildEngine(cfg *config.Config, database *sql.DB, logger *zap.Logger) (*engine.Engine, func(), error) {
	table, err := pronoun.LoadTable(cfg.PronounSetsFile)
	if err != nil {
		return nil, nil, err
	}

	client := &http.Client{}
	sources := []directory.Source{
		directory.NewStaticSource(cfg.Overrides),
		directory.NewLocalSource(database),
		directory.NewPronounDBSource(client),
	}
	if cfg.CustomEndpoint != "" {
		sources = append(sources, directory.NewCustomSource(cfg.CustomEndpoint, client))
	}
	dir := directory.New(directory.Options{
		TTL:        cfg.CacheTTL(),
		Timeout:    cfg.SourceTimeout(),
		Order:      cfg.Sources,
		Logger:     logger,
		HTTPClient: client,
	}, sources...)

	tracker := dedupe.New(dedupe.Options{
		Window:        cfg.Window(),
		MaxPerWindow:  cfg.MaxPerWindow,
		SweepInterval: cfg.SweepInterval(),
		Logger:        logger,
	})

	opts, err := engine.OptionsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	opts.Table = table
	opts.Directory = dir
	opts.Tracker = tracker
	opts.Logger = logger

	stop := tracker.Start(context.Background())
	return engine.New(opts), stop, nil
}

// Close stops background work and closes the database.
func (d *deps) Close() {
	if d == nil {
		return
	}
	if d.stopSweep != nil {
		d.stopSweep()
	}
	if d.db != nil {
		d.db.Close()
	}
	_ = d.log.Sync()
}

package commands

import (
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	// Postgres driver.
	_ "github.com/lib/pq"

	"github.com/cleared-dev/fluxo/internal/audit"
	"github.com/cleared-dev/fluxo/internal/cache"
	"github.com/cleared-dev/fluxo/internal/classify"
	"github.com/cleared-dev/fluxo/internal/config"
	"github.com/cleared-dev/fluxo/internal/forecast"
	"github.com/cleared-dev/fluxo/internal/ledger"
	"github.com/cleared-dev/fluxo/internal/reconcile"
	"github.com/cleared-dev/fluxo/internal/statement"
	"github.com/cleared-dev/fluxo/internal/store"
)

// app bundles the wired service graph shared by the serve and sweep commands.
type app struct {
	log        *logrus.Logger
	store      store.Store
	normalizer *statement.Normalizer
	forecaster *forecast.Forecaster
	ledger     *ledger.Service
	matcher    *reconcile.Matcher

	db *sql.DB // nil when running on the in-memory store
}

func newApp(cfg *config.Config) (*app, error) {
	log := newLogger(cfg.Logging)

	st, db, err := newStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	var auditLog *audit.Log
	if cfg.AuditRoot != "" {
		auditLog = audit.NewLog(cfg.AuditRoot)
	}

	matcherCfg, err := matcherConfig(cfg.Matching)
	if err != nil {
		return nil, err
	}

	forecaster := forecast.NewForecaster(st, cache.NewMemory(), forecast.Params{
		DecayPerDay:      cfg.Forecast.DecayPerDay,
		ProbabilityFloor: cfg.Forecast.ProbabilityFloor,
	}, log)
	ledgerSvc := ledger.NewService(st, forecaster, auditLog, log)

	return &app{
		log:        log,
		store:      st,
		normalizer: statement.NewNormalizer(classify.New(), log),
		forecaster: forecaster,
		ledger:     ledgerSvc,
		matcher:    reconcile.NewMatcher(st, ledgerSvc, auditLog, matcherCfg, log),
		db:         db,
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()
	if cfg.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func newStore(cfg config.DatabaseConfig) (store.Store, *sql.DB, error) {
	if cfg.URL == "" {
		return store.NewMemory(), nil, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	pg := store.NewPostgres(db)
	if err := pg.EnsureSchema(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return pg, db, nil
}

func matcherConfig(cfg config.MatchingConfig) (reconcile.Config, error) {
	tolerance, err := decimal.NewFromString(cfg.AmountTolerance)
	if err != nil {
		return reconcile.Config{}, fmt.Errorf("parsing amount_tolerance %q: %w", cfg.AmountTolerance, err)
	}
	return reconcile.Config{
		AmountTolerance: tolerance,
		DateWindowDays:  cfg.DateWindowDays,
		HighThreshold:   cfg.HighConfidence,
		LowThreshold:    cfg.LowConfidence,
	}, nil
}

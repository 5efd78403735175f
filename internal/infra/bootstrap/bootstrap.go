// internal/infra/bootstrap/bootstrap.go
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"rre_filing_agent/internal/app/builder"
	"rre_filing_agent/internal/app/lifecycle"
	"rre_filing_agent/internal/domain/filing"
	"rre_filing_agent/internal/domain/report"
	"rre_filing_agent/internal/infra/config"
	idb "rre_filing_agent/internal/infra/database"
	"rre_filing_agent/internal/infra/metrics"
	"rre_filing_agent/internal/infra/sftpclient"
)

// App holds the wired components shared by the service and the CLI.
type App struct {
	Config   *config.AppConfig
	Logger   *logrus.Entry
	DB       *sql.DB // nil with STORAGE=memory
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Dialer   *sftpclient.Dialer
	Manager  *lifecycle.Manager
	Runner   *lifecycle.Runner
}

// New connects storage and wires the lifecycle. alerter may be nil, in which
// case alerts go to the log.
func New(ctx context.Context, cfg *config.AppConfig, logger *logrus.Entry, alerter lifecycle.Alerter) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	var (
		subs    filing.Repository
		reports report.Source
	)
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; filings are lost on restart")
		subs = idb.NewInMemorySubmissionRepository()
		reports = idb.NewInMemoryReportRepository()
	default:
		db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("could not connect to database: %w", err)
		}
		if err := idb.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		app.DB = db
		subs = idb.NewPostgresSubmissionRepository(db)
		reports = idb.NewPostgresReportRepository(db)
		logger.Info("Database connection established successfully.")
	}

	key, err := sftpclient.ReadPrivateKey(cfg.SFTP.PrivateKeyFile)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Dialer = sftpclient.NewDialer(sftpclient.Config{
		Host:                  cfg.SFTP.Host,
		Port:                  cfg.SFTP.Port,
		User:                  cfg.SFTP.User,
		Password:              cfg.SFTP.Password,
		PrivateKey:            key,
		HostKey:               cfg.SFTP.HostKey,
		InsecureIgnoreHostKey: cfg.SFTP.InsecureIgnoreHostKey,
		SubmissionsDir:        cfg.SFTP.SubmissionsDir,
		AcksDir:               cfg.SFTP.AcksDir,
		ConnectTimeout:        cfg.SFTP.ConnectTimeout,
		OpTimeout:             cfg.SFTP.OpTimeout,
	}, logger)

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if app.DB != nil {
		app.Registry.MustRegister(collectors.NewDBStatsCollector(app.DB, "filing"))
	}
	app.Metrics = metrics.New(app.Registry)

	app.Manager = lifecycle.NewManager(
		subs,
		reports,
		builder.New(builder.Filer{OrgCode: cfg.Filer.OrgCode, TIN: cfg.Filer.TIN, Name: cfg.Filer.Name}),
		app.Metrics,
		lifecycle.Config{
			Environment:    filing.Environment(cfg.FilingEnvironment),
			Production:     cfg.IsProduction(),
			DemoMode:       cfg.DemoMode,
			SubmissionsDir: cfg.SFTP.SubmissionsDir,
			AcksDir:        cfg.SFTP.AcksDir,
		},
		logger,
	)

	if alerter == nil {
		alerter = lifecycle.LogAlerter{Logger: logger}
	}
	app.Runner = lifecycle.NewRunner(app.Manager, subs, app.Dialer, alerter, app.Metrics, lifecycle.RunnerConfig{
		Owner:       runnerOwner(),
		BatchSize:   cfg.BatchSize,
		Workers:     cfg.Workers,
		Lease:       cfg.ClaimLease,
		ItemTimeout: cfg.ItemTimeout,
	}, logger)

	return app, nil
}

// Close releases the database connection, if any.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// runnerOwner names this process in claim leases.
func runnerOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "filer"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

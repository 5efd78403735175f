package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"

	envProduction = "production"
	envStaging    = "staging"

	minLeaseMargin = 30 * time.Second
)

// SFTPConfig describes the receiving system's file-drop endpoint.
type SFTPConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	PrivateKeyFile        string
	HostKey               string // authorized_keys formatted public key of the server
	InsecureIgnoreHostKey bool
	SubmissionsDir        string
	AcksDir               string
	ConnectTimeout        time.Duration
	OpTimeout             time.Duration
}

// FilerConfig identifies the organisation submitting reports.
type FilerConfig struct {
	OrgCode string
	TIN     string
	Name    string
}

// AppConfig holds all configuration for the application
type AppConfig struct {
	DatabaseURL       string
	Storage           string
	LogLevel          string
	Environment       string // deployment environment: development, staging, production
	FilingEnvironment string // receiving-system environment: staging or production
	DemoMode          bool

	SFTP  SFTPConfig
	Filer FilerConfig

	CronSpecSubmit string
	CronSpecPoll   string
	BatchSize      int
	Workers        int
	ClaimLease     time.Duration
	ItemTimeout    time.Duration
	JobTimeout     time.Duration // bounds one scheduled batch run

	TelegramToken   string // optional; alerts go to the log without it
	AdminTelegramID int64
	HTTPAddr        string
}

// IsProduction reports whether either the deployment or the filing target is production.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == envProduction || c.FilingEnvironment == envProduction
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()
	return parse(os.Getenv)
}

// parse builds and validates the configuration from getenv.
func parse(getenv func(string) string) (*AppConfig, error) {
	p := &parser{getenv: getenv}
	cfg := &AppConfig{}

	cfg.Storage = strings.ToLower(p.str("STORAGE", StoragePostgres))
	cfg.DatabaseURL = p.str("DATABASE_URL", "")
	cfg.LogLevel = strings.ToLower(p.str("LOG_LEVEL", "info"))
	cfg.Environment = strings.ToLower(p.str("ENVIRONMENT", "development"))
	cfg.FilingEnvironment = strings.ToLower(p.str("FILING_ENVIRONMENT", envStaging))
	cfg.DemoMode = p.boolean("DEMO_MODE", false)

	cfg.SFTP = SFTPConfig{
		Host:                  p.str("SFTP_HOST", ""),
		Port:                  p.integer("SFTP_PORT", 22),
		User:                  p.str("SFTP_USER", ""),
		Password:              p.str("SFTP_PASSWORD", ""),
		PrivateKeyFile:        p.str("SFTP_PRIVATE_KEY_FILE", ""),
		HostKey:               p.str("SFTP_HOST_KEY", ""),
		InsecureIgnoreHostKey: p.boolean("SFTP_INSECURE_IGNORE_HOST_KEY", false),
		SubmissionsDir:        p.str("SFTP_SUBMISSIONS_DIR", "/submissions"),
		AcksDir:               p.str("SFTP_ACKS_DIR", "/acks"),
		ConnectTimeout:        p.duration("SFTP_CONNECT_TIMEOUT", 15*time.Second),
		OpTimeout:             p.duration("SFTP_OP_TIMEOUT", 30*time.Second),
	}
	cfg.Filer = FilerConfig{
		OrgCode: p.str("FILER_ORG_CODE", ""),
		TIN:     p.str("FILER_TIN", ""),
		Name:    p.str("FILER_NAME", ""),
	}

	cfg.CronSpecSubmit = p.str("CRON_SPEC_SUBMIT", "*/5 * * * *") // every 5 minutes
	cfg.CronSpecPoll = p.str("CRON_SPEC_POLL", "*/15 * * * *")    // every 15 minutes
	cfg.BatchSize = p.integer("BATCH_SIZE", 50)
	cfg.Workers = p.integer("WORKERS", 4)
	cfg.ClaimLease = p.duration("CLAIM_LEASE", 10*time.Minute)
	cfg.ItemTimeout = p.duration("ITEM_TIMEOUT", 2*time.Minute)
	cfg.JobTimeout = p.duration("JOB_TIMEOUT", 30*time.Minute)

	cfg.TelegramToken = p.str("TELEGRAM_TOKEN", "")
	cfg.AdminTelegramID = p.int64("ADMIN_TELEGRAM_ID", 0)
	cfg.HTTPAddr = p.str("HTTP_ADDR", ":8080")

	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	var errs []error
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL is not set"))
		}
	case StorageMemory:
		if c.IsProduction() {
			errs = append(errs, fmt.Errorf("STORAGE=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid STORAGE %q: want postgres or memory", c.Storage))
	}

	if c.FilingEnvironment != envStaging && c.FilingEnvironment != envProduction {
		errs = append(errs, fmt.Errorf("invalid FILING_ENVIRONMENT %q: want staging or production", c.FilingEnvironment))
	}
	if c.DemoMode && c.IsProduction() {
		errs = append(errs, fmt.Errorf("DEMO_MODE cannot be enabled when ENVIRONMENT or FILING_ENVIRONMENT is production"))
	}

	if !c.DemoMode {
		if c.SFTP.Host == "" {
			errs = append(errs, fmt.Errorf("SFTP_HOST is not set"))
		}
		if c.SFTP.User == "" {
			errs = append(errs, fmt.Errorf("SFTP_USER is not set"))
		}
		if c.SFTP.Password == "" && c.SFTP.PrivateKeyFile == "" {
			errs = append(errs, fmt.Errorf("one of SFTP_PASSWORD or SFTP_PRIVATE_KEY_FILE must be set"))
		}
		if c.Filer.OrgCode == "" {
			errs = append(errs, fmt.Errorf("FILER_ORG_CODE is not set"))
		}
	}
	if c.SFTP.InsecureIgnoreHostKey && c.IsProduction() {
		errs = append(errs, fmt.Errorf("SFTP_INSECURE_IGNORE_HOST_KEY is not allowed in production"))
	}
	if c.SFTP.Host != "" && c.SFTP.HostKey == "" && !c.SFTP.InsecureIgnoreHostKey {
		errs = append(errs, fmt.Errorf("SFTP_HOST_KEY is not set"))
	}

	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be positive"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be positive"))
	}
	if c.ItemTimeout <= 0 || c.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ITEM_TIMEOUT and JOB_TIMEOUT must be positive"))
	}
	// A lease is renewed before each item and must outlive the item, including
	// the save that records a completed push.
	if c.ClaimLease < c.ItemTimeout+minLeaseMargin {
		errs = append(errs, fmt.Errorf("CLAIM_LEASE (%s) must exceed ITEM_TIMEOUT (%s) by at least %s", c.ClaimLease, c.ItemTimeout, minLeaseMargin))
	}
	if c.TelegramToken != "" && c.AdminTelegramID == 0 {
		errs = append(errs, fmt.Errorf("ADMIN_TELEGRAM_ID is not set"))
	}
	return errors.Join(errs...)
}

// parser collects every malformed value instead of stopping at the first.
type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) int64(key string, def int64) int64 {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

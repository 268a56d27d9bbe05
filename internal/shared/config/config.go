package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Database      DatabaseConfig      `yaml:"database"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Notifications NotificationsConfig `yaml:"notifications"`
	FX            FXConfig            `yaml:"fx"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Log           LogConfig           `yaml:"log"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type SchedulerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Timezone        string        `yaml:"timezone"`
	WorkerCount     int           `yaml:"workers"`
	JobDelay        time.Duration `yaml:"job_delay"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	QueueSize       int           `yaml:"queue_size"`
	ItemConcurrency int           `yaml:"item_concurrency"`
	RunOnStartup    bool          `yaml:"run_on_startup"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RecurringCron   string        `yaml:"recurring_cron"`
	AutoPayoffCron  string        `yaml:"autopayoff_cron"`
	RemindersCron   string        `yaml:"reminders_cron"`
}

type NotificationsConfig struct {
	DueSoonDays  int            `yaml:"due_soon_days"`
	// MessagesFile optionally overrides notification texts per kind.
	MessagesFile string         `yaml:"messages_file"`
	Firebase     FirebaseConfig `yaml:"firebase"`
	SMTP         SMTPConfig     `yaml:"smtp"`
}

type FirebaseConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// Enabled reports whether an SMTP host is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type FXConfig struct {
	Base    string            `yaml:"base"`
	Rates   map[string]string `yaml:"rates"`
	XMLFile string            `yaml:"xml_file"`
}

type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	MetricsAddr  string `yaml:"metrics_addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when neither a file nor the
// environment says otherwise.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Driver: StorePostgres},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "famledger",
			DBName:  "famledger",
			SSLMode: "disable",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			Timezone:        "UTC",
			WorkerCount:     3,
			JobDelay:        0,
			JobTimeout:      10 * time.Minute,
			QueueSize:       10,
			ItemConcurrency: 8,
			ShutdownTimeout: 30 * time.Second,
			RecurringCron:   "0 1 * * *",
			AutoPayoffCron:  "30 1 * * *",
			RemindersCron:   "0 9 * * *",
		},
		Notifications: NotificationsConfig{
			DueSoonDays: 3,
			SMTP:        SMTPConfig{Port: 587},
		},
		FX: FXConfig{
			Base:  "USD",
			Rates: map[string]string{},
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "famledger-scheduler",
			OTLPEndpoint: "localhost:4317",
			MetricsAddr:  ":9090",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in that order of precedence
// (environment wins).
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var err error

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	if c.Database.Port, err = getIntEnv("DB_PORT", c.Database.Port); err != nil {
		return err
	}
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	s := &c.Scheduler
	s.Enabled = getBoolEnv("SCHEDULER_ENABLED", s.Enabled)
	s.Timezone = getEnv("SCHEDULER_TIMEZONE", s.Timezone)
	if s.WorkerCount, err = getIntEnv("SCHEDULER_WORKERS", s.WorkerCount); err != nil {
		return err
	}
	if s.JobDelay, err = getDurationEnv("SCHEDULER_JOB_DELAY", s.JobDelay); err != nil {
		return err
	}
	if s.JobTimeout, err = getDurationEnv("SCHEDULER_JOB_TIMEOUT", s.JobTimeout); err != nil {
		return err
	}
	if s.QueueSize, err = getIntEnv("SCHEDULER_QUEUE_SIZE", s.QueueSize); err != nil {
		return err
	}
	if s.ItemConcurrency, err = getIntEnv("SCHEDULER_ITEM_CONCURRENCY", s.ItemConcurrency); err != nil {
		return err
	}
	s.RunOnStartup = getBoolEnv("SCHEDULER_RUN_ON_STARTUP", s.RunOnStartup)
	if s.ShutdownTimeout, err = getDurationEnv("SCHEDULER_SHUTDOWN_TIMEOUT", s.ShutdownTimeout); err != nil {
		return err
	}
	s.RecurringCron = getEnv("SCHEDULER_RECURRING_CRON", s.RecurringCron)
	s.AutoPayoffCron = getEnv("SCHEDULER_AUTOPAYOFF_CRON", s.AutoPayoffCron)
	s.RemindersCron = getEnv("SCHEDULER_REMINDERS_CRON", s.RemindersCron)

	n := &c.Notifications
	if n.DueSoonDays, err = getIntEnv("NOTIFY_DUE_SOON_DAYS", n.DueSoonDays); err != nil {
		return err
	}
	n.MessagesFile = getEnv("NOTIFY_MESSAGES_FILE", n.MessagesFile)
	n.Firebase.CredentialsFile = getEnv("FIREBASE_CREDENTIALS_FILE", n.Firebase.CredentialsFile)
	n.SMTP.Host = getEnv("SMTP_HOST", n.SMTP.Host)
	if n.SMTP.Port, err = getIntEnv("SMTP_PORT", n.SMTP.Port); err != nil {
		return err
	}
	n.SMTP.Username = getEnv("SMTP_USERNAME", n.SMTP.Username)
	n.SMTP.Password = getEnv("SMTP_PASSWORD", n.SMTP.Password)
	n.SMTP.From = getEnv("SMTP_FROM", n.SMTP.From)

	c.FX.Base = strings.ToUpper(getEnv("FX_BASE", c.FX.Base))
	if raw := os.Getenv("FX_RATES"); raw != "" {
		rates, err := parseRatePairs(raw)
		if err != nil {
			return err
		}
		c.FX.Rates = rates
	}
	c.FX.XMLFile = getEnv("FX_XML_FILE", c.FX.XMLFile)

	c.Telemetry.Enabled = getBoolEnv("OTEL_ENABLED", c.Telemetry.Enabled)
	c.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", c.Telemetry.ServiceName)
	c.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Telemetry.MetricsAddr = getEnv("METRICS_ADDR", c.Telemetry.MetricsAddr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store.Driver)
	}

	s := c.Scheduler
	if s.WorkerCount <= 0 {
		return fmt.Errorf("SCHEDULER_WORKERS must be positive")
	}
	if s.QueueSize <= 0 {
		return fmt.Errorf("SCHEDULER_QUEUE_SIZE must be positive")
	}
	if s.ItemConcurrency <= 0 {
		return fmt.Errorf("SCHEDULER_ITEM_CONCURRENCY must be positive")
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	for name, spec := range map[string]string{
		"SCHEDULER_RECURRING_CRON":  s.RecurringCron,
		"SCHEDULER_AUTOPAYOFF_CRON": s.AutoPayoffCron,
		"SCHEDULER_REMINDERS_CRON":  s.RemindersCron,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}

	if c.Notifications.DueSoonDays < 0 {
		return fmt.Errorf("NOTIFY_DUE_SOON_DAYS must not be negative")
	}
	if c.Notifications.SMTP.Enabled() && c.Notifications.SMTP.From == "" {
		return fmt.Errorf("SMTP_FROM is required when SMTP_HOST is set")
	}

	if len(c.FX.Base) != 3 {
		return fmt.Errorf("FX_BASE must be a 3-letter currency code")
	}
	return nil
}

// Location resolves the scheduler timezone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid SCHEDULER_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// parseRatePairs parses "USD=1,KRW=1350.5".
func parseRatePairs(raw string) (map[string]string, error) {
	rates := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, rate, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(code) == "" || strings.TrimSpace(rate) == "" {
			return nil, fmt.Errorf("invalid FX_RATES entry %q (expected CODE=RATE)", pair)
		}
		rates[strings.ToUpper(strings.TrimSpace(code))] = strings.TrimSpace(rate)
	}
	return rates, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

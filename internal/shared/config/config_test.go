package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate blanks every variable Load reads so the host environment cannot
// leak into a test.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "STORE_DRIVER",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"SCHEDULER_ENABLED", "SCHEDULER_TIMEZONE", "SCHEDULER_WORKERS", "SCHEDULER_JOB_DELAY",
		"SCHEDULER_JOB_TIMEOUT", "SCHEDULER_QUEUE_SIZE", "SCHEDULER_ITEM_CONCURRENCY",
		"SCHEDULER_RUN_ON_STARTUP", "SCHEDULER_SHUTDOWN_TIMEOUT", "SCHEDULER_RECURRING_CRON",
		"SCHEDULER_AUTOPAYOFF_CRON", "SCHEDULER_REMINDERS_CRON",
		"NOTIFY_DUE_SOON_DAYS", "NOTIFY_MESSAGES_FILE", "FIREBASE_CREDENTIALS_FILE",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM",
		"FX_BASE", "FX_RATES", "FX_XML_FILE",
		"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_ENDPOINT", "METRICS_ADDR",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Store.Driver != StorePostgres {
		t.Errorf("Store.Driver = %q, want %q", cfg.Store.Driver, StorePostgres)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, 5432)
	}
	if cfg.Scheduler.RecurringCron != "0 1 * * *" {
		t.Errorf("Scheduler.RecurringCron = %q", cfg.Scheduler.RecurringCron)
	}
	if cfg.Notifications.DueSoonDays != 3 {
		t.Errorf("Notifications.DueSoonDays = %d, want 3", cfg.Notifications.DueSoonDays)
	}
	if cfg.Notifications.SMTP.Enabled() {
		t.Error("SMTP should be disabled without a host")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json", cfg.Log.Format)
	}
}

func TestLoad_InvalidDBPort(t *testing.T) {
	isolate(t)
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Error("Load() expected error for invalid DB_PORT, got nil")
	}
}

func TestLoad_SchedulerConfig(t *testing.T) {
	isolate(t)
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SCHEDULER_WORKERS", "10")
	t.Setenv("SCHEDULER_RUN_ON_STARTUP", "true")
	t.Setenv("SCHEDULER_JOB_TIMEOUT", "90s")
	t.Setenv("SCHEDULER_TIMEZONE", "Asia/Seoul")
	t.Setenv("SCHEDULER_AUTOPAYOFF_CRON", "@daily")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Scheduler.Enabled != false {
		t.Error("Scheduler.Enabled should be false")
	}
	if cfg.Scheduler.WorkerCount != 10 {
		t.Errorf("Scheduler.WorkerCount = %d, want 10", cfg.Scheduler.WorkerCount)
	}
	if cfg.Scheduler.RunOnStartup != true {
		t.Error("Scheduler.RunOnStartup should be true")
	}
	if cfg.Scheduler.JobTimeout != 90*time.Second {
		t.Errorf("Scheduler.JobTimeout = %v, want 90s", cfg.Scheduler.JobTimeout)
	}
	if cfg.Scheduler.AutoPayoffCron != "@daily" {
		t.Errorf("Scheduler.AutoPayoffCron = %q", cfg.Scheduler.AutoPayoffCron)
	}
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		t.Fatalf("Location() failed: %v", err)
	}
	if loc.String() != "Asia/Seoul" {
		t.Errorf("Location() = %q", loc.String())
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"STORE_DRIVER": "mongo"}},
		{"zero workers", map[string]string{"SCHEDULER_WORKERS": "0"}},
		{"zero item concurrency", map[string]string{"SCHEDULER_ITEM_CONCURRENCY": "0"}},
		{"bad timezone", map[string]string{"SCHEDULER_TIMEZONE": "Mars/Olympus"}},
		{"bad cron", map[string]string{"SCHEDULER_RECURRING_CRON": "every day"}},
		{"bad duration", map[string]string{"SCHEDULER_JOB_DELAY": "soon"}},
		{"negative due days", map[string]string{"NOTIFY_DUE_SOON_DAYS": "-1"}},
		{"smtp without from", map[string]string{"SMTP_HOST": "smtp.example.com"}},
		{"bad fx pair", map[string]string{"FX_RATES": "USD=1,KRW"}},
		{"bad fx base", map[string]string{"FX_BASE": "DOLLAR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error for %s, got nil", tt.name)
			}
		})
	}
}

func TestLoad_FXRates(t *testing.T) {
	isolate(t)
	t.Setenv("FX_BASE", "krw")
	t.Setenv("FX_RATES", "usd=0.00074, KRW=1 ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.FX.Base != "KRW" {
		t.Errorf("FX.Base = %q, want KRW", cfg.FX.Base)
	}
	if len(cfg.FX.Rates) != 2 || cfg.FX.Rates["USD"] != "0.00074" || cfg.FX.Rates["KRW"] != "1" {
		t.Errorf("FX.Rates = %v", cfg.FX.Rates)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "famledger.yaml")
	content := `
store:
  driver: memory
scheduler:
  workers: 7
  job_delay: 250ms
  recurring_cron: "15 3 * * *"
notifications:
  due_soon_days: 5
  smtp:
    host: smtp.example.com
    from: ledger@example.com
fx:
  base: EUR
  rates:
    USD: "1.08"
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SCHEDULER_WORKERS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Store.Driver != StoreMemory {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Scheduler.WorkerCount != 2 {
		t.Errorf("environment should override file: WorkerCount = %d", cfg.Scheduler.WorkerCount)
	}
	if cfg.Scheduler.JobDelay != 250*time.Millisecond {
		t.Errorf("Scheduler.JobDelay = %v", cfg.Scheduler.JobDelay)
	}
	if cfg.Scheduler.RecurringCron != "15 3 * * *" {
		t.Errorf("Scheduler.RecurringCron = %q", cfg.Scheduler.RecurringCron)
	}
	if cfg.Scheduler.RemindersCron != "0 9 * * *" {
		t.Errorf("unset file keys keep defaults: RemindersCron = %q", cfg.Scheduler.RemindersCron)
	}
	if cfg.Notifications.DueSoonDays != 5 || !cfg.Notifications.SMTP.Enabled() || cfg.Notifications.SMTP.Port != 587 {
		t.Errorf("Notifications = %+v", cfg.Notifications)
	}
	if cfg.FX.Base != "EUR" || cfg.FX.Rates["USD"] != "1.08" {
		t.Errorf("FX = %+v", cfg.FX)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	isolate(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for missing config file, got nil")
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value    string
		defVal   bool
		expected bool
	}{
		{"true", false, true},
		{"TRUE", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"invalid", true, true},
		{"invalid", false, false},
		{"", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			key := "TEST_BOOL_ENV"
			t.Setenv(key, tt.value)

			got := getBoolEnv(key, tt.defVal)
			if got != tt.expected {
				t.Errorf("getBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defVal, got, tt.expected)
			}
		})
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
		SSLMode:  "disable",
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable"
	got := cfg.ConnectionString()
	if got != expected {
		t.Errorf("ConnectionString() = %q, want %q", got, expected)
	}
}

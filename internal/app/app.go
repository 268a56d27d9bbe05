// Package app wires configuration, persistence and domain services into the
// components the binaries run.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"famledger/internal/domain/account"
	"famledger/internal/domain/autopayoff"
	"famledger/internal/domain/ledger"
	"famledger/internal/domain/notification"
	"famledger/internal/domain/paymentplan"
	"famledger/internal/domain/recurring"
	"famledger/internal/infrastructure/email"
	"famledger/internal/infrastructure/firebase"
	"famledger/internal/infrastructure/fx"
	"famledger/internal/infrastructure/memory"
	"famledger/internal/infrastructure/postgres"
	"famledger/internal/interfaces/scheduler"
	"famledger/internal/models"
	"famledger/internal/shared/config"
	"famledger/internal/shared/dateutil"
	"famledger/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Config *config.Config
	Log    logrus.FieldLogger

	// DB is nil when the memory store is configured.
	DB    *postgres.DB
	Store models.Store
	Clock dateutil.Clock
	Rates *fx.Table

	Notifier     *notification.Service
	Accounts     *account.Service
	Ledger       *ledger.Service
	Recurring    *recurring.Service
	PaymentPlans *paymentplan.Service
	AutoPayoff   *autopayoff.Service
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Dependencies, error) {
	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{
		Config: cfg,
		Log:    log,
		Clock:  dateutil.SystemClock{Location: loc},
	}

	switch cfg.Store.Driver {
	case config.StoreMemory:
		deps.Store = memory.NewStore()
		log.Warn("Using in-memory store; data is lost on exit")
	default:
		db, err := postgres.New(cfg.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		deps.DB = db
		deps.Store = postgres.NewStore(db)
		log.WithField("host", cfg.Database.Host).Info("Connected to database")
	}

	deps.Rates, err = newRateTable(cfg.FX)
	if err != nil {
		deps.Close()
		return nil, err
	}

	channels, err := newChannels(ctx, cfg.Notifications, log)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Notifier = notification.NewService(deps.Store.Users(), log.WithField("component", "notification"), channels...)
	if path := cfg.Notifications.MessagesFile; path != "" {
		catalog, err := messages.Load(path)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Notifier.UseMessages(catalog)
	}

	deps.Accounts = account.NewService(deps.Store.Accounts(), log.WithField("component", "account"))
	deps.Ledger = ledger.NewService(deps.Store, ledger.NewAccessor(log.WithField("component", "ledger")), deps.Rates, log.WithField("component", "ledger"))
	deps.Recurring = recurring.NewService(deps.Store, deps.Ledger, deps.Clock, deps.Notifier, log.WithField("component", "recurring"))
	deps.PaymentPlans = paymentplan.NewService(deps.Store, deps.Clock, deps.Notifier, log.WithField("component", "paymentplan"))
	deps.AutoPayoff = autopayoff.NewService(deps.Store, deps.Ledger, deps.Notifier, log.WithField("component", "autopayoff"))

	return deps, nil
}

func newRateTable(cfg config.FXConfig) (*fx.Table, error) {
	rates, err := fx.ParseRates(cfg.Rates)
	if err != nil {
		return nil, err
	}
	table, err := fx.NewTable(cfg.Base, rates)
	if err != nil {
		return nil, err
	}
	if cfg.XMLFile != "" {
		if err := table.LoadXMLFile(cfg.XMLFile); err != nil {
			return nil, fmt.Errorf("failed to load exchange rates: %w", err)
		}
	}
	return table, nil
}

func newChannels(ctx context.Context, cfg config.NotificationsConfig, log logrus.FieldLogger) ([]notification.Channel, error) {
	var channels []notification.Channel

	if cfg.Firebase.CredentialsFile != "" {
		client, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile, log.WithField("component", "fcm"))
		if err != nil {
			return nil, err
		}
		channels = append(channels, client)
	}

	if cfg.SMTP.Enabled() {
		channels = append(channels, email.NewSender(email.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}))
	}

	return channels, nil
}

// Jobs builds the scheduled jobs keyed by name. A non-nil clock overrides
// the system clock, which the admin CLI uses to run a job as of a past date.
func (d *Dependencies) Jobs(clock dateutil.Clock) map[string]*scheduler.BatchJob {
	if clock == nil {
		clock = d.Clock
	}
	s := d.Config.Scheduler
	log := d.Log.WithField("component", "jobs")

	return map[string]*scheduler.BatchJob{
		scheduler.RecurringJobName:  scheduler.NewRecurringJob(d.Recurring, clock, s.ItemConcurrency, log),
		scheduler.AutoPayoffJobName: scheduler.NewAutoPayoffJob(d.AutoPayoff, clock, s.ItemConcurrency, log),
		scheduler.RemindersJobName:  scheduler.NewRemindersJob(d.PaymentPlans, clock, d.Config.Notifications.DueSoonDays, s.ItemConcurrency, log),
	}
}

// NewScheduler registers every job on its configured cron spec.
func (d *Dependencies) NewScheduler() (*scheduler.Scheduler, error) {
	s := d.Config.Scheduler
	loc, err := s.Location()
	if err != nil {
		return nil, err
	}

	sched := scheduler.New(scheduler.Config{
		WorkerCount:  s.WorkerCount,
		JobDelay:     s.JobDelay,
		JobTimeout:   s.JobTimeout,
		QueueSize:    s.QueueSize,
		RunOnStartup: s.RunOnStartup,
		Location:     loc,
	}, d.Log.WithField("component", "scheduler"))

	jobs := d.Jobs(nil)
	specs := map[string]string{
		scheduler.RecurringJobName:  s.RecurringCron,
		scheduler.AutoPayoffJobName: s.AutoPayoffCron,
		scheduler.RemindersJobName:  s.RemindersCron,
	}
	for name, spec := range specs {
		if err := sched.Register(spec, jobs[name]); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Health reports whether the store is reachable.
func (d *Dependencies) Health(ctx context.Context) error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Ping(ctx)
}

// Close releases the database connection, if any.
func (d *Dependencies) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}

// ShutdownTimeout bounds graceful shutdown.
func (d *Dependencies) ShutdownTimeout() time.Duration {
	if d.Config.Scheduler.ShutdownTimeout <= 0 {
		return 30 * time.Second
	}
	return d.Config.Scheduler.ShutdownTimeout
}

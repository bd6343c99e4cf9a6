package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/conthop/backend/internal/app/auth"
	"github.com/conthop/backend/internal/app/domain/plan"
	"github.com/conthop/backend/internal/app/jobs"
	"github.com/conthop/backend/internal/app/services/accounts"
	"github.com/conthop/backend/internal/app/services/community"
	"github.com/conthop/backend/internal/app/services/lifecycle"
	"github.com/conthop/backend/internal/app/services/notify"
	"github.com/conthop/backend/internal/app/services/requests"
	supportsvc "github.com/conthop/backend/internal/app/services/support"
	"github.com/conthop/backend/internal/app/storage"
	"github.com/conthop/backend/internal/app/storage/memory"
	"github.com/conthop/backend/internal/app/storage/postgres"
	"github.com/conthop/backend/internal/app/system"
	"github.com/conthop/backend/internal/config"
	"github.com/conthop/backend/internal/httputil"
	"github.com/conthop/backend/internal/logging"
	"github.com/conthop/backend/internal/mail"
	"github.com/conthop/backend/internal/middleware"
	"github.com/conthop/backend/internal/platform/database"
	"github.com/conthop/backend/internal/platform/migrations"
)

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger
	cfg     *config.Config

	Store     storage.Store
	Tokens    *auth.TokenIssuer
	Notifier  *notify.Service
	Lifecycle *lifecycle.Manager
	Accounts  *accounts.Service
	Requests  *requests.Service
	Community *community.Service
	Support   *supportsvc.Service
	Guard     *middleware.Guard
	Limiter   *middleware.RateLimiter
	Scheduler *jobs.Scheduler
	Plans     []plan.Plan
}

// New builds a fully initialised application on store. A nil store uses
// the in-memory implementation; a nil transport selects one from cfg.
func New(cfg *config.Config, store storage.Store, transport mail.Transport, log *logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		log = logging.New("app", cfg.Log.Level, cfg.Log.Format)
	}
	if store == nil {
		log.Warn("no database configured; using in-memory store")
		store = memory.New()
	}
	if transport == nil {
		var err error
		if transport, err = NewMailTransport(cfg.Mail, log); err != nil {
			return nil, err
		}
	}

	plans, err := config.LoadPlans(cfg.PlansFile)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, err
	}

	notifier := notify.New(store, store, transport, log, notify.Options{
		Mode:      notify.Mode(cfg.Notify.Mode),
		QueueSize: cfg.Notify.QueueSize,
		Workers:   cfg.Notify.Workers,
		Retries:   cfg.Notify.Retries,
		Backoff:   cfg.Notify.Backoff,
	})
	lifecycleManager := lifecycle.New(store, store, store, notifier, log, lifecycle.Options{Strict: cfg.Lifecycle.StrictTransitions})
	accountService := accounts.New(accounts.Stores{Users: store, Plans: store, Requests: store, Stats: store}, tokens, notifier, cfg.Auth.ResetURL, log)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)

	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Jobs.Timezone); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, fmt.Errorf("load jobs timezone: %w", err)
		}
	}
	scheduler := jobs.NewScheduler(loc, log)
	if cfg.Jobs.Enabled {
		if err := scheduler.Add(cfg.Jobs.LimiterCleanup, jobs.LimiterCleanup(limiter, cfg.RateLimit.IdleTTL, log)); err != nil {
			return nil, err
		}
		if err := scheduler.Add(cfg.Jobs.PendingDigest, jobs.PendingDigest(store, store, notifier, log)); err != nil {
			return nil, err
		}
	}

	application := &Application{
		manager:   system.NewManager(),
		log:       log,
		cfg:       cfg,
		Store:     store,
		Tokens:    tokens,
		Notifier:  notifier,
		Lifecycle: lifecycleManager,
		Accounts:  accountService,
		Requests:  requests.New(store, log),
		Community: community.New(store, store, log),
		Support:   supportsvc.New(store, store, log),
		Guard:     middleware.NewGuard(store, store, log),
		Limiter:   limiter,
		Scheduler: scheduler,
		Plans:     plans,
	}

	services := []system.Service{
		system.Func{ServiceName: "plan-catalog", OnStart: application.seedPlans},
		system.Func{ServiceName: "admin-bootstrap", OnStart: application.bootstrapAdmin},
		system.Func{
			ServiceName: "notifier",
			OnStart: func(ctx context.Context) error {
				notifier.Start(context.WithoutCancel(ctx))
				return nil
			},
			OnStop: func(context.Context) error {
				notifier.Close()
				return nil
			},
		},
		system.Func{
			ServiceName: "scheduler",
			OnStart: func(context.Context) error {
				scheduler.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				scheduler.Stop(ctx)
				return nil
			},
		},
	}
	for _, svc := range services {
		if err := application.manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}
	return application, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

func (a *Application) seedPlans(ctx context.Context) error {
	for _, p := range a.Plans {
		if _, err := a.Store.UpsertPlan(ctx, p); err != nil {
			return fmt.Errorf("upsert plan %s: %w", p.Code, err)
		}
	}
	a.log.WithField("plans", len(a.Plans)).Info("plan catalog loaded")
	return nil
}

func (a *Application) bootstrapAdmin(ctx context.Context) error {
	if a.cfg.Auth.AdminEmail == "" {
		return nil
	}
	admin, err := a.Accounts.EnsureAdmin(ctx, "", a.cfg.Auth.AdminEmail, a.cfg.Auth.AdminPassword)
	if err != nil {
		return err
	}
	a.log.WithField("user_id", admin.ID).Info("bootstrap admin ready")
	return nil
}

// OpenStore connects to Postgres when a URL is configured and applies the
// embedded migrations. The returned close function is never nil.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (storage.Store, func() error, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, func() error { return nil }, nil
	}
	db, err := database.Open(ctx, database.Config{
		DSN:             cfg.URL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := migrations.Apply(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info("database migrations applied")
	}
	return postgres.New(db), db.Close, nil
}

// NewMailTransport builds the configured email transport.
func NewMailTransport(cfg config.MailConfig, log *logging.Logger) (mail.Transport, error) {
	switch cfg.Transport {
	case "", "log":
		return mail.NewLogTransport(log), nil
	case "smtp":
		return mail.NewSMTPTransport(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
		})
	case "relay":
		client := httputil.NewServiceClient(httputil.ServiceClientConfig{
			BaseURL:    cfg.RelayURL,
			APIKey:     cfg.RelayAPIKey,
			Timeout:    cfg.Timeout,
			MaxRetries: 2,
		})
		return mail.NewRelayTransport(client, "", cfg.From), nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Transport)
	}
}

// Package app builds the object graph shared by the server and the admin
// CLI: stores chosen by configuration, services, and the HTTP router.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"civicdesk/internal/adminsession"
	adminsessionhandler "civicdesk/internal/adminsession/handler"
	sessionmemory "civicdesk/internal/adminsession/store/memory"
	sessionpostgres "civicdesk/internal/adminsession/store/postgres"
	"civicdesk/internal/audit"
	audithandler "civicdesk/internal/audit/handler"
	auditmemory "civicdesk/internal/audit/store/memory"
	auditpostgres "civicdesk/internal/audit/store/postgres"
	"civicdesk/internal/audit/stream"
	"civicdesk/internal/auth"
	authhandler "civicdesk/internal/auth/handler"
	authmemory "civicdesk/internal/auth/store/memory"
	authpostgres "civicdesk/internal/auth/store/postgres"
	"civicdesk/internal/auth/store/revocation"
	"civicdesk/internal/auth/token"
	"civicdesk/internal/backup"
	backuphandler "civicdesk/internal/backup/handler"
	"civicdesk/internal/declaration"
	declarationhandler "civicdesk/internal/declaration/handler"
	declmemory "civicdesk/internal/declaration/store/memory"
	declpostgres "civicdesk/internal/declaration/store/postgres"
	"civicdesk/internal/pending"
	pendinghandler "civicdesk/internal/pending/handler"
	pendingmemory "civicdesk/internal/pending/store/memory"
	pendingpostgres "civicdesk/internal/pending/store/postgres"
	"civicdesk/internal/platform/config"
	"civicdesk/internal/platform/metrics"
	"civicdesk/internal/platform/migrations"
	"civicdesk/internal/platform/postgres"
	platformredis "civicdesk/internal/platform/redis"
	"civicdesk/internal/protection"
	protectionhandler "civicdesk/internal/protection/handler"
	protectionmemory "civicdesk/internal/protection/store/memory"
	protectionpostgres "civicdesk/internal/protection/store/postgres"
	"civicdesk/internal/ratelimit"
	ratelimitmemory "civicdesk/internal/ratelimit/store/memory"
	ratelimitredis "civicdesk/internal/ratelimit/store/redis"
	"civicdesk/internal/reconcile"
	reconcilehandler "civicdesk/internal/reconcile/handler"
	"civicdesk/internal/retention"
	retentionhandler "civicdesk/internal/retention/handler"
	"civicdesk/internal/stats"
	statshandler "civicdesk/internal/stats/handler"
	"civicdesk/internal/tip"
	tiphandler "civicdesk/internal/tip/handler"
	tipmemory "civicdesk/internal/tip/store/memory"
	tippostgres "civicdesk/internal/tip/store/postgres"
	httptransport "civicdesk/internal/transport/http"
	"civicdesk/pkg/platform/middleware/metadata"
	txcontext "civicdesk/pkg/platform/tx"
)

// forwarderCapacity bounds the in-process activity log stream buffer.
const forwarderCapacity = 10_000

type stores struct {
	declarations declaration.Store
	pending      pending.Store
	audit        audit.Store
	sessions     adminsession.Store
	tips         tip.Store
	policies     protection.Store
	users        auth.UserStore
	challenges   auth.ChallengeStore
}

func memoryStores() stores {
	return stores{
		declarations: declmemory.New(),
		pending:      pendingmemory.New(),
		audit:        auditmemory.New(),
		sessions:     sessionmemory.New(),
		tips:         tipmemory.New(),
		policies:     protectionmemory.New(),
		users:        authmemory.NewUserStore(),
		challenges:   authmemory.NewChallengeStore(),
	}
}

func postgresStores(db *sql.DB) stores {
	return stores{
		declarations: declpostgres.New(db),
		pending:      pendingpostgres.New(db),
		audit:        auditpostgres.New(db),
		sessions:     sessionpostgres.New(db),
		tips:         tippostgres.New(db),
		policies:     protectionpostgres.New(db),
		users:        authpostgres.NewUserStore(db),
		challenges:   authpostgres.NewChallengeStore(db),
	}
}

// App owns every long-lived dependency.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	DB    *sql.DB
	Redis *platformredis.Client

	Recorder      *audit.Recorder
	ActivityLog   *audit.Service
	Declarations  *declaration.Service
	Pending       *pending.Service
	Tips          *tip.Service
	Protection    *protection.Service
	Gate          *protection.Gate
	AdminSessions *adminsession.Service
	Tokens        *token.Service
	Revocations   auth.Revocations
	Auth          *auth.Service
	Reconciler    *reconcile.Reconciler
	Sweeper       *retention.Sweeper
	Backup        *backup.Service
	Stats         *stats.Service

	forwarder *stream.Forwarder
	kafka     *stream.KafkaSink
}

// New connects to the configured backends and builds every service.
// Without DATABASE_URL all stores are in memory; without REDIS_URL the rate
// limiter and the revocation list stay in process.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return nil, err
	}
	a.DB = db
	st := memoryStores()
	if db != nil {
		if cfg.Postgres.AutoMigrate {
			if err := migrations.Up(db); err != nil {
				a.Close()
				return nil, err
			}
		}
		st = postgresStores(db)
		logger.InfoContext(ctx, "using postgres stores")
	} else {
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
	}

	rc, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Redis = rc

	if err := a.startStream(ctx); err != nil {
		a.Close()
		return nil, err
	}

	recorderOpts := []audit.Option{audit.WithLogger(logger), audit.WithMetrics(a.Metrics)}
	if a.forwarder != nil {
		recorderOpts = append(recorderOpts, audit.WithPublisher(a.forwarder))
	}
	a.Recorder = audit.NewRecorder(st.audit, recorderOpts...)
	a.ActivityLog = audit.NewService(st.audit, a.Recorder, logger)

	a.Declarations = declaration.NewService(st.declarations,
		declaration.WithLogger(logger),
		declaration.WithAuditor(a.Recorder),
		declaration.WithMetrics(a.Metrics),
	)
	pendingOpts := []pending.Option{
		pending.WithLogger(logger),
		pending.WithAuditor(a.Recorder),
		pending.WithMetrics(a.Metrics),
	}
	if db != nil {
		pendingOpts = append(pendingOpts, pending.WithTx(txcontext.NewRunner(db)))
	}
	a.Pending = pending.NewService(st.pending, a.Declarations, pendingOpts...)
	a.Tips = tip.NewService(st.tips, a.Declarations, tip.WithLogger(logger), tip.WithAuditor(a.Recorder))
	a.Protection = protection.NewService(st.policies, protection.WithLogger(logger), protection.WithAuditor(a.Recorder))
	a.AdminSessions = adminsession.NewService(st.sessions, adminsession.WithLogger(logger), adminsession.WithAuditor(a.Recorder))

	a.Gate = a.newGate()
	a.Revocations = a.newRevocations()
	a.Tokens = token.NewService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	a.Auth = auth.NewService(st.users, st.challenges, a.Tokens, a.Revocations,
		auth.WithLogger(logger),
		auth.WithAuditor(a.Recorder),
		auth.WithNotifier(auth.LogNotifier{Logger: logger}),
		auth.WithConfig(auth.Config{
			MaxAttempts:      cfg.Auth.MaxAttempts,
			LockoutDuration:  cfg.Auth.LockoutDuration,
			RequireTwoFactor: cfg.Auth.TwoFactor,
			TwoFactorTTL:     cfg.Auth.TwoFactorTTL,
		}),
	)

	a.Reconciler = reconcile.New(a.Declarations, a.Pending,
		reconcile.WithLogger(logger),
		reconcile.WithAuditor(a.Recorder),
		reconcile.WithMetrics(a.Metrics),
	)
	a.Sweeper = retention.New(a.Protection, retention.Targets{
		Pending:       retention.PurgeFunc(st.pending.DeleteUnprocessedOlderThan),
		ActivityLog:   retention.PurgeFunc(st.audit.DeleteOlderThan),
		AdminSessions: retention.PurgeFunc(a.AdminSessions.DeleteOlderThan),
	},
		retention.WithLogger(logger),
		retention.WithAuditor(a.Recorder),
	)
	a.Backup = backup.New(a.Declarations, a.Pending, a.Protection,
		backup.WithLogger(logger),
		backup.WithAuditor(a.Recorder),
	)
	a.Stats = stats.New(stats.Sources{
		Declarations:  a.Declarations,
		Pending:       a.Pending,
		Tips:          a.Tips,
		ActivityLog:   a.ActivityLog,
		AdminSessions: a.AdminSessions,
	}, a.Metrics)
	return a, nil
}

func (a *App) startStream(ctx context.Context) error {
	if len(a.Config.Kafka.Brokers) == 0 {
		return nil
	}
	sink, err := stream.NewKafkaSink(a.Config.Kafka.Brokers, a.Config.Kafka.AuditTopic)
	if err != nil {
		return err
	}
	a.kafka = sink
	a.forwarder = stream.NewForwarder(sink, forwarderCapacity, stream.WithLogger(a.Logger))
	a.Logger.InfoContext(ctx, "streaming activity log", "topic", a.Config.Kafka.AuditTopic)
	return nil
}

// newGate prefers the shared Redis counter and keeps an in-process counter
// for when its circuit opens.
func (a *App) newGate() *protection.Gate {
	local := ratelimitmemory.New()
	var counter ratelimit.Counter = local
	opts := []protection.GateOption{
		protection.WithGateLogger(a.Logger),
		protection.WithGateMetrics(a.Metrics),
	}
	if a.Redis != nil {
		counter = ratelimitredis.New(a.Redis.Client)
		opts = append(opts, protection.WithFallbackCounter(local))
	}

	var verifier protection.Verifier
	if a.Config.Captcha.Secret != "" {
		verifier = protection.NewRecaptchaVerifier(a.Config.Captcha.Secret, a.Config.Captcha.VerifyURL, a.Config.Captcha.Timeout, nil)
	}
	return protection.NewGate(a.Protection, counter, verifier, opts...)
}

func (a *App) newRevocations() auth.Revocations {
	switch {
	case a.Redis != nil:
		return revocation.NewRedisTRL(a.Redis.Client, revocation.WithRegisterer(a.Registry))
	case a.DB != nil:
		return revocation.NewPostgresTRL(a.DB)
	default:
		return revocation.NewInMemoryTRL()
	}
}

// Router mounts every handler.
func (a *App) Router() http.Handler {
	declarations := declarationhandler.New(a.Declarations, a.Gate, a.Logger)
	pendingItems := pendinghandler.New(a.Pending, a.Gate, a.Logger)
	tips := tiphandler.New(a.Tips, a.Gate, a.Logger)
	authH := authhandler.New(a.Auth, a.Logger)
	activity := audithandler.New(a.ActivityLog, a.Logger)
	sessions := adminsessionhandler.New(a.AdminSessions, a.Logger)

	health := map[string]httptransport.HealthCheck{}
	if a.DB != nil {
		health["postgres"] = a.DB.PingContext
	}
	if a.Redis != nil {
		health["redis"] = a.Redis.Health
	}

	return httptransport.NewRouter(httptransport.Config{
		Logger:      a.Logger,
		Validator:   a.Tokens,
		Revocations: a.Revocations,
		Gatherer:    a.Registry,
		ClientIP:    metadata.NewResolver(a.Config.Server.TrustedProxies),
		Health:      health,
		Public:      []httptransport.PublicRoutes{declarations, pendingItems, tips, authH},
		Staff: []httptransport.StaffRoutes{
			declarations, pendingItems, tips, authH, activity, sessions,
			reconcilehandler.New(a.Reconciler, a.Logger),
		},
		Admin: []httptransport.AdminRoutes{
			activity, sessions,
			protectionhandler.New(a.Protection, a.Logger),
			retentionhandler.New(a.Sweeper, a.Logger),
			backuphandler.New(a.Backup, a.Logger),
			statshandler.New(a.Stats, a.Logger),
		},
	})
}

// RunBackground runs the activity log forwarder and the retention
// scheduler until ctx is done.
func (a *App) RunBackground(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.forwarder != nil {
		g.Go(func() error {
			return a.forwarder.Run(gctx)
		})
	}
	if interval := a.Config.Retention.SweepInterval; interval > 0 {
		g.Go(func() error {
			a.Sweeper.Schedule(gctx, interval)
			return nil
		})
	}
	return g.Wait()
}

// BootstrapAdmin creates the configured first admin when the username is
// free.
func (a *App) BootstrapAdmin(ctx context.Context) error {
	user, password := a.Config.Server.BootstrapAdminUser, a.Config.Server.BootstrapAdminPassword
	if user == "" || password == "" {
		return nil
	}
	_, created, err := a.Auth.EnsureAdmin(ctx, user, password)
	if err != nil {
		return err
	}
	if created {
		a.Logger.InfoContext(ctx, "bootstrap admin created", "username", user)
	}
	return nil
}

// Close releases connections. Safe to call on a partially built App.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("failed to close redis", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("failed to close postgres", "error", err)
		}
	}
}

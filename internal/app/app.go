// Package app wires the review server: storage, sessions, services, the
// event pipeline, the WebSocket hub, tools, the agent and the HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bank-report-review/internal/agent"
	"github.com/iliyamo/bank-report-review/internal/config"
	"github.com/iliyamo/bank-report-review/internal/database"
	"github.com/iliyamo/bank-report-review/internal/events"
	"github.com/iliyamo/bank-report-review/internal/handler"
	"github.com/iliyamo/bank-report-review/internal/metrics"
	"github.com/iliyamo/bank-report-review/internal/model"
	"github.com/iliyamo/bank-report-review/internal/repository"
	"github.com/iliyamo/bank-report-review/internal/router"
	"github.com/iliyamo/bank-report-review/internal/service"
	"github.com/iliyamo/bank-report-review/internal/session"
	"github.com/iliyamo/bank-report-review/internal/tools"
	"github.com/iliyamo/bank-report-review/internal/utils"
	"github.com/iliyamo/bank-report-review/internal/ws"
)

// Version is reported by the MCP server.
var Version = "dev"

const sweepInterval = time.Minute

// Options are the inputs of New besides the environment configuration.
type Options struct {
	Config    config.Config
	RateLimit config.RateLimitConfig
	Redis     config.RedisConfig
	Log       *logrus.Logger
	// LLMClient overrides the HTTP client of the model provider.
	LLMClient *http.Client
	// Metrics defaults to a fresh registry.
	Metrics *metrics.Metrics
}

// App is a wired server.
type App struct {
	Echo     *echo.Echo
	DB       *sqlx.DB
	Sessions *session.Manager
	Auth     *service.AuthService
	Review   *service.ReviewService
	Hub      *ws.Hub
	Tools    *tools.Registry
	MCP      *tools.Server
	Agent    *agent.Agent
	Metrics  *metrics.Metrics

	cfg    config.Config
	log    *logrus.Logger
	redis  *redis.Client
	amqp   *events.AMQPPublisher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens the database, applies the schema, optionally seeds it and
// builds every component.  Background workers (session sweep, event
// consumer) run until Close.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg, log := opts.Config, opts.Log
	if log == nil {
		log = config.NewLogger(cfg)
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewRegistry()
	}

	a := &App{cfg: cfg, log: log, Metrics: m}
	bg, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.DB, err = database.Open(ctx, cfg.DB); err != nil {
		return nil, err
	}
	if err = database.Migrate(ctx, a.DB); err != nil {
		return nil, err
	}
	if cfg.SeedOnStart {
		res, err := database.Seed(ctx, a.DB, database.SeedOptions{Reports: cfg.SeedReports, BcryptCost: cfg.BcryptCost})
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"banks": res.Banks, "reports": res.Reports, "errors": res.ValidationErrors, "comments": res.Comments}).Info("database seeded")
	}

	a.redis = a.connectRedis(ctx, opts)

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		s, rerr := utils.RandomHex(32)
		if rerr != nil {
			return nil, rerr
		}
		secret = []byte(s)
		log.Warn("SESSION_SECRET not set; sessions will not survive a restart")
	}
	persister, err := a.persister()
	if err != nil {
		return nil, err
	}
	if a.Sessions, err = session.NewManager(ctx, secret, cfg.SessionTTL, persister, session.WithLogger(log)); err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	a.Sessions.OnChange = m.SetSessions
	m.SetSessions(a.Sessions.Count())

	a.Hub = ws.NewHub(log)
	a.Hub.OnChange = m.SetWSConnections

	pub := a.publisher(bg)
	a.Review = service.NewReviewService(repository.NewBankRepo(a.DB), repository.NewReportRepo(a.DB), repository.NewErrorRepo(a.DB), pub, log)
	a.Auth = service.NewAuthService(repository.NewUserRepo(a.DB), a.Sessions, pub, log)

	a.Tools = tools.NewRegistry(a.Review, repository.NewSchemaRepo(a.DB), log, m.ToolCall)
	a.MCP = tools.NewServer(a.Tools, "bank-report-review", Version)
	mcpSessions := tools.NewSessions()

	agentCfg, err := agent.LoadConfig(cfg.AgentConfigPath, agent.Config{
		Model:      cfg.LLM.Model,
		MaxSteps:   cfg.AgentMaxSteps,
		MaxHistory: cfg.AgentMaxHistory,
	})
	if err != nil {
		return nil, err
	}
	llmClient := opts.LLMClient
	if llmClient == nil {
		llmClient = &http.Client{Timeout: cfg.LLM.Timeout}
	}
	a.Agent = agent.New(agent.NewOpenAI(cfg.LLM.BaseURL, cfg.LLM.APIKey, llmClient), a.Tools, agentCfg, log)
	a.Agent.Observe = m.LLMRequest

	a.Auth.OnLogout(func(_ context.Context, rec model.SessionRecord) {
		a.Hub.CloseSession(rec.ID)
		a.Agent.Forget(rec.ID)
		mcpSessions.CloseOwner(rec.ID)
	})

	e := echo.New()
	router.Setup(e, log, m, cfg.CORSOrigins)
	limits := router.Limits{Config: opts.RateLimit, Redis: a.redis, Log: log}
	router.RegisterRoutes(e, a.DB, m)
	router.RegisterAuth(e, handler.NewAuthHandler(a.Auth), a.Sessions, limits)
	router.RegisterReview(e, handler.NewReviewHandler(a.Review), a.Sessions)
	router.RegisterAgent(e, handler.NewChatHandler(a.Agent), handler.NewToolsHandler(a.Tools, a.MCP, mcpSessions), a.Sessions, limits)
	router.RegisterWS(e, handler.NewWSHandler(bg, a.Hub, a.Sessions, log))
	if router.RegisterStatic(e, cfg.StaticDir) {
		log.WithField("dir", cfg.StaticDir).Info("serving static client")
	}
	a.Echo = e

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.sweep(bg)
	}()

	log.WithFields(logrus.Fields{
		"tools":    a.Tools.Names(),
		"model":    agentCfg.Model,
		"sessions": a.Sessions.Count(),
	}).Info("agent tools discovered")
	return a, nil
}

func (a *App) connectRedis(ctx context.Context, opts Options) *redis.Client {
	if a.cfg.SessionBackend != "redis" && !opts.RateLimit.Enabled {
		return nil
	}
	if opts.Redis.Addr == "" {
		return nil
	}
	rdb, err := config.NewRedisClient(ctx, opts.Redis)
	if err != nil {
		a.log.WithError(err).WithField("addr", opts.Redis.Addr).Warn("redis unavailable; rate limiting disabled")
		return nil
	}
	return rdb
}

func (a *App) persister() (session.Persister, error) {
	switch a.cfg.SessionBackend {
	case "", "sql":
		return session.SQLPersister{Repo: repository.NewSessionRepo(a.DB)}, nil
	case "file":
		return session.NewFilePersister(a.cfg.SessionFile), nil
	case "redis":
		if a.redis == nil {
			return nil, errors.New("SESSION_BACKEND=redis but redis is unreachable")
		}
		return session.NewRedisPersister(a.redis), nil
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", a.cfg.SessionBackend)
	}
}

// publisher returns the event pipeline.  With RabbitMQ, events reach the
// local hub through the consumer like those of every other instance.
func (a *App) publisher(bg context.Context) events.Publisher {
	var next events.Publisher = events.Local{Sink: a.Hub}
	if a.cfg.EventsBackend == "amqp" {
		a.amqp = events.NewAMQPPublisher(a.cfg.AMQPURL, a.cfg.EventsExchange)
		next = a.amqp
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := events.Consume(bg, a.cfg.AMQPURL, a.cfg.EventsExchange, a.Hub, a.log); err != nil && !errors.Is(err, context.Canceled) {
				a.log.WithError(err).Error("events: consumer stopped")
			}
		}()
	}
	return events.Observed{Next: next, Log: a.log, Observe: a.Metrics.EventPublished}
}

func (a *App) sweep(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.Sessions.Sweep(ctx); n > 0 {
				a.log.WithField("expired", n).Info("session: swept expired sessions")
			}
		}
	}
}

// Start serves HTTP on addr until Shutdown.
func (a *App) Start(addr string) error {
	a.log.WithFields(logrus.Fields{"addr": addr, "env": a.cfg.Env, "db": a.cfg.DB.Driver}).Info("listening")
	if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and releases
// every resource.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.Echo.Shutdown(ctx)
	a.Close()
	return err
}

// Close stops background workers and closes connections.  It is safe to
// call more than once.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if a.amqp != nil {
		_ = a.amqp.Close()
		a.amqp = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.DB != nil {
		_ = a.DB.Close()
		a.DB = nil
	}
}

// Package daemon wires crmd: the message store, gateway driver, ingest engine, realtime feed
// and HTTP API, started and stopped as one fx application.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/matheus3301/wppcrm/internal/api"
	"github.com/matheus3301/wppcrm/internal/auth"
	"github.com/matheus3301/wppcrm/internal/bus"
	"github.com/matheus3301/wppcrm/internal/config"
	"github.com/matheus3301/wppcrm/internal/gateway"
	"github.com/matheus3301/wppcrm/internal/gateway/zapi"
	"github.com/matheus3301/wppcrm/internal/ingest"
	"github.com/matheus3301/wppcrm/internal/instance"
	"github.com/matheus3301/wppcrm/internal/lock"
	"github.com/matheus3301/wppcrm/internal/logging"
	"github.com/matheus3301/wppcrm/internal/metrics"
	"github.com/matheus3301/wppcrm/internal/realtime"
	"github.com/matheus3301/wppcrm/internal/status"
	"github.com/matheus3301/wppcrm/internal/store"
	"github.com/matheus3301/wppcrm/internal/wa"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance   string
	ConfigPath string
	Addr       string // optional listen address override; empty = config value
}

// Gateway is the configured outbound driver. Adapter is set only for the whatsmeow driver.
type Gateway struct {
	Driver  string
	Sender  gateway.Sender
	Adapter *wa.Adapter
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideMetrics,
			provideStateMachine,
			provideLock,
			provideStore,
			provideGateway,
			provideIngest,
			provideRealtime,
			provideAuth,
			provideLimiter,
			provideJanitor,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = instance.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if p.Addr != "" {
		cfg.Server.Addr = p.Addr
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(instance.LogPath(p.Instance), p.Instance)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideMetrics(b *bus.Bus) *metrics.Metrics {
	m := metrics.New()
	m.WatchDrops(b)
	return m
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := instance.EnsureDir(p.Instance); err != nil {
		return nil, err
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.Instance))
	l, err := lock.Acquire(instance.Dir(p.Instance))
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never migrate the same file.
func provideStore(p Params, cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = instance.DBPath(p.Instance)
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideGateway(p Params, cfg *config.Config, b *bus.Bus, logger *zap.Logger) (*Gateway, error) {
	g := &Gateway{Driver: cfg.Gateway.Driver}
	switch cfg.Gateway.Driver {
	case config.DriverWhatsmeow:
		adapter, err := wa.NewAdapter(context.Background(), instance.DeviceDBPath(p.Instance), cfg.Gateway.Timeout.Duration, b, logger)
		if err != nil {
			return nil, err
		}
		g.Sender, g.Adapter = adapter, adapter
	default:
		if cfg.Gateway.URL == "" {
			logger.Warn("gateway url not set, sends will fail until ZAPI_URL is configured")
			g.Sender = gateway.Unconfigured{}
			break
		}
		g.Sender = zapi.New(cfg.Gateway.URL, cfg.Gateway.ClientToken, cfg.Gateway.Timeout.Duration, logger)
	}
	return g, nil
}

func provideIngest(db *store.DB, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *ingest.Engine {
	return ingest.NewEngine(db, b, m, logger)
}

func provideRealtime(b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *realtime.Server {
	return realtime.NewServer(realtime.NewHub(m, logger), b, logger)
}

func provideAuth(db *store.DB, cfg *config.Config) *auth.Service {
	return auth.NewService(db, cfg.Auth.TokenTTL.Duration)
}

func provideLimiter(cfg *config.Config) *auth.LimiterPool {
	return auth.NewLimiterPool(cfg.Limits.RPS, cfg.Limits.Burst)
}

func provideJanitor(db *store.DB, cfg *config.Config, logger *zap.Logger) *auth.Janitor {
	return auth.NewJanitor(db, cfg.Auth.CleanupCron, logger)
}

func provideHandler(
	p Params,
	db *store.DB,
	b *bus.Bus,
	engine *ingest.Engine,
	gw *Gateway,
	machine *status.Machine,
	authSvc *auth.Service,
	limiter *auth.LimiterPool,
	rt *realtime.Server,
	m *metrics.Metrics,
	logger *zap.Logger,
) *api.Handler {
	d := api.Deps{
		Instance: p.Instance,
		Driver:   gw.Driver,
		DB:       db,
		Bus:      b,
		Ingest:   engine,
		Gateway:  gw.Sender,
		Machine:  machine,
		Auth:     authSvc,
		Limiter:  limiter,
		Realtime: rt,
		Metrics:  m,
		Logger:   logger,
	}
	if gw.Adapter != nil {
		d.Pairer = gw.Adapter
	}
	return api.NewHandler(d)
}

type lifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Gateway   *Gateway
	Engine    *ingest.Engine
	Realtime  *realtime.Server
	Handler   *api.Handler
	Janitor   *auth.Janitor
	Limiter   *auth.LimiterPool
	Machine   *status.Machine
	Metrics   *metrics.Metrics
	Bus       *bus.Bus
	Logger    *zap.Logger
}

func registerLifecycle(p lifecycleParams) {
	logger := p.Logger
	var unwatch func()

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			unwatch = watchGatewayState(p.Bus, p.Metrics)

			// Ingest consumes inbound.* events from the gateway drivers.
			p.Engine.Start(context.Background())
			p.Realtime.Start(context.Background())
			p.Handler.Start(context.Background())
			if p.Config.Auth.CleanupCron != "" {
				p.Janitor.Start(context.Background())
			}

			go func() {
				if err := p.Server.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			adapter := p.Gateway.Adapter
			if adapter == nil {
				// The HTTP gateway has no session to establish.
				_ = p.Machine.Transition(status.Connected)
				return nil
			}

			handler := wa.NewEventHandler(p.Bus, p.Machine, adapter, logger)
			adapter.RegisterEventHandler(handler.Handle)
			if adapter.IsLoggedIn() {
				_ = p.Machine.Transition(status.Connecting)
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = p.Machine.Transition(status.Error)
					}
				}()
			} else {
				logger.Info("no credentials found, pairing required")
				_ = p.Machine.Transition(status.AuthRequired)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := p.Server.Stop(ctx)
			if p.Gateway.Adapter != nil {
				p.Gateway.Adapter.Disconnect()
			}
			p.Janitor.Stop()
			p.Handler.Stop()
			p.Realtime.Stop()
			p.Engine.Stop()
			p.Limiter.Shutdown()
			if unwatch != nil {
				unwatch()
			}
			err = multierr.Append(err, p.DB.Close())
			if lerr := p.Lock.Release(); lerr != nil {
				logger.Warn("error releasing lock", zap.Error(lerr))
			}
			logger.Info("daemon stopped")
			return err
		},
	})
}

// watchGatewayState mirrors gateway state changes into the gateway_up gauge.
func watchGatewayState(b *bus.Bus, m *metrics.Metrics) func() {
	ch, unsub := b.Subscribe(bus.KindGatewayState, 16)
	go func() {
		for evt := range ch {
			if change, ok := evt.Payload.(status.Change); ok {
				m.GatewayUp(change.To.CanSend())
			}
		}
	}()
	return unsub
}

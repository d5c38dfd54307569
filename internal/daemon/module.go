// Package daemon composes the sync core with fx: configuration, the
// session lock, the archive database, the socket stack and the control
// API, plus the lifecycle hooks that start and stop them in order.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lbarreto/chatsync/internal/api"
	"github.com/lbarreto/chatsync/internal/archive"
	"github.com/lbarreto/chatsync/internal/bus"
	"github.com/lbarreto/chatsync/internal/cache"
	"github.com/lbarreto/chatsync/internal/config"
	"github.com/lbarreto/chatsync/internal/httpapi"
	"github.com/lbarreto/chatsync/internal/lock"
	"github.com/lbarreto/chatsync/internal/logging"
	"github.com/lbarreto/chatsync/internal/metrics"
	"github.com/lbarreto/chatsync/internal/optimistic"
	"github.com/lbarreto/chatsync/internal/router"
	"github.com/lbarreto/chatsync/internal/session"
	"github.com/lbarreto/chatsync/internal/status"
	"github.com/lbarreto/chatsync/internal/store"
	intsync "github.com/lbarreto/chatsync/internal/sync"
	"github.com/lbarreto/chatsync/internal/ws"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Listen      string // optional override for testing; empty = session config
}

// Module returns the fx module for the daemon, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMetrics,
			provideCache,
			provideAPIClient,
			provideSocketStack,
			provideCoordinator,
			provideSyncEngine,
			provideArchive,
			provideHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideConfig(p Params) (*config.SessionConfig, error) {
	cfg, err := config.LoadSession(session.SessionConfigPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if p.Listen != "" {
		cfg.HTTP.Listen = p.Listen
	}
	return cfg, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
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
	logger.Info("archive initialized", zap.String("path", dbPath))
	return db, nil
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideCache() *cache.Store {
	return cache.NewStore()
}

func provideAPIClient(cfg *config.SessionConfig) *api.Client {
	return api.NewClient(cfg.Server.HTTPBase(), cfg.Auth.Token)
}

// provideSocketStack wires the connection manager, the frame router, the
// cache reconciler and the subscription registry. They form a cycle
// (conn feeds router, router feeds reconciler, reconciler subscribes via
// the registry, the registry sends through conn), so they are built
// together; the router pointer is bound before any frame can arrive
// because frames only flow after Connect.
func provideSocketStack(cfg *config.SessionConfig, machine *status.Machine, c *cache.Store, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) (*ws.Conn, *ws.Registry, *router.Router, *cache.Reconciler) {
	var rt *router.Router

	conn := ws.NewConn(
		ws.URL(cfg.Server.Host, cfg.Server.Secure, cfg.Auth.Token),
		machine,
		func(raw []byte) { rt.Route(raw) },
		logger,
		ws.Options{},
		ws.Hooks{
			OnReconnect:    m.Reconnects.Inc,
			OnSendDropped:  m.SendsDropped.Inc,
			OnFrameDropped: m.FramesDropped.Inc,
		},
	)

	registry := ws.NewRegistry(conn, b, logger)
	reconciler := cache.NewReconciler(c, registry, b, cfg.Auth.UserID, logger)
	rt = router.New(reconciler, logger, router.Hooks{
		Observed: func(eventType string) {
			m.FramesTotal.WithLabelValues(eventType).Inc()
		},
		Dropped: m.FramesDropped.Inc,
	})

	return conn, registry, rt, reconciler
}

func provideCoordinator(c *cache.Store, client *api.Client, registry *ws.Registry, b *bus.Bus, cfg *config.SessionConfig, m *metrics.Metrics, logger *zap.Logger) *optimistic.Coordinator {
	return optimistic.NewCoordinator(c, client, registry, b, cfg.Auth.UserID, logger, optimistic.Hooks{
		OnRollback: m.Rollbacks.Inc,
		OnOutcome: func(kind, outcome string) {
			m.MutationsTotal.WithLabelValues(kind, outcome).Inc()
		},
	})
}

func provideSyncEngine(c *cache.Store, client *api.Client, registry *ws.Registry, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(c, client, registry, b, logger)
}

func provideArchive(db *store.DB, b *bus.Bus, logger *zap.Logger) *archive.Engine {
	return archive.NewEngine(db, b, logger)
}

func provideHTTPServer(p Params, machine *status.Machine, c *cache.Store, coord *optimistic.Coordinator, engine *intsync.Engine, registry *ws.Registry, conn *ws.Conn, db *store.DB, m *metrics.Metrics, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(p.SessionName, machine, c, coord, engine, registry, conn, db, m, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.SessionConfig, srv *httpapi.Server, lk *lock.Lock, conn *ws.Conn, registry *ws.Registry, engine *intsync.Engine, arch *archive.Engine, c *cache.Store, b *bus.Bus, m *metrics.Metrics, db *store.DB, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Bus consumers first so no early event is missed.
			registry.Start(runCtx)
			engine.Start(runCtx)
			arch.Start(runCtx)
			go watchGauges(runCtx, b, c, m)

			go func() {
				if err := srv.Start(cfg.HTTP.Listen); err != nil {
					logger.Error("control api error", zap.Error(err))
				}
			}()

			go func() {
				if err := conn.Connect(runCtx); err != nil {
					logger.Warn("initial connect failed, retry scheduled", zap.Error(err))
				}
				// Seed the read model over REST; works even while the
				// socket is still coming up.
				if err := engine.Refresh(runCtx); err != nil {
					logger.Error("initial chat list seed failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("control api shutdown error", zap.Error(err))
			}
			conn.Disconnect()
			engine.Stop()
			arch.Stop()
			registry.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing archive", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// watchGauges mirrors connection state and cache sizes into metrics.
func watchGauges(ctx context.Context, b *bus.Bus, c *cache.Store, m *metrics.Metrics) {
	ch, unsub := b.Subscribe("session.", 64)
	defer unsub()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	stateValue := map[status.State]float64{
		status.Disconnected: 0,
		status.Connecting:   1,
		status.Connected:    2,
		status.Reconnecting: 3,
	}

	for {
		select {
		case evt := <-ch:
			if change, ok := evt.Payload.(status.Change); ok {
				m.ConnectionState.Set(stateValue[change.To])
			}
		case <-ticker.C:
			chats, msgs := c.Sizes()
			m.CachedChats.Set(float64(chats))
			m.CachedMessages.Set(float64(msgs))
		case <-ctx.Done():
			return
		}
	}
}

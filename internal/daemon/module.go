// Package daemon assembles chatd: the HTTP and push surfaces, the store,
// presence and the admin socket, wired with fx.
package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/matheus3301/chatsync/internal/admin"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/hub"
	"github.com/matheus3301/chatsync/internal/instance"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/presence"
	"github.com/matheus3301/chatsync/internal/receipt"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/store/mongostore"
	"github.com/matheus3301/chatsync/internal/suggest"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved instance configuration passed to the fx module.
type Params struct {
	Instance string
	Config   *config.Config
	// Overrides for testing; empty means the instance default.
	SocketPath string
	DataDir    string
	Logger     *zap.Logger
}

func (p Params) dir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return instance.Dir(p.Instance)
}

// Presence bundles the registry with the optional cross-instance relay.
type Presence struct {
	Registry presence.Registry
	Relay    presence.Relay
	redis    *redis.Client
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideLock,
			provideStore,
			providePresence,
			provideReceipts,
			provideHub,
			provideHistory,
			provideSuggest,
			provideMedia,
			provideHandler,
			provideHTTPServer,
			provideAdmin,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(instance.LogPath(p.Instance, "chatd"), "chatd", logging.Options{})
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if p.DataDir == "" {
		if err := instance.EnsureDir(p.Instance); err != nil {
			return nil, err
		}
	}
	logger.Info("acquiring instance lock", zap.String("instance", p.Instance))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

// provideStore opens the configured store. The lock is a parameter so the
// database is never opened by a second process.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (store.Repository, error) {
	cfg := p.Config.Server.Store
	switch cfg.Driver {
	case config.DriverMongo:
		st, err := mongostore.Open(context.Background(), cfg.DSN, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store initialized", zap.String("driver", cfg.Driver), zap.String("database", cfg.Database))
		return st, nil
	case config.DriverSQLite, config.DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnsupportedDriver, cfg.Driver)
	}

	dsn := cfg.DSN
	if dsn == "" && cfg.Driver == config.DriverSQLite {
		dsn = filepath.Join(p.dir(), "chat.db")
	}
	db, err := store.Open(cfg.Driver, dsn)
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
	logger.Info("store initialized", zap.String("driver", cfg.Driver))
	return db, nil
}

func providePresence(p Params, logger *zap.Logger) (*Presence, error) {
	cfg := p.Config.Server.Presence
	if cfg.Backend != config.PresenceRedis {
		return &Presence{Registry: presence.NewMemory()}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}
	reg := presence.NewRedis(rdb, cfg.Prefix)
	removed, err := reg.Clear(context.Background(), instanceID(p))
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	logger.Info("presence initialized",
		zap.String("backend", cfg.Backend),
		zap.String("addr", cfg.RedisAddr),
		zap.Int("stale_entries", removed),
	)
	return &Presence{
		Registry: reg,
		Relay:    presence.NewRedisRelay(rdb, cfg.Prefix, logger),
		redis:    rdb,
	}, nil
}

func instanceID(p Params) string {
	if id := p.Config.Server.InstanceID; id != "" {
		return id
	}
	return p.Instance
}

func provideReceipts(st store.Repository, pr *Presence, logger *zap.Logger) *receipt.Service {
	return receipt.NewService(st, pr.Registry, logger)
}

func provideHub(p Params, st store.Repository, pr *Presence, rc *receipt.Service, logger *zap.Logger) *hub.Hub {
	cfg := p.Config.Server
	return hub.New(pr.Registry, rc, st, hub.Options{
		Instance:       instanceID(p),
		Workers:        cfg.Workers,
		SendBuffer:     cfg.SendBuffer,
		AllowedOrigins: cfg.AllowedOrigins,
		Relay:          pr.Relay,
		Logger:         logger.Named("hub"),
	})
}

func provideHistory(p Params, st store.Repository) *history.Service {
	return history.NewService(st, p.Config.Server.HistoryLimit)
}

func provideSuggest(p Params, st store.Repository, logger *zap.Logger) *suggest.Service {
	return suggest.NewService(st, suggest.Canned{}, p.Config.Server.ReplyQuota, logger)
}

func mediaDir(p Params) string {
	if dir := p.Config.Server.Media.Dir; dir != "" {
		return dir
	}
	return filepath.Join(p.dir(), "media")
}

func provideMedia(p Params, logger *zap.Logger) *media.DiskStore {
	cfg := p.Config.Server.Media
	return &media.DiskStore{
		Dir:      mediaDir(p),
		BaseURL:  cfg.PublicBaseURL,
		MaxWidth: cfg.MaxWidth,
		Logger:   logger,
	}
}

func provideHandler(st store.Repository, hs *history.Service, rc *receipt.Service, sg *suggest.Service, md *media.DiskStore, h *hub.Hub, logger *zap.Logger) *api.Handler {
	return api.NewHandler(api.Deps{
		Store:    st,
		History:  hs,
		Receipts: rc,
		Suggest:  sg,
		Media:    md,
		Push:     h,
		Logger:   logger.Named("api"),
	})
}

func provideHTTPServer(p Params, handler *api.Handler, logger *zap.Logger) (*api.Server, error) {
	router := handler.Router(api.RouterOptions{
		AllowedOrigins: p.Config.Server.AllowedOrigins,
		MediaDir:       mediaDir(p),
	})
	return api.NewServer(p.Config.Server.Listen, router, logger)
}

func provideAdmin(st store.Repository, h *hub.Hub, p Params) *admin.Service {
	return admin.NewService(st, h, p.Config.Server.Store.Driver)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, httpSrv *api.Server, h *hub.Hub, st store.Repository, pr *Presence, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			h.Start()

			go func() {
				if err := httpSrv.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
				}
			}()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			httpSrv.Stop(ctx)
			h.Stop()
			srv.Stop(ctx)
			if pr.redis != nil {
				if err := pr.redis.Close(); err != nil {
					logger.Warn("error closing redis", zap.Error(err))
				}
			}
			if err := st.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

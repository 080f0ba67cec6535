// internal/server/module.go
// Composition root: wires storage, the realtime layer and the HTTP API

package server

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/auth"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/calls"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/clock"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/database"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/config"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/guesttoken"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/logging"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/messaging"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/realtime"
)

// Module returns the fx module for the collaboration server, composing all
// providers and lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("server",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideDB,
			provideRelay,
			provideClock,
			provideConversationStore,
			provideHub,
			providePresence,
			provideTyping,
			provideMessagingService,
			messaging.NewHandler,
			provideWSHandler,
			provideGuestIssuer,
			provideAuthorizer,
			provideCallService,
			provideGuestLimiter,
			calls.NewHandler,
			realtime.NewPresenceHandler,
			provideAuthMiddleware,
			NewRouter,
			NewHTTPServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogLevel, cfg.Environment)
}

func provideDB(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	result, err := database.Migrate(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("driver", cfg.DatabaseDriver))

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

// provideRelay connects the cross-node relay. Without REDIS_URL the hub runs
// single-node and the relay is nil.
func provideRelay(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (realtime.Relay, error) {
	if cfg.RedisURL == "" {
		logger.Info("redis not configured, running single-node")
		return nil, nil
	}
	client, err := database.NewRedisClientFromURL(context.Background(), cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	logger.Info("redis relay connected", zap.String("channel", realtime.DefaultRelayChannel))
	return realtime.NewRedisRelay(client, realtime.DefaultRelayChannel, logger), nil
}

func provideClock() clock.Clock {
	return clock.New()
}

func provideConversationStore(db *sqlx.DB) *messaging.SQLStore {
	return messaging.NewSQLStore(db)
}

func provideHub(store *messaging.SQLStore, relay realtime.Relay, logger *zap.Logger) *realtime.Hub {
	return realtime.NewHub(store, relay, logger)
}

func providePresence(cfg *config.Config, hub *realtime.Hub, clk clock.Clock, logger *zap.Logger) *realtime.Presence {
	return realtime.NewPresence(hub, cfg.PresenceGracePeriod, clk, logger)
}

func provideTyping(cfg *config.Config, hub *realtime.Hub, clk clock.Clock, logger *zap.Logger) *realtime.Typing {
	return realtime.NewTyping(hub, cfg.TypingTimeout, cfg.TypingRebroadcastInterval, clk, logger)
}

func provideMessagingService(cfg *config.Config, store *messaging.SQLStore, hub *realtime.Hub, clk clock.Clock, logger *zap.Logger) *messaging.Service {
	return messaging.NewService(store, hub, clk, cfg.MaxMessageLength, logger)
}

func provideWSHandler(cfg *config.Config, service *messaging.Service, hub *realtime.Hub, presence *realtime.Presence, typing *realtime.Typing, logger *zap.Logger) *messaging.WSHandler {
	return messaging.NewWSHandler(service, hub, presence, typing, cfg.AllowedOrigins, logger)
}

// provideGuestIssuer uses GUEST_TOKEN_SECRET when set, otherwise a key
// derived from the access-token secret.
func provideGuestIssuer(cfg *config.Config, clk clock.Clock) (*guesttoken.Issuer, error) {
	key := []byte(cfg.GuestTokenSecret)
	if len(key) == 0 {
		derived, err := guesttoken.DeriveKey(cfg.JWTSecret)
		if err != nil {
			return nil, err
		}
		key = derived
	}
	return guesttoken.NewIssuer(key, cfg.GuestTokenTTL, clk), nil
}

func provideAuthorizer(cfg *config.Config) *auth.RoleAuthorizer {
	return auth.NewRoleAuthorizer(cfg.ElevatedRoles)
}

func provideCallService(db *sqlx.DB, issuer *guesttoken.Issuer, store *messaging.SQLStore, authorizer *auth.RoleAuthorizer, hub *realtime.Hub, clk clock.Clock, logger *zap.Logger) *calls.Service {
	return calls.NewService(calls.NewSQLStore(db), issuer, store, authorizer, hub, clk, logger)
}

func provideGuestLimiter(cfg *config.Config) *utils.RateLimiter {
	return utils.NewRateLimiter(cfg.GuestAccessRateLimit, cfg.GuestAccessRateWindow)
}

func provideAuthMiddleware(cfg *config.Config, logger *zap.Logger) *auth.Middleware {
	return auth.NewMiddleware(cfg.JWTSecret, logger.Named("auth"))
}

// internal/server/lifecycle.go

package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/config"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/realtime"
)

const limiterCleanupInterval = time.Minute

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *http.Server, hub *realtime.Hub, limiter *utils.RateLimiter, logger *zap.Logger) {
	stopCleanup := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Bind synchronously so a taken port fails startup.
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}

			// Relay consumer outlives the start context.
			hub.Start(context.Background())

			go func() {
				ticker := time.NewTicker(limiterCleanupInterval)
				defer ticker.Stop()
				for {
					select {
					case <-stopCleanup:
						return
					case <-ticker.C:
						limiter.Cleanup()
					}
				}
			}()

			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			logger.Info("server started",
				zap.String("addr", ln.Addr().String()),
				zap.String("environment", cfg.Environment))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stopCleanup)

			// Hijacked WebSocket connections are not tracked by Shutdown;
			// closing the hub releases them.
			err := srv.Shutdown(ctx)
			hub.Close()

			logger.Info("server stopped")
			_ = logger.Sync()
			return err
		},
	})
}

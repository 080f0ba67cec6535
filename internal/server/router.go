// internal/server/router.go

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/auth"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/calls"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/utils"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/config"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/messaging"
	"github.com/rolandconsultnig/ewers-w2-sub002/internal/realtime"
)

var startTime = time.Now()

// RouterParams collects the handlers mounted on the API router
type RouterParams struct {
	fx.In

	Config    *config.Config
	Logger    *zap.Logger
	Auth      *auth.Middleware
	Hub       *realtime.Hub
	Messaging *messaging.Handler
	WebSocket *messaging.WSHandler
	Calls     *calls.Handler
	Presence  *realtime.PresenceHandler
}

// NewRouter builds the HTTP handler for the whole API
func NewRouter(p RouterParams) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", healthCheck(p.Hub)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Call routes go first: their guest endpoints are public.
	calls.RegisterRoutes(router, p.Calls, p.Auth.Authenticate)
	messaging.RegisterRoutes(router, p.Messaging, p.WebSocket, p.Auth.Authenticate)
	realtime.RegisterPresenceRoutes(router, p.Presence, p.Auth.Authenticate)

	return chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(p.Logger),
		middleware.Recoverer,
		corsMiddleware(p.Config.AllowedOrigins),
	).Handler(router)
}

// NewHTTPServer creates the listener configuration for handler
func NewHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// healthCheck returns server health status
func healthCheck(hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		utils.SuccessResponse(w, map[string]interface{}{
			"status":      "healthy",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"uptime":      time.Since(startTime).String(),
			"connections": hub.ActiveConnections(),
		}, http.StatusOK)
	}
}

// requestLogger logs every request once it completes
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// corsMiddleware handles CORS for the configured origins
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := allowOrigin(allowedOrigins, r.Header.Get("Origin")); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allowOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

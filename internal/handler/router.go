package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/campuschat/internal/chat"
	"github.com/campuschat/internal/middleware"
	"github.com/campuschat/internal/ws"
)

// RouterConfig collects what the HTTP surface needs.
type RouterConfig struct {
	Service            *chat.Service
	Hub                *ws.Hub
	DB                 Pinger
	AllowedOrigins     []string
	RateLimitPerMinute int
}

// NewRouter builds the Query Service, the health check and the gateway upgrade on one
// chi router.
func NewRouter(rc RouterConfig) http.Handler {
	origins := rc.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket: иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compressed := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	health := NewHealthHandler(rc.DB)
	r.Get("/api/health", health.Health)

	if rc.Hub != nil {
		wsH := NewWSHandler(rc.Hub, strings.Join(origins, ","))
		r.Get("/ws", wsH.ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(rc.RateLimitPerMinute))
		r.Get("/api/users", NewUserHandler(rc.Service).GetUsers)
		r.Route("/api/chat", NewChatHandler(rc.Service).Mount)
	})
	return r
}

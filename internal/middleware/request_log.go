package middleware

import (
	"net/http"
	"time"

	"github.com/campuschat/internal/logger"
)

// RequestLog пишет метод, путь и длительность запроса; ответы 5xx логируются как ошибки.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrap, ok := w.(*responseWriter)
		if !ok {
			wrap = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
		next.ServeHTTP(wrap, r)
		if wrap.status >= http.StatusInternalServerError {
			logger.Errorf("http %s %s status=%d", r.Method, r.URL.Path, wrap.status)
		}
	})
}

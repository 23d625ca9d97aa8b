package app

import (
	"net/http"
	"time"

	"github.com/evan-idocoding/lifekit/ops"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler returns the ops router:
//
//	GET  /healthz      liveness
//	GET  /readyz       the product-page scope is open
//	GET  /scopes       scope snapshots
//	POST /tasks/cancel cancel a named task (?scope=&name=)
//	GET  /log/level    current log level; POST ?level= to change it
//	GET  /metrics      Prometheus metrics
func (a *App) Handler() http.Handler {
	src := ops.SourceFunc(a.Scopes)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/healthz", ops.HealthzHandler())
	r.Method(http.MethodHead, "/healthz", ops.HealthzHandler())
	r.Method(http.MethodGet, "/readyz", ops.ReadyzHandler(src, []string{pageName}))
	r.Method(http.MethodGet, "/scopes", ops.ScopesSnapshotHandler(src))
	r.Method(http.MethodPost, "/tasks/cancel", ops.TaskCancelHandler(src))
	r.Method(http.MethodGet, "/log/level", ops.LogLevelGetHandler(a.log.Level))
	r.Method(http.MethodPost, "/log/level", ops.LogLevelSetHandler(a.log.Level))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{}))
	return r
}

func (a *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.log.Debug("ops request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

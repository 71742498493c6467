package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/jaminalder/codex-greed/internal/app"
)

// NewServer wires routes and returns an http.Handler.
func NewServer(s *app.Service, log logrus.FieldLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	h := &handlers{svc: s, tpl: loadTemplates(), log: log}
	s.SetRenderer(h.renderResult)
	r.Get("/", h.index)
	r.Get("/healthz", h.health)
	r.Post("/roll", h.rollPrivate)
	r.Route("/channels/{channel}", func(r chi.Router) {
		r.Get("/", h.view)
		r.Post("/roll", h.rollChannel)
		r.Get("/events", h.events)
	})
	return r
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}

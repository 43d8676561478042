package http

import (
	"encoding/json"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/storynotes/pkg/usecase"
	"github.com/secmon-lab/storynotes/pkg/utils/logging"
)

// Default names of the trusted identity headers set by the authenticating proxy
const (
	DefaultPrincipalHeader   = "x-auth-user-id"
	DefaultDisplayNameHeader = "x-auth-username"
)

type Server struct {
	router            *chi.Mux
	uc                *usecase.UseCases
	production        bool
	principalHeader   string
	displayNameHeader string
}

type Options func(*Server)

// WithProduction marks the session cookie as Secure
func WithProduction(production bool) Options {
	return func(s *Server) {
		s.production = production
	}
}

func WithPrincipalHeader(name string) Options {
	return func(s *Server) {
		if name != "" {
			s.principalHeader = name
		}
	}
}

func WithDisplayNameHeader(name string) Options {
	return func(s *Server) {
		if name != "" {
			s.displayNameHeader = name
		}
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:            r,
		uc:                uc,
		principalHeader:   DefaultPrincipalHeader,
		displayNameHeader: DefaultDisplayNameHeader,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(principalMiddleware(s.principalHeader, s.displayNameHeader))

		r.Post("/story", s.ingestStoryHandler)
		r.Put("/story/{id}", s.updateStoryHandler)
		r.Get("/stories", s.listStoriesHandler)
		r.Delete("/stories/delete-all", s.deleteAllStoriesHandler)
		r.Get("/timeline", s.timelineHandler)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger binds a logger carrying the request ID to the request context
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.From(ctx).With("request_id", middleware.GetReqID(ctx))
		next.ServeHTTP(w, r.WithContext(logging.With(ctx, logger)))
	})
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.From(r.Context()).Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.From(r.Context()).Error("failed to marshal response", "error", err.Error())
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data) //nolint:errcheck // header already committed
}

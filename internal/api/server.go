// Package api exposes search and chat over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/dinescout/internal/chat"
	"github.com/sells-group/dinescout/internal/model"
	"github.com/sells-group/dinescout/internal/search"
)

// Searcher answers restaurant searches.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
	SearchMany(ctx context.Context, req search.Request, neighborhoods []string) (*search.MultiResult, error)
}

// Chatter serves one streamed chat exchange.
type Chatter interface {
	Serve(ctx context.Context, w io.Writer, req chat.Request) (*chat.Exchange, error)
}

// Records is the slice of the entity store the HTTP surface reads directly.
type Records interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, placeID string) (*model.Restaurant, error)
}

// Config holds the HTTP surface settings.
type Config struct {
	CORSOrigins    []string
	ChatRateLimit  int
	ChatRateWindow time.Duration
	MaxBodyBytes   int64
}

// Server holds the handler dependencies.
type Server struct {
	search   Searcher
	chat     Chatter
	store    Records
	cfg      Config
	validate *validator.Validate
}

// New returns a Server. chat may be nil when no generative service is
// configured; the chat route then answers 503.
func New(searcher Searcher, chatter Chatter, store Records, cfg Config) *Server {
	if cfg.ChatRateLimit <= 0 {
		cfg.ChatRateLimit = 20
	}
	if cfg.ChatRateWindow <= 0 {
		cfg.ChatRateWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &Server{
		search:   searcher,
		chat:     chatter,
		store:    store,
		cfg:      cfg,
		validate: validator.New(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/restaurants/search", s.handleSearch)
		r.Get("/restaurants/{placeID}", s.handleRestaurant)
		r.With(httprate.LimitByIP(s.cfg.ChatRateLimit, s.cfg.ChatRateWindow)).Post("/chat", s.handleChat)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		zap.L().Warn("api: health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs each request with its chi request ID.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

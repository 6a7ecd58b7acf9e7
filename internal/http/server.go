package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"moneybook/internal/auth"
	"moneybook/internal/log"
	"moneybook/internal/middleware/metrics"
	"moneybook/internal/middleware/ratelimit"
	"moneybook/internal/middleware/security"
	"moneybook/internal/middleware/trace"
	"moneybook/internal/ports"

	"github.com/gorilla/mux"
)

const (
	readTimeout       = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second

	defaultMaxUploadBytes = 8 << 20
	imageCacheMaxAge      = 7 * 24 * 3600
)

// Config holds the knobs of the API server.
type Config struct {
	Addr               string
	MaxUploadBytes     int64
	RateLimitPerMinute int
	// ServeImages mounts /storage/images/{key} backed by the blob store.
	// Blob backends without a public host of their own need it.
	ServeImages bool
	Logger      *log.Logger
}

type Server struct {
	http.Server
	svc      TransactionService
	identity ports.IdentityProvider
	images   ports.BlobStore
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger

	maxUploadBytes int64
	shutdownOnce   sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, svc TransactionService, identity ports.IdentityProvider, images ports.BlobStore) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Discard()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		svc:      svc,
		identity: identity,
		images:   images,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		detector:       security.NewDetector(),
		logger:         logger.WithComponent(log.ComponentHTTP),
		maxUploadBytes: maxUpload,
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusNotFound, msgRouteNotFound).Write(w)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})
	router.Use(metrics.Middleware)

	router.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet, http.MethodHead)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	if cfg.ServeImages && images != nil {
		router.Handle("/storage/images/{key}",
			security.StaticAssetMiddleware(imageCacheMaxAge)(http.HandlerFunc(s.handleImage))).
			Methods(http.MethodGet, http.MethodHead)
	}

	s.mountAPI(router, "/api")
	s.mountAPI(router, "")

	var handler http.Handler = router
	handler = s.detector.Middleware(logger)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(logger, s.detector.ExtractClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// mountAPI registers the authenticated transaction routes under prefix.
func (s *Server) mountAPI(router *mux.Router, prefix string) {
	protect := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		handler = auth.Middleware(s.identity, s.logger)(handler)
		handler = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			TooManyRequestsError().Write(w)
		})(handler)
		return handler
	}

	router.Handle(prefix+"/transactions", protect(s.handleListTransactions)).Methods(http.MethodGet)
	router.Handle(prefix+"/transaction/{id}", protect(s.handleShowTransaction)).Methods(http.MethodGet)
	router.Handle(prefix+"/transaction-store", protect(s.limitBody(s.handleStoreTransaction))).Methods(http.MethodPost)
	router.Handle(prefix+"/transaction-update/{id}", protect(s.limitBody(s.handleUpdateTransaction))).Methods(http.MethodPost)
	router.Handle(prefix+"/transaction-delete/{id}", protect(s.handleDeleteTransaction)).Methods(http.MethodPost)
}

// limitBody caps the request body at the configured upload size.
func (s *Server) limitBody(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		next(w, r)
	}
}

// Shutdown gracefully shuts down the server and its rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

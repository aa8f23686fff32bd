package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobcost/internal/cache"
	"jobcost/internal/core"
	applog "jobcost/internal/log"
	appweb "jobcost/web"
)

// requestTimeout bounds handlers that may touch the store.
const requestTimeout = 7 * time.Second

const pingTimeout = 2 * time.Second

// Snapshots is the read side of the snapshot holder plus manual refresh.
type Snapshots interface {
	Current() *core.Dataset
	Ready() bool
	LastFailure() (time.Time, error)
	Refresh(ctx context.Context, reason string) (*core.Dataset, error)
}

// StoreChecker is pinged by /readyz.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server
	templates   *template.Template
	snapshots   Snapshots
	views       *cache.ViewCache
	logger      *applog.Logger
	access      *applog.StructuredLogger
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	store       StoreChecker

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, snaps Snapshots, views *cache.ViewCache, logger *applog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		snapshots:   snaps,
		views:       views,
		logger:      logger.WithComponent(applog.ComponentHTTP),
		access:      applog.NewStructuredLogger(logger),
		rateLimiter: newRateLimiter(10, time.Minute),
		metrics:     &securityMetrics{},
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", applog.FieldError, err.Error())
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err.Error())
	}

	mux.HandleFunc("/", s.withSecurityHeaders(s.handleIndex))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/ui/dashboard", s.withSecurityHeaders(s.handleDashboardPartial))
	mux.HandleFunc("/api/view", s.withSecurityHeaders(s.handleAPIView))
	mux.HandleFunc("/api/projects", s.withSecurityHeaders(s.handleAPIProjects))
	mux.HandleFunc("/api/stats", s.withSecurityHeaders(s.handleAPIStats))
	mux.HandleFunc("/admin/refresh", s.withSecurityHeaders(s.handleRefresh))

	return s
}

// SetStoreCheck makes /readyz also require that store answers a ping.
func (s *Server) SetStoreCheck(store StoreChecker) {
	s.store = store
}

// Shutdown stops the rate limiter janitor and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// withSecurityHeaders assigns a request id, applies rate limiting to POSTs, sets
// security headers and logs the completed request.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		ctx := applog.WithLogger(r.Context(), s.logger)
		ctx = applog.WithRequestID(ctx, requestID)
		r = r.WithContext(ctx)
		w.Header().Set("X-Request-ID", requestID)

		if detectSuspiciousRequest(r, s.metrics) {
			applog.FromContext(ctx).WarnContext(ctx, "Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			s.access.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
		}()

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP, s.metrics) {
			rw.Header().Set("Retry-After", "60")
			ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(rw)
			return
		}

		rw.Header().Set("X-Content-Type-Options", "nosniff")
		rw.Header().Set("X-Frame-Options", "DENY")
		rw.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self'")
		rw.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		next(rw, r)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

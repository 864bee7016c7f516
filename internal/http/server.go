package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"tally/internal/core"
	applog "tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/middleware/security"
	"tally/internal/middleware/trace"
	"tally/internal/tally"
	appweb "tally/web"
)

// Options carries the optional collaborators of a Server.
type Options struct {
	Logger  *applog.Logger
	Metrics *metrics.Metrics

	// LoadWarning is shown as a banner on the page, e.g. after the stored
	// tally could not be decoded and the store started empty.
	LoadWarning string
}

type Server struct {
	http.Server
	templates *template.Template
	store     *tally.Store
	metrics   *metrics.Metrics
	logger    *applog.Logger
	errors    *applog.StructuredLogger
	detector  *security.Detector
	tracer    *trace.Middleware

	loadWarning string
	started     time.Time

	shutdownOnce sync.Once
}

var templateFuncs = template.FuncMap{
	"count":   core.FormatCount,
	"average": core.FormatAverage,
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, store *tally.Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	detector := security.NewDetector()

	s := &Server{
		store:       store,
		metrics:     opts.Metrics,
		logger:      logger,
		errors:      applog.NewStructuredLogger(logger),
		detector:    detector,
		tracer:      trace.NewMiddleware(detector.ExtractClientIP),
		loadWarning: opts.LoadWarning,
		started:     time.Now(),
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.CacheStatic(time.Hour)(static))
	} else {
		logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	s.route(mux, "/{$}", "/", s.handleIndex)
	s.route(mux, "/api/tally", "/api/tally", s.handleGetTally)
	s.route(mux, "/api/tally/increment", "/api/tally/increment", s.handleIncrement)
	s.route(mux, "/api/days", "/api/days", s.handleCreateDay)
	s.route(mux, "/api/days/{date}", "/api/days/{date}", s.handleDay)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("not found").Write(w)
	})
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	if s.metrics != nil {
		s.metrics.RegisterCounterFunc("suspicious_requests_total", "Requests flagged as scans",
			func() float64 { return float64(detector.SuspiciousRequests()) })
		mux.Handle("/metrics", s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = detector.Middleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = s.tracer.Middleware(handler)
	handler = applog.Middleware(logger)(handler)
	handler = security.Headers(security.DefaultPolicy())(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
	}

	return s
}

func (s *Server) route(mux *http.ServeMux, pattern, label string, h http.HandlerFunc) {
	var handler http.Handler = h
	if s.metrics != nil {
		handler = s.metrics.Middleware(label, handler)
	}
	mux.Handle(pattern, handler)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

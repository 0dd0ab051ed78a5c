package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hamed0406/storemonitor/internal/domain"
	apimw "github.com/hamed0406/storemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/storemonitor/internal/ingest"
	"github.com/hamed0406/storemonitor/internal/repo"
)

// Ingester is satisfied by *ingest.Ingester.
type Ingester interface {
	Run(ctx context.Context, dir string) (*ingest.Dataset, error)
}

// ReportRunner is satisfied by *scheduler.Reporter.
type ReportRunner interface {
	Trigger(ctx context.Context) (string, error)
	ReferenceInstant(ctx context.Context) (time.Time, error)
}

// StoreComputer is satisfied by *reconcile.Reconciler.
type StoreComputer interface {
	ComputeStore(ctx context.Context, id domain.StoreID, now time.Time) (domain.StoreReport, error)
}

type Server struct {
	Logger   *zap.Logger
	Reports  repo.ReportStore
	Ingester Ingester
	Reporter ReportRunner
	Computer StoreComputer
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// DataDir, when set, is the only tree /ingest may read from.
	DataDir string

	ingests sync.WaitGroup
}

func NewServer(l *zap.Logger, reports repo.ReportStore, ing Ingester, rep ReportRunner, comp StoreComputer) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Reports: reports, Ingester: ing, Reporter: rep, Computer: comp}
}

// Router builds the HTTP handler. Rate limits are requests per minute; zero
// disables a limit.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.RequireAny(keys))
		r.Get("/get_report", s.handleGetReport)
		r.Get("/api/stores/{storeID}/report", s.handleStoreReport)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RateLimit(admRPM, admBurst))
		r.Use(apimw.RequireAdmin(keys))
		r.Post("/ingest", s.handleIngest)
		r.Post("/trigger_report", s.handleTriggerReport)
	})

	return r
}

// Wait blocks until background ingests started by /ingest have finished.
func (s *Server) Wait() { s.ingests.Wait() }

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chimw.GetReqID(r.Context())),
		)
	})
}

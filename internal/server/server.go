// Package server hosts the local diagnostics endpoints: health, metrics,
// utterance history, and a live event stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/neboloop/hotword/internal/db"
	"github.com/neboloop/hotword/internal/events"
	"github.com/neboloop/hotword/internal/httputil"
	"github.com/neboloop/hotword/internal/logging"
	"github.com/neboloop/hotword/internal/metrics"
	"github.com/neboloop/hotword/internal/websocket"
)

// History is the read side of the journal.
type History interface {
	Recent(ctx context.Context, limit int, outcome string) ([]db.Entry, error)
	Counts(ctx context.Context) (map[string]int, error)
	SourceEvents(ctx context.Context, limit int) ([]db.SourceEvent, error)
}

// Options holds the server dependencies. Nil fields disable their routes.
type Options struct {
	Addr    string
	Bus     *events.Bus
	Metrics *metrics.Metrics
	History History
	// Status returns a JSON-encodable snapshot of the pipeline.
	Status func() any
}

// Router builds the chi router for opts.
func Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", healthHandler(opts))
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", statusHandler(opts))
		r.Get("/history", historyHandler(opts.History))
		r.Get("/history/stats", statsHandler(opts.History))
		r.Get("/sources", sourcesHandler(opts.History))
	})
	if opts.Bus != nil {
		r.Get("/ws", websocket.Handler(opts.Bus))
	}
	return r
}

// Run serves opts.Addr until ctx is cancelled. The listener is bound before
// Run returns control to the serve loop so a busy port fails immediately.
func Run(ctx context.Context, opts Options) error {
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return fmt.Errorf("diagnostics listen %s: %w", opts.Addr, err)
	}
	return Serve(ctx, ln, opts)
}

// Serve is Run on an existing listener.
func Serve(ctx context.Context, ln net.Listener, opts Options) error {
	// No Read/WriteTimeout: they would cut hijacked websocket connections.
	httpServer := &http.Server{
		Handler:           Router(opts),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()
	logging.Infof("diagnostics listening on http://%s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Logger().Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func healthHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, map[string]any{"status": "ok"})
	}
}

func statusHandler(opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if opts.Status == nil {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "pipeline not running")
			return
		}
		httputil.OkJSON(w, opts.Status())
	}
}

func historyHandler(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "journal disabled")
			return
		}
		limit := httputil.QueryInt(r, "limit", 20, 500)
		entries, err := h.Recent(r.Context(), limit, r.URL.Query().Get("outcome"))
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		if entries == nil {
			entries = []db.Entry{}
		}
		httputil.OkJSON(w, map[string]any{"entries": entries})
	}
}

func statsHandler(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "journal disabled")
			return
		}
		counts, err := h.Counts(r.Context())
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		httputil.OkJSON(w, map[string]any{"outcomes": counts})
	}
}

func sourcesHandler(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			httputil.ErrorWithCode(w, http.StatusServiceUnavailable, "journal disabled")
			return
		}
		evs, err := h.SourceEvents(r.Context(), httputil.QueryInt(r, "limit", 20, 500))
		if err != nil {
			httputil.InternalError(w, err.Error())
			return
		}
		if evs == nil {
			evs = []db.SourceEvent{}
		}
		httputil.OkJSON(w, map[string]any{"events": evs})
	}
}

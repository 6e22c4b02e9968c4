// Package statushttp serves the status directory and a small JSON API about
// the orchestrator.
package statushttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"castbot/internal/orchestrator"
	"castbot/internal/storage"
	"castbot/pkg/logx"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// Provider reports the orchestrator state.
type Provider interface {
	Status() orchestrator.Status
}

// NewHandler builds the router. history and dir are optional.
func NewHandler(p Provider, history storage.Store, dir string, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, p.Status())
		})
		api.Get("/history", func(w http.ResponseWriter, r *http.Request) {
			if history == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "play history is disabled"})
				return
			}
			limit, err := parseLimit(r.URL.Query().Get("limit"))
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			plays, err := history.RecentPlays(r.Context(), limit)
			if err != nil {
				log.Warn("history query failed", logx.Err(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history unavailable"})
				return
			}
			if plays == nil {
				plays = []storage.Play{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"plays": plays})
		})
	})

	if strings.TrimSpace(dir) != "" {
		fs := http.FileServer(http.Dir(dir))
		r.Handle("/*", noCache(fs))
	}
	return r
}

func parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errBadLimit
	}
	return min(n, maxHistoryLimit), nil
}

var errBadLimit = errors.New("limit must be a positive integer")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// noCache keeps the ticker page from showing stale now/pending files.
func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", sw.status),
				logx.Duration("took", time.Since(start).Round(time.Millisecond)))
		})
	}
}

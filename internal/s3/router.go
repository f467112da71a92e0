package s3

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

type contextKey string

const requestIDContextKey contextKey = "request_id"

const (
	defaultLivePath  = "/healthz"
	defaultReadyPath = "/readyz"
)

// RouterConfig wires a dispatch Handler and optional health-check paths
// into the mux NewRouter builds.
type RouterConfig struct {
	ServiceHost string
	PathLive    string
	PathReady   string
	ReadyCheck  func() error
	Handler     func(http.ResponseWriter, *http.Request, RequestTarget, Operation)
}

// NewRouter builds the top-level http.Handler: liveness/readiness probes
// on their configured paths, and everything else routed through
// ParseRequestTarget/ResolveOperation into cfg.Handler. Every request is
// tagged with a generated request ID before reaching either path.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(firstNonEmpty(cfg.PathLive, defaultLivePath), handleLiveness)
	mux.HandleFunc(firstNonEmpty(cfg.PathReady, defaultReadyPath), handleReadiness(cfg.ReadyCheck))
	mux.HandleFunc("/", dispatchHandler(cfg))

	return requestIDMiddleware(mux)
}

func firstNonEmpty(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func handleLiveness(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReadiness(check func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireGet(w, r) {
			return
		}
		if check != nil {
			if err := check(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	w.WriteHeader(http.StatusMethodNotAllowed)
	return false
}

func dispatchHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := ParseRequestTarget(r, cfg.ServiceHost)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		operation := ResolveOperation(r.Method, target, ParseDispatchQuery(r.URL.Query()), r.Header)
		if cfg.Handler == nil {
			w.WriteHeader(http.StatusNotImplemented)
			_, _ = w.Write([]byte(operation))
			return
		}
		cfg.Handler(w, r, target, operation)
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := GenerateRequestID()
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDContextKey, reqID)))
	})
}

// GenerateRequestID produces a "req-<unix-nanos>-<hex-entropy>" ID, falling
// back to just the timestamp if the entropy source is unavailable.
func GenerateRequestID() string {
	suffix, err := randomHex(8)
	if err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("req-%d-%s", time.Now().UnixNano(), suffix)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RequestIDFromContext returns the request ID the middleware attached to
// ctx, or "" if none is present.
func RequestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDContextKey).(string)
	return value
}

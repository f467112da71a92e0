package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"simples3/internal/config"
)

// Server wraps an http.Server with the listen address pulled from Config
// and fixed header limits. TLS termination is out of scope; it is expected to
// sit behind a fronting proxy.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func New(cfg config.Config, handler http.Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return &Server{httpServer: httpServer, logger: logger}, nil
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// EnsureStorageAvailable creates dir if needed and confirms it is writable.
func EnsureStorageAvailable(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("storage data dir is empty")
	}
	path := filepath.Clean(dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}
	testPath := filepath.Join(path, ".ready-check")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("storage dir not writable: %w", err)
	}
	_ = os.Remove(testPath)
	return nil
}

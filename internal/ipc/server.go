package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"github.com/matjam/wayper/internal/middleware"
)

type Server struct {
	path string
	echo *echo.Echo
}

// NewServer binds the HTTP API socket at path.
func NewServer(path string, d Daemon) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind http socket %s: %w", path, err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Listener = listener

	e.Use(middleware.CharmLog())

	RegisterRoutes(e, d, path)

	return &Server{path: path, echo: e}, nil
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		server := new(http.Server)
		errc <- s.echo.StartServer(server)
	}()
	log.Debugf("http api listening on %s", s.path)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http api shutdown: %w", err)
	}
	_ = os.Remove(s.path)
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

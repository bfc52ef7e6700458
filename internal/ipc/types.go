// Package ipc serves the daemon's HTTP status API on a unix socket and provides the
// client for it.
package ipc

import (
	"context"

	"github.com/matjam/wayper/internal/metrics"
	"github.com/matjam/wayper/internal/socket"
)

// Daemon is the view of the running daemon the handlers need.
type Daemon interface {
	Status(ctx context.Context) (Status, error)
	Metrics(ctx context.Context) (metrics.Snapshot, error)
	Dispatch(ctx context.Context, cmd socket.Command) ([]socket.Output, error)
}

// Status is what the daemon reports about itself.
type Status struct {
	ConfigFile string                   `json:"config"`
	Profile    string                   `json:"profile"`
	Wallpapers []socket.OutputWallpaper `json:"wallpapers"`
	Socket     string                   `json:"socket"`
}

type StatusResponse struct {
	Status     string                   `json:"status"`
	Message    string                   `json:"message"`
	Version    string                   `json:"version"`
	PID        int                      `json:"pid"`
	Socket     string                   `json:"socket"`
	HTTPSocket string                   `json:"http_socket"`
	Config     string                   `json:"config"`
	Profile    string                   `json:"profile"`
	Wallpapers []socket.OutputWallpaper `json:"wallpapers"`
}

type CommandResponse struct {
	Status  string          `json:"status"`
	Command string          `json:"command"`
	Outputs []socket.Output `json:"outputs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

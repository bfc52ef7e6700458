package ipc

import (
	"net/http"
	"os"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/matjam/wayper"
	"github.com/matjam/wayper/internal/socket"
)

// GET /status
func statusHandler(d Daemon, httpSocket string) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := d.Status(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		}

		return c.JSONPretty(http.StatusOK, StatusResponse{
			Status:     "ok",
			Message:    "wayper is running",
			Version:    strings.Trim(wayper.Version, "\n\r "),
			PID:        os.Getpid(),
			Socket:     st.Socket,
			HTTPSocket: httpSocket,
			Config:     st.ConfigFile,
			Profile:    st.Profile,
			Wallpapers: st.Wallpapers,
		}, "  ")
	}
}

// GET /metrics
func metricsHandler(d Daemon) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, err := d.Metrics(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		}
		return c.JSONPretty(http.StatusOK, snap, "  ")
	}
}

// POST /command
func commandHandler(d Daemon) echo.HandlerFunc {
	return func(c echo.Context) error {
		var cmd socket.Command
		if err := c.Bind(&cmd); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid socket command"})
		}

		outputs, err := d.Dispatch(c.Request().Context(), cmd)
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		}
		if outputs == nil {
			outputs = []socket.Output{}
		}

		return c.JSON(http.StatusOK, CommandResponse{
			Status:  "ok",
			Command: cmd.String(),
			Outputs: outputs,
		})
	}
}

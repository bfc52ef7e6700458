package ipc

import (
	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo, d Daemon, httpSocket string) {
	e.GET("/status", statusHandler(d, httpSocket))
	e.GET("/metrics", metricsHandler(d))
	e.POST("/command", commandHandler(d))
}

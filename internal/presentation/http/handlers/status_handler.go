package handlers

import (
	"net/http"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/container"
	"github.com/Tom-Bini/manus-bridge-bot/pkg/logger"
	"github.com/labstack/echo"
)

// HeartBeat is a plain liveness probe
func HeartBeat(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now(),
	})
}

// StatusHandler serves the system health summary
type StatusHandler struct {
	container *container.Container
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(container *container.Container) *StatusHandler {
	return &StatusHandler{container: container}
}

// Status reports wallet and schedule counts plus dispatcher liveness
func (h *StatusHandler) Status() func(c echo.Context) error {
	return func(c echo.Context) error {
		status, err := h.container.SchedulerService.Status(c.Request().Context())
		if err != nil {
			logger.RequestLogger(c).WithError(err).Error("Failed to build status")
			return jsonError(c, err)
		}

		status.DispatchRunning = h.container.Dispatcher.Running()
		if lastTick := h.container.Dispatcher.LastTick(); !lastTick.IsZero() {
			status.LastDispatch = &lastTick
		}

		return c.JSON(http.StatusOK, status)
	}
}

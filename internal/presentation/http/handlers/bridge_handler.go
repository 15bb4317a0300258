package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/container"
	"github.com/Tom-Bini/manus-bridge-bot/pkg/logger"
	"github.com/labstack/echo"
	"gorm.io/gorm"
)

// BridgeHandler handles schedule and transfer requests
type BridgeHandler struct {
	container *container.Container
}

// NewBridgeHandler creates a new BridgeHandler
func NewBridgeHandler(container *container.Container) *BridgeHandler {
	return &BridgeHandler{container: container}
}

type scheduleRequest struct {
	CountPerDay int `json:"count_per_day"`
}

// Schedule draws fresh randomized fire times for the wallet, replacing any
// pending entries. CountPerDay 0 falls back to the configured default.
func (h *BridgeHandler) Schedule() func(c echo.Context) error {
	return func(c echo.Context) error {
		address := c.Param("address")

		var req scheduleRequest
		if err := c.Bind(&req); err != nil && c.Request().ContentLength > 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		}

		entries, err := h.container.SchedulerService.ScheduleWallet(c.Request().Context(), address, req.CountPerDay)
		if err != nil {
			logger.RequestLogger(c).WithError(err).WithField("address", address).Error("Failed to schedule wallet")
			return jsonError(c, err)
		}

		fireTimes := make([]time.Time, 0, len(entries))
		for _, entry := range entries {
			fireTimes = append(fireTimes, entry.NextFireAt)
		}

		return c.JSON(http.StatusCreated, map[string]interface{}{
			"wallet":     address,
			"fire_times": fireTimes,
		})
	}
}

// TriggerBridge runs one transfer for the wallet immediately
func (h *BridgeHandler) TriggerBridge() func(c echo.Context) error {
	return func(c echo.Context) error {
		address := c.Param("address")

		transfer, err := h.container.SchedulerService.TriggerNow(c.Request().Context(), address)
		if err != nil {
			logger.RequestLogger(c).WithError(err).WithField("address", address).Error("Manual bridge failed")
			if transfer != nil {
				// The terminal transfer row is still returned so the
				// caller sees what was attempted.
				return c.JSON(http.StatusUnprocessableEntity, transfer)
			}
			return jsonError(c, err)
		}

		return c.JSON(http.StatusOK, transfer)
	}
}

// TransferStatus re-queries the executing provider for the settlement state
// of a completed transfer.
func (h *BridgeHandler) TransferStatus() func(c echo.Context) error {
	return func(c echo.Context) error {
		id := c.Param("id")
		ctx := c.Request().Context()

		transfer, err := h.container.TransferRepo.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "Transfer not found"})
			}
			logger.RequestLogger(c).WithError(err).WithField("transfer_id", id).Error("Failed to load transfer")
			return jsonError(c, err)
		}

		if transfer.ProviderUsed == "" || transfer.TxReference == "" {
			return c.JSON(http.StatusOK, map[string]interface{}{
				"id":     transfer.ID,
				"status": transfer.Status,
			})
		}

		provider, ok := h.container.Registry.Get(transfer.ProviderUsed)
		if !ok {
			return c.JSON(http.StatusBadGateway, map[string]string{"error": "Provider no longer configured"})
		}

		settlement, err := provider.GetStatus(ctx, transfer.TxReference)
		if err != nil {
			logger.RequestLogger(c).WithError(err).WithField("transfer_id", id).Error("Provider status check failed")
			return jsonError(c, err)
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"id":           transfer.ID,
			"status":       transfer.Status,
			"provider":     transfer.ProviderUsed,
			"tx_reference": transfer.TxReference,
			"settlement":   settlement,
		})
	}
}

// History returns the wallet's transfer history, newest first. Optional
// from/to query parameters (RFC 3339) bound the range.
func (h *BridgeHandler) History() func(c echo.Context) error {
	return func(c echo.Context) error {
		address := c.Param("address")

		var from, to time.Time
		if raw := c.QueryParam("from"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid from timestamp"})
			}
			from = parsed
		}
		if raw := c.QueryParam("to"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid to timestamp"})
			}
			to = parsed
		}

		transfers, err := h.container.SchedulerService.History(c.Request().Context(), address, from, to)
		if err != nil {
			logger.RequestLogger(c).WithError(err).WithField("address", address).Error("Failed to get history")
			return jsonError(c, err)
		}

		return c.JSON(http.StatusOK, map[string]interface{}{"transfers": transfers})
	}
}

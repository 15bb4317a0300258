package handlers

import (
	"net/http"

	"github.com/Tom-Bini/manus-bridge-bot/internal/container"
	"github.com/Tom-Bini/manus-bridge-bot/internal/domain/entities"
	"github.com/Tom-Bini/manus-bridge-bot/pkg/logger"
	"github.com/labstack/echo"
	"github.com/pkg/errors"
)

// WalletHandler handles wallet store requests
type WalletHandler struct {
	container *container.Container
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(container *container.Container) *WalletHandler {
	return &WalletHandler{container: container}
}

type addWalletRequest struct {
	PrivateKey string `json:"private_key"`
	Label      string `json:"label"`
}

// AddWallet registers a new wallet from a raw private key. The key is
// encrypted before it is stored and never echoed back.
func (h *WalletHandler) AddWallet() func(c echo.Context) error {
	return func(c echo.Context) error {
		var req addWalletRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		}

		summary, err := h.container.WalletService.AddWallet(c.Request().Context(), req.PrivateKey, req.Label)
		req.PrivateKey = ""
		if err != nil {
			logger.RequestLogger(c).WithError(err).Error("Failed to add wallet")
			return jsonError(c, err)
		}

		return c.JSON(http.StatusCreated, summary)
	}
}

// RemoveWallet deletes a wallet and its schedule
func (h *WalletHandler) RemoveWallet() func(c echo.Context) error {
	return func(c echo.Context) error {
		address := c.Param("address")

		if err := h.container.WalletService.RemoveWallet(c.Request().Context(), address); err != nil {
			logger.RequestLogger(c).WithError(err).WithField("address", address).Error("Failed to remove wallet")
			return jsonError(c, err)
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "removed", "address": address})
	}
}

// ListWallets returns all managed wallets
func (h *WalletHandler) ListWallets() func(c echo.Context) error {
	return func(c echo.Context) error {
		summaries, err := h.container.WalletService.ListWallets(c.Request().Context())
		if err != nil {
			logger.RequestLogger(c).WithError(err).Error("Failed to list wallets")
			return jsonError(c, err)
		}

		return c.JSON(http.StatusOK, summaries)
	}
}

// Balance serves the cached balances of a wallet. With refresh=true and a
// chain/token pair the chain is queried first; a stale flag in the response
// marks values the chain could not confirm.
func (h *WalletHandler) Balance() func(c echo.Context) error {
	return func(c echo.Context) error {
		address := c.Param("address")
		ctx := c.Request().Context()

		if c.QueryParam("refresh") == "true" {
			chain := c.QueryParam("chain")
			token := c.QueryParam("token")
			if chain == "" || token == "" {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "chain and token are required with refresh"})
			}

			balance, stale, err := h.container.WalletService.RefreshBalance(ctx, address, chain, token)
			if err != nil {
				logger.RequestLogger(c).WithError(err).WithField("address", address).Error("Failed to refresh balance")
				return jsonError(c, err)
			}
			return c.JSON(http.StatusOK, map[string]interface{}{"balance": balance, "stale": stale})
		}

		balances, err := h.container.WalletService.CachedBalances(ctx, address)
		if err != nil {
			logger.RequestLogger(c).WithError(err).WithField("address", address).Error("Failed to get balances")
			return jsonError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"balances": balances})
	}
}

// jsonError maps service errors to HTTP status codes
func jsonError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entities.ErrWalletNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entities.ErrDuplicateWallet), errors.Is(err, entities.ErrExecuting):
		status = http.StatusConflict
	case errors.Is(err, entities.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, entities.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, entities.ErrChainUnreachable):
		status = http.StatusBadGateway
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}

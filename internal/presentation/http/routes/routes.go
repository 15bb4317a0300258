package routes

import (
	"github.com/Tom-Bini/manus-bridge-bot/internal/container"
	"github.com/Tom-Bini/manus-bridge-bot/internal/presentation/http/handlers"
	"github.com/labstack/echo"
)

// SetupRoutes sets up all routes for the application
func SetupRoutes(e *echo.Echo, c *container.Container) {
	walletHandler := handlers.NewWalletHandler(c)
	bridgeHandler := handlers.NewBridgeHandler(c)
	statusHandler := handlers.NewStatusHandler(c)

	// API routes
	api := e.Group("/api/v1")

	// Health check
	e.GET("/health", handlers.HeartBeat)

	// Wallet store
	api.POST("/wallets", walletHandler.AddWallet())
	api.GET("/wallets", walletHandler.ListWallets())
	api.DELETE("/wallets/:address", walletHandler.RemoveWallet())
	api.GET("/wallets/:address/balance", walletHandler.Balance())

	// Scheduling and transfers
	api.POST("/wallets/:address/schedule", bridgeHandler.Schedule())
	api.POST("/wallets/:address/bridge", bridgeHandler.TriggerBridge())
	api.GET("/wallets/:address/history", bridgeHandler.History())
	api.GET("/transfers/:id/status", bridgeHandler.TransferStatus())

	// System status
	api.GET("/status", statusHandler.Status())
}

package http

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tom-Bini/manus-bridge-bot/internal/container"
	"github.com/Tom-Bini/manus-bridge-bot/internal/presentation/http/middleware"
	"github.com/Tom-Bini/manus-bridge-bot/internal/presentation/http/routes"
	"github.com/Tom-Bini/manus-bridge-bot/pkg/logger"
	"github.com/labstack/echo"
)

// Server represents the HTTP server
type Server struct {
	container *container.Container
	server    *echo.Echo
}

// NewServer creates a new HTTP server
func NewServer(c *container.Container) *Server {
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	routes.SetupRoutes(e, c)

	return &Server{
		container: c,
		server:    e,
	}
}

// Start starts the HTTP server and blocks until an interrupt signal. The
// transfer dispatcher is stopped before the server shuts down so no fire is
// cut off mid-transfer.
func (s *Server) Start() error {
	port := s.container.Config.Server.Port
	if port == "" {
		port = "8080"
	}

	logger.GetLogger().Infof("Starting server on port %s", port)

	go func() {
		if err := s.server.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.GetLogger().Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.GetLogger().Info("Shutting down server...")

	s.container.Dispatcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.GetLogger().Fatalf("Server forced to shutdown: %v", err)
		return err
	}

	logger.GetLogger().Info("Server exited")
	return nil
}

package middleware

import (
	"github.com/Tom-Bini/manus-bridge-bot/pkg/logger"
	"github.com/labstack/echo"
	echomw "github.com/labstack/echo/middleware"
)

// Logger returns a logger middleware
func Logger() echo.MiddlewareFunc {
	return logger.LoggingMiddleware
}

// Recover returns a panic recovery middleware
func Recover() echo.MiddlewareFunc {
	return echomw.Recover()
}

// CORS returns a CORS middleware
func CORS() echo.MiddlewareFunc {
	return echomw.CORS()
}

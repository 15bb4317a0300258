package main

import (
	"context"
	"fmt"

	"github.com/Tom-Bini/manus-bridge-bot/internal/container"
	presentation "github.com/Tom-Bini/manus-bridge-bot/internal/presentation/http"
	"github.com/Tom-Bini/manus-bridge-bot/pkg/logger"
	"github.com/joho/godotenv"
)

func init() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Error loading .env file")
	}
}

func main() {
	logger.InitGlobalLogger()

	zapLogger, err := logger.NewZapLogger()
	if err != nil {
		fmt.Println("main NewZapLogger error", err)
		panic(err)
	}
	defer zapLogger.Sync()

	c, err := container.NewContainer(zapLogger)
	if err != nil {
		fmt.Println("main NewContainer error", err)
		panic(err)
	}

	c.Notifier.SystemEvent("Bridge Bot Server Start")

	if err := c.Dispatcher.Start(context.Background()); err != nil {
		fmt.Println("main Dispatcher start error", err)
		panic(err)
	}

	server := presentation.NewServer(c)
	if err := server.Start(); err != nil {
		panic(err)
	}
}

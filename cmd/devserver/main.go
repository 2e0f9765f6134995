package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ilkhoeri/youapp-test-sub001/internal/devserver"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	secret := os.Getenv("CHANNEL_SECRET")
	if secret == "" {
		log.Fatal("CHANNEL_SECRET is required")
	}

	addr := os.Getenv("DEVSERVER_ADDR")
	if addr == "" {
		addr = ":4040"
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	srv := devserver.New([]byte(secret), logger)
	logger.Info("devserver listening", zap.String("addr", addr))
	if err := srv.Listen(addr); err != nil {
		logger.Fatal("devserver exited", zap.Error(err))
	}
}

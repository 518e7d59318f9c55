package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskAssistant/internal/app"
	"taskAssistant/internal/config"
	"taskAssistant/internal/logger"

	"github.com/joho/godotenv"
)

func main() {
	// .env не обязателен: секреты могут прийти из окружения
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("конфигурация: %v", err)
	}

	a := app.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Init(ctx); err != nil {
		log.Fatalf("инициализация: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Получен сигнал остановки: " + sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("Сервер упал", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	a.Shutdown(shutdownCtx)
}

package main

import (
	"log"
	"time"

	"github.com/fieldops/canvass-backend-go/internal/api"
	"github.com/fieldops/canvass-backend-go/internal/config"
	"github.com/fieldops/canvass-backend-go/internal/database"
	"github.com/fieldops/canvass-backend-go/internal/repository"
	"github.com/fieldops/canvass-backend-go/internal/service"
	"github.com/fieldops/canvass-backend-go/internal/verify"
)

func main() {
	cfg := config.Load()

	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()

	db := database.GetDB()
	sessionRepo := repository.NewSessionRepository(db)
	walkListRepo := repository.NewWalkListRepository(db)

	verifyCfg := verify.Config{MaxAttempts: cfg.VerifyMaxAttempts}
	locateTimeout := time.Duration(cfg.LocateTimeoutS) * time.Second

	sessionService := service.NewSessionService(sessionRepo, walkListRepo, verifyCfg, locateTimeout)
	walkListService := service.NewWalkListService(walkListRepo)

	router := api.SetupRouter(cfg, sessionService, walkListService)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/task-management-client/internal/config"
	"github.com/yukikurage/task-management-client/internal/devserver"
	"github.com/yukikurage/task-management-client/internal/models"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, err := devserver.New(devserver.OptionsFromConfig(cfg))
	if err != nil {
		log.Fatalf("Failed to start dev backend: %v", err)
	}
	defer srv.Close()

	if email := os.Getenv("DEV_ADMIN_EMAIL"); email != "" {
		password := os.Getenv("DEV_ADMIN_PASSWORD")
		if _, err := srv.CreateUser("Admin", email, password, models.RoleAdmin); err != nil {
			log.Fatalf("Failed to seed admin: %v", err)
		}
		log.Printf("Seeded admin account %s", email)
	}

	httpServer := &http.Server{
		Addr:              cfg.DevServerAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Dev backend listening on %s", cfg.DevServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

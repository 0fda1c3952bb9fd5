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

	"github.com/kptumpala/inkpost/internal/config"
	"github.com/kptumpala/inkpost/internal/db"
	routes "github.com/kptumpala/inkpost/internal/http"
	"github.com/kptumpala/inkpost/internal/mail"
	"github.com/kptumpala/inkpost/internal/models"
	"github.com/kptumpala/inkpost/internal/store"
	"github.com/kptumpala/inkpost/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	database, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	log.Println("Running database migrations...")
	if err := database.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{}); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	hub := ws.NewHub()
	go hub.Run()

	mailer := mail.NewMailer(mail.NewSMTPSender(cfg.SMTP), 64)
	go mailer.Run()

	router := gin.New()
	if err := routes.SetupRoutes(router, routes.Deps{
		Store:       store.New(database),
		Hub:         hub,
		Mailer:      mailer,
		Cfg:         cfg,
		TemplateDir: "web/templates",
	}); err != nil {
		log.Fatalf("routes: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	// Let queued contact mail drain before exit.
	mailer.Close()

	log.Println("Server exiting")
}

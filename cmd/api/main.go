package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/bookstack/server/internal/auth"
	"github.com/bookstack/server/internal/config"
	"github.com/bookstack/server/internal/db"
	httphandler "github.com/bookstack/server/internal/http"
	"github.com/bookstack/server/internal/http/handlers"
	"github.com/bookstack/server/internal/kv"
	"github.com/bookstack/server/internal/repo"
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Sessions, the logout blacklist and reset codes share one TTL store.
	// DEV_MODE keeps them in process memory.
	var store kv.Store
	if cfg.DevMode {
		store = kv.NewMemory()
	} else {
		store = kv.NewPostgres(database)
	}

	userRepo := repo.NewUserRepo(database)
	bookRepo := repo.NewBookRepo(database)
	categoryRepo := repo.NewCategoryRepo(database)
	tagRepo := repo.NewTagRepo(database)

	tokenService := auth.NewTokenService(cfg.JWTSecret)
	authService := auth.NewService(tokenService, store, userRepo, logMailer{devMode: cfg.DevMode})

	authHandler := handlers.NewAuthHandler(authService)
	catalogHandler := handlers.NewCatalogHandler(bookRepo, categoryRepo, tagRepo)

	router := httphandler.NewRouter(authHandler, catalogHandler, authService)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// logMailer stands in for the email-delivery collaborator. The code itself is
// only written to the log in DEV_MODE.
type logMailer struct {
	devMode bool
}

func (m logMailer) SendPasswordReset(_ context.Context, email, code string) error {
	if m.devMode {
		log.Printf("Password reset code for %s: %s", email, code)
		return nil
	}
	log.Printf("Password reset code issued for %s", email)
	return nil
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

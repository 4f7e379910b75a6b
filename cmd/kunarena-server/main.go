package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kunflip-labs/kunarena/internal/arena"
	"github.com/kunflip-labs/kunarena/internal/generate"
	"github.com/kunflip-labs/kunarena/internal/server"
	"github.com/kunflip-labs/kunarena/internal/storage"
)

const defaultTurnTimeoutMS = 90_000

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	addr := os.Getenv("KUNARENA_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	dbPath := os.Getenv("KUNARENA_DB")
	if dbPath == "" {
		dbPath = "data/kunarena.db"
	}

	secret := os.Getenv("KUNARENA_ADMIN_SECRET")
	if secret == "" {
		log.Fatal("KUNARENA_ADMIN_SECRET environment variable is required")
	}

	turnTimeout := time.Duration(defaultTurnTimeoutMS) * time.Millisecond
	if raw := os.Getenv("KUNARENA_TURN_TIMEOUT_MS"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms > 0 {
			turnTimeout = time.Duration(ms) * time.Millisecond
		} else {
			log.Printf("invalid KUNARENA_TURN_TIMEOUT_MS %q, using default", raw)
		}
	}

	db, err := storage.NewDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	gen := generate.NewClient(
		os.Getenv("KUNARENA_LLM_URL"),
		os.Getenv("KUNARENA_LLM_KEY"),
		os.Getenv("KUNARENA_LLM_MODEL"),
	)
	if !gen.Enabled() {
		log.Println("generation client disabled, using template fallbacks")
	}

	engine := arena.NewEngine(db, gen, arena.WithTurnTimeout(turnTimeout))
	srv := &http.Server{
		Addr:    addr,
		Handler: server.New(db, engine, secret),
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	fmt.Printf("Kunarena running on %s\n", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

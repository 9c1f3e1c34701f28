package main

import (
	"log"
	"os"

	"github.com/latticelab/pyramid-engine/internal/api"
	"github.com/latticelab/pyramid-engine/internal/db"
	"github.com/latticelab/pyramid-engine/internal/pieces"
	"github.com/latticelab/pyramid-engine/internal/solver"
	"github.com/latticelab/pyramid-engine/internal/worker"
)

func main() {
	log.Println("Starting Pyramid Puzzle Solver Engine...")

	table := pieces.DefaultTable()
	log.Printf("Orientation table ready: %d piece shapes", len(table.Pieces))

	// Persistence is optional: without DATABASE_URL the engine runs fully
	// in-memory and the solutions listing endpoint reports unavailable.
	var store *db.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		conn, err := db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without run persistence. Error: %v", err)
		} else {
			defer conn.Close()
			if err := conn.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			} else {
				store = conn
			}
		}
	} else {
		log.Println("DATABASE_URL not set; running without run persistence")
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	// Worker context for solvability checks; the caller owns its lifetime.
	wctx := worker.NewContext(table)
	defer wctx.Close()

	runs := api.NewRunManager(solver.NewFacade(table), wsHub, store)

	// Setup the Gin Router
	handler := api.NewAPIHandler(runs, wctx, store)
	r := api.SetupRouter(handler, wsHub)

	port := getEnvOrDefault("PORT", "5340")

	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

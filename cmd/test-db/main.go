package main

import (
	"flag"
	"log"
	"os"

	"github.com/bitcoinsovereign/academy/internal/config"
	"github.com/bitcoinsovereign/academy/internal/database"
)

// Smoke-checks config loading, database init and migrations against a real
// database. Meant for deployment debugging, not CI.
func main() {
	configPath := flag.String("config", "app.yml", "Path to configuration file")
	flag.Parse()

	log.Printf("Testing database initialization...")
	log.Printf("AUTH_SECRET set: %v", os.Getenv("AUTH_SECRET") != "")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Config loaded - DB type: %s", cfg.Database.Type)

	if err := database.Init(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	db := database.GetConnection()
	if db == nil {
		log.Fatalf("Database connection is nil")
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	for _, table := range []string{"users", "magic_link_requests", "devices", "sessions", "entitlements", "security_events"} {
		n, err := database.CountRows("SELECT COUNT(*) FROM " + table)
		if err != nil {
			log.Fatalf("Table %s not queryable: %v", table, err)
		}
		log.Printf("Table %s OK (%d rows)", table, n)
	}

	log.Printf("Database initialization successful!")
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"chirp-dm/config"
	"chirp-dm/internal/domain/user"
	"chirp-dm/internal/services"
	"chirp-dm/pkg/database"
)

const usage = `
chirp-dm - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create the messaging schema (idempotent)
  status      Show database connection status and table row counts
  seed-dev    Seed development users and a sample conversation

Flags:
  -users string     Comma separated dev usernames (default "alice,bob,carol")
  -password string  Password for dev users (default "Password@123")

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate status
  go run ./cmd/migrate -users=ann,ben seed-dev
`

func main() {
	users := flag.String("users", "alice,bob,carol", "Comma separated dev usernames")
	password := flag.String("password", "Password@123", "Password for dev users")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	cfg := config.LoadConfig()
	ctx := context.Background()

	switch command {
	case "up", "status", "seed-dev":
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}

	db, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer db.Close()

	switch command {
	case "up":
		log.Println("Running migrations UP...")
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")

	case "status":
		log.Println("Database connection: OK")
		tables, err := database.Status(ctx, db)
		if err != nil {
			log.Fatalf("Status check failed: %v", err)
		}
		for _, t := range tables {
			if t.Exists {
				log.Printf("Table %-26s exists (%d rows)", t.Name, t.Rows)
			} else {
				log.Printf("Table %-26s does not exist", t.Name)
			}
		}

	case "seed-dev":
		runSeedDevelopment(ctx, cfg, db, splitNames(*users), *password)
	}
}

func runSeedDevelopment(ctx context.Context, cfg *config.Config, db *sql.DB, names []string, password string) {
	log.Println("Seeding database (development mode)...")

	result, err := database.SeedDevelopment(ctx, db, &database.SeedConfig{Usernames: names, Password: password})
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	auth := services.NewAuthService(cfg)
	log.Println("Seed Summary:")
	log.Printf("   - Users: %d", len(result.Users))
	log.Printf("   - New messages: %d", result.Messages)
	for _, u := range result.Users {
		token, _, err := auth.IssueToken(user.Identity{UserID: u.ID, Username: u.Username})
		if err != nil {
			log.Fatalf("Issue token for %s: %v", u.Username, err)
		}
		log.Printf("   - %-8s %s token=%s", u.Username, u.ID, token)
	}
	log.Println("Development seeding completed")
}

func splitNames(raw string) []string {
	var out []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chirp-dm/config"
	"chirp-dm/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DSN builds a pgx connection string from the configuration.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
}

// Connect opens the pool and verifies it with a ping.
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("pgx", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := HealthCheck(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func HealthCheck(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	return nil
}

// Migrate applies the messaging schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	return repository.InitSchema(ctx, db)
}

// TableStatus reports whether each messaging table exists and its row count.
type TableStatus struct {
	Name   string
	Exists bool
	Rows   int64
}

func Status(ctx context.Context, db *sql.DB) ([]TableStatus, error) {
	out := make([]TableStatus, 0, len(repository.Tables))
	for _, table := range repository.Tables {
		st := TableStatus{Name: table}
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
			table,
		).Scan(&st.Exists)
		if err != nil {
			return nil, fmt.Errorf("check table %s: %w", table, err)
		}
		if st.Exists {
			// table names come from the fixed list above
			if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&st.Rows); err != nil {
				return nil, fmt.Errorf("count table %s: %w", table, err)
			}
		}
		out = append(out, st)
	}
	return out, nil
}

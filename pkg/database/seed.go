package database

import (
	"context"
	"database/sql"
	"fmt"

	"chirp-dm/internal/domain/user"
	"chirp-dm/internal/repository"
	"chirp-dm/internal/services"
	"chirp-dm/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	Usernames []string
	Password  string
}

func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Usernames: []string{"alice", "bob", "carol"},
		Password:  "Password@123",
	}
}

type SeedResult struct {
	Users    []user.Summary
	Messages int
}

var seedLines = []string{
	"hey, are you around?",
	"yes! what's up",
	"lunch tomorrow?",
}

// SeedDevelopment upserts the dev users and a short conversation between the
// first two. Messages carry fixed client message ids, so a reseed within
// repository.ClientMessageWindow does not repeat them.
func SeedDevelopment(ctx context.Context, db *sql.DB, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	result := &SeedResult{}
	for _, name := range cfg.Usernames {
		u, err := upsertUser(ctx, db, name, string(hash))
		if err != nil {
			return nil, fmt.Errorf("seed user %s: %w", name, err)
		}
		result.Users = append(result.Users, u)
	}
	if len(result.Users) < 2 {
		return result, nil
	}

	svc := services.NewMessagingService(
		repository.NewConversationRepository(db),
		repository.NewMessageRepository(db),
		repository.NewUserRepository(db),
		logger.GetGlobalLogger(),
	)
	a, b := result.Users[0], result.Users[1]
	for i, line := range seedLines {
		sender, recipient := a, b
		if i%2 == 1 {
			sender, recipient = b, a
		}
		res, err := svc.SendMessage(ctx, services.SendMessageInput{
			RecipientID:     uuid.NullUUID{UUID: recipient.ID, Valid: true},
			SenderID:        sender.ID,
			Content:         line,
			ClientMessageID: fmt.Sprintf("seed-%d", i),
		})
		if err != nil {
			return nil, fmt.Errorf("seed message %d: %w", i, err)
		}
		if res.Created {
			result.Messages++
		}
	}
	return result, nil
}

func upsertUser(ctx context.Context, db *sql.DB, username, passwordHash string) (user.Summary, error) {
	s := user.Summary{Username: username}
	err := db.QueryRowContext(ctx, `
        INSERT INTO users (username, display_name, password_hash)
        VALUES ($1, $2, $3)
        ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash
        RETURNING id, display_name, avatar_url
    `, username, username, passwordHash).Scan(&s.ID, &s.DisplayName, &s.AvatarURL)
	return s, err
}

package repository

import (
	"context"

	"chirp-dm/internal/domain/user"

	"github.com/google/uuid"
)

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetSummaries(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]user.Summary, error) {
	result := make(map[uuid.UUID]user.Summary, len(userIDs))
	ids := dedupe(userIDs)
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, `
        SELECT id, username, display_name, avatar_url
        FROM users
        WHERE id IN (`+buildPlaceholders(1, len(ids))+`)
    `, uuidArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var s user.Summary
		if err := rows.Scan(&s.ID, &s.Username, &s.DisplayName, &s.AvatarURL); err != nil {
			return nil, err
		}
		result[s.ID] = s
	}
	return result, rows.Err()
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

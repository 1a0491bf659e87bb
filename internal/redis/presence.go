package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// LastSeen is the mirrored presence record for one user. Whether the user is
// online right now is answered by the gateway's registry; this record only
// survives restarts and answers "when was this user last connected".
type LastSeen struct {
	UserID   uuid.UUID `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}

type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

const presenceOnlineSet = "presence:online"

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func LastSeenKey(userID uuid.UUID) string {
	return fmt.Sprintf("last_seen:%s", userID.String())
}

func (p *PresenceStore) write(ctx context.Context, userID uuid.UUID, online bool, at time.Time) error {
	data, err := json.Marshal(LastSeen{UserID: userID, IsOnline: online, LastSeen: at.UTC()})
	if err != nil {
		return err
	}

	pipe := p.client.TxPipeline()
	pipe.Set(ctx, LastSeenKey(userID), data, p.ttl)
	if online {
		pipe.SAdd(ctx, presenceOnlineSet, userID.String())
	} else {
		pipe.SRem(ctx, presenceOnlineSet, userID.String())
	}
	_, err = pipe.Exec(ctx)
	return err
}

// SetOnline is called when the user's first connection registers.
func (p *PresenceStore) SetOnline(ctx context.Context, userID uuid.UUID) error {
	return p.write(ctx, userID, true, time.Now())
}

// SetOffline is called when the user's last connection leaves.
func (p *PresenceStore) SetOffline(ctx context.Context, userID uuid.UUID) error {
	return p.write(ctx, userID, false, time.Now())
}

// Get returns the mirrored record; ok is false when none is stored.
func (p *PresenceStore) Get(ctx context.Context, userID uuid.UUID) (LastSeen, bool, error) {
	data, err := p.client.Get(ctx, LastSeenKey(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return LastSeen{}, false, nil
	}
	if err != nil {
		return LastSeen{}, false, err
	}
	var rec LastSeen
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return LastSeen{}, false, fmt.Errorf("decode last seen: %w", err)
	}
	return rec, true, nil
}

// Reset clears the online set. The process that owned the connections is the
// only writer, so on boot nobody is connected yet.
func (p *PresenceStore) Reset(ctx context.Context) error {
	return p.client.Del(ctx, presenceOnlineSet).Err()
}

package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chirp-dm/internal/domain/notification"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestPing(t *testing.T) {
	mr, client := newTestClient(t)
	require.NoError(t, Ping(context.Background(), client))

	mr.Close()
	assert.Error(t, Ping(context.Background(), client))
}

func TestRateLimiter_AllowMessage(t *testing.T) {
	mr, client := newTestClient(t)
	limiter := NewRateLimiter(client, RateLimitConfig{MessageLimit: 3, MessageWindow: time.Minute})
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		res, err := limiter.AllowMessage(ctx, userID)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := limiter.AllowMessage(ctx, userID)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.True(t, mr.TTL(messageKey(userID)) > 0)

	other, err := limiter.AllowMessage(ctx, uuid.New())
	require.NoError(t, err)
	assert.True(t, other.Allowed, "limits are per user")

	mr.FastForward(time.Minute + time.Second)
	res, err = limiter.AllowMessage(ctx, userID)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestPresenceStore_LastSeen(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewPresenceStore(client, time.Hour)
	ctx := context.Background()
	userID := uuid.New()

	_, ok, err := store.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetOnline(ctx, userID))
	rec, ok, err := store.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.IsOnline)
	assert.Equal(t, userID, rec.UserID)

	member, err := mr.SIsMember(presenceOnlineSet, userID.String())
	require.NoError(t, err)
	assert.True(t, member)

	require.NoError(t, store.SetOffline(ctx, userID))
	rec, ok, err = store.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, rec.IsOnline)
	assert.WithinDuration(t, time.Now(), rec.LastSeen, 5*time.Second)

	assert.False(t, mr.Exists(presenceOnlineSet))
	assert.True(t, mr.TTL(LastSeenKey(userID)) > 0)
}

func TestPresenceStore_Reset(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewPresenceStore(client, 0)
	ctx := context.Background()

	require.NoError(t, store.SetOnline(ctx, uuid.New()))
	require.NoError(t, store.SetOnline(ctx, uuid.New()))
	require.True(t, mr.Exists(presenceOnlineSet))
	require.NoError(t, store.Reset(ctx))

	assert.False(t, mr.Exists(presenceOnlineSet))
}

func TestPublisher_PublishNotification(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()
	recipient, sender, messageID := uuid.New(), uuid.New(), uuid.New()

	sub := client.Subscribe(ctx, NotificationChannel(recipient))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub := NewPublisher(client)
	require.NoError(t, pub.PublishNotification(ctx, notification.ForMessage(recipient, sender, messageID)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got notification.Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, notification.KindMessage, got.Kind)
	assert.Equal(t, messageID, got.TargetID)
	assert.Equal(t, recipient, got.UserID)
	assert.Equal(t, sender, got.ActorID)
}

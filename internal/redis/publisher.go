package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"chirp-dm/internal/domain/notification"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func NotificationChannel(userID uuid.UUID) string {
	return fmt.Sprintf("notifications:%s", userID)
}

func (p *Publisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, payload).Err()
}

// PublishNotification hands n to the notification subsystem on the
// recipient's channel.
func (p *Publisher) PublishNotification(ctx context.Context, n notification.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.Publish(ctx, NotificationChannel(n.UserID), payload)
}

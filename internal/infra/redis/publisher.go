package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"participation-tracker/internal/domain"
)

const defaultChannel = "tracker:notifications"

// Publisher fans notifications out over Redis pub/sub so other processes
// (dashboards, bots) can follow the classroom.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	if channel == "" {
		channel = defaultChannel
	}
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

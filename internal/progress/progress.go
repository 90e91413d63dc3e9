// Package progress publishes engine events onto a Redis channel so
// external observers can follow downloads without polling the database.
package progress

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const channel = "clipvault:progress"

// Publisher broadcasts events over Redis pub/sub. Failures are logged and
// swallowed; progress reporting never blocks the pipeline.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Broadcast publishes one event with its payload and a timestamp.
func (p *Publisher) Broadcast(event string, data interface{}) {
	if p == nil || p.client == nil {
		return
	}
	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
		"at":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("Progress: marshal %s: %v", event, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, channel, body).Err(); err != nil {
		log.Printf("Progress: publish %s: %v", event, err)
	}
}

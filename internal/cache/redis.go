// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jason-s-yu/bingo/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list the historian drains round events from.
const DefaultQueueName = "bingo_round_events"

// UnsettledQueueName holds winner credits whose payout failed and must be reconciled by hand.
const UnsettledQueueName = "bingo_unsettled"

// ConnectRedis opens a client for addr/db and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Publisher pushes round events and unsettled payouts onto redis lists.
type Publisher struct {
	rdb       redis.Cmdable
	queueName string
}

// NewPublisher returns a Publisher writing round events to queueName.
func NewPublisher(rdb redis.Cmdable, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queueName: queueName}
}

// QueueName is the list round events are pushed to.
func (p *Publisher) QueueName() string {
	return p.queueName
}

// PublishRoundEvent serializes ev and RPushes it to the round event queue.
func (p *Publisher) PublishRoundEvent(ctx context.Context, ev models.RoundEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundEvent: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queueName, err)
	}
	return nil
}

// PushUnsettled records a winner credit that could not be paid.
func (p *Publisher) PushUnsettled(ctx context.Context, credit models.WinnerCredit) error {
	data, err := json.Marshal(credit)
	if err != nil {
		return fmt.Errorf("failed to marshal WinnerCredit: %w", err)
	}
	if err := p.rdb.RPush(ctx, UnsettledQueueName, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", UnsettledQueueName, err)
	}
	return nil
}

// PopRoundEvent blocks up to timeout for the next queued event. It returns nil, nil when the
// wait timed out.
func PopRoundEvent(ctx context.Context, rdb redis.Cmdable, queueName string, timeout time.Duration) (*models.RoundEvent, error) {
	res, err := rdb.BLPop(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPop returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}

	var ev models.RoundEvent
	if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
		return nil, fmt.Errorf("malformed round event: %w", err)
	}
	return &ev, nil
}

// Queue is a consumer handle on a round event list.
type Queue struct {
	rdb  redis.Cmdable
	name string
}

// NewQueue returns a consumer for the list name.
func NewQueue(rdb redis.Cmdable, name string) *Queue {
	if name == "" {
		name = DefaultQueueName
	}
	return &Queue{rdb: rdb, name: name}
}

// Pop blocks up to timeout for the next event.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*models.RoundEvent, error) {
	return PopRoundEvent(ctx, q.rdb, q.name, timeout)
}

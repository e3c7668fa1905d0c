// Package queue carries scan requests from producers (API, scheduler, CLI)
// to workers over Redis. The queue transports messages only; scan state
// lives in the scan record, never here.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ebsight/ebsight/internal/models"
)

const (
	scanQueueKey       = "ebsight:scans:queued"
	workerHeartbeatKey = "ebsight:workers:heartbeat"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

type Queue struct {
	client *redis.Client
}

func New(cfg Config) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue adds one scan request. Requests drain oldest first; a positive
// priority pulls a request ahead of anything already waiting, which is how
// manually triggered scans overtake the nightly sweep.
func (q *Queue) Enqueue(ctx context.Context, req *models.ScanRequest, priority int) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling scan request: %w", err)
	}

	score := float64(time.Now().Unix()) - float64(priority*1000)

	if err := q.client.ZAdd(ctx, scanQueueKey, redis.Z{
		Score:  score,
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("enqueueing scan request: %w", err)
	}

	return nil
}

// Dequeue pops the next scan request, or (nil, nil) when the queue is
// empty. Delivery is at-least-once under worker crashes; the scan record's
// claim transition absorbs duplicates.
func (q *Queue) Dequeue(ctx context.Context) (*models.ScanRequest, error) {
	results, err := q.client.ZPopMin(ctx, scanQueueKey, 1).Result()
	if err != nil {
		return nil, fmt.Errorf("dequeuing scan request: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	member, ok := results[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected queue member type %T", results[0].Member)
	}

	var req models.ScanRequest
	if err := json.Unmarshal([]byte(member), &req); err != nil {
		return nil, fmt.Errorf("unmarshaling scan request: %w", err)
	}

	return &req, nil
}

// Depth reports how many scan requests are waiting.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.ZCard(ctx, scanQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("reading queue depth: %w", err)
	}
	return depth, nil
}

func (q *Queue) WorkerHeartbeat(ctx context.Context, workerID string) error {
	return q.client.HSet(ctx, workerHeartbeatKey, workerID, time.Now().Unix()).Err()
}

// ActiveWorkers returns worker ids that heartbeat within the timeout.
func (q *Queue) ActiveWorkers(ctx context.Context, timeout time.Duration) ([]string, error) {
	workers, err := q.client.HGetAll(ctx, workerHeartbeatKey).Result()
	if err != nil {
		return nil, fmt.Errorf("getting workers: %w", err)
	}

	var active []string
	cutoff := time.Now().Add(-timeout).Unix()

	for workerID, lastSeen := range workers {
		var ts int64
		_, _ = fmt.Sscanf(lastSeen, "%d", &ts)
		if ts > cutoff {
			active = append(active, workerID)
		}
	}

	return active, nil
}

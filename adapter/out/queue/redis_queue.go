// Package queue implements out.Queue with Redis Streams (§4.I).
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"subscan_server/core/port/out"
)

// ChunkStream is the single Redis Stream every chunk job is enqueued onto.
const ChunkStream = "subscan:chunk"

// dedupeKeyPrefix namespaces the Redis SETNX guard that makes EnqueueChunk
// idempotent against ChunkJob.JobID() collisions.
const dedupeKeyPrefix = "subscan:chunk:seen:"
const dedupeTTL = 24 * time.Hour

// RedisQueue implements out.Queue using XAdd.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue builds a RedisQueue bound to client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

// EnqueueChunk implements out.Queue. A job whose JobID was already seen within
// dedupeTTL is a no-op, so retried or redundant enqueues of the same job never
// double-process (§4.I "Job id is derived deterministically ... so retries dedupe").
func (q *RedisQueue) EnqueueChunk(ctx context.Context, job out.ChunkJob) error {
	key := dedupeKeyPrefix + job.JobID()
	ok, err := q.client.SetNX(ctx, key, "1", dedupeTTL).Result()
	if err != nil {
		return fmt.Errorf("queue: dedupe check failed: %w", err)
	}
	if !ok {
		return nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job: %w", err)
	}

	err = q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ChunkStream,
		ID:     "*",
		Values: map[string]interface{}{
			"jobId": job.JobID(),
			"data":  string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("queue: xadd failed: %w", err)
	}
	return nil
}

// ConsumerConfig configures a Consumer's group membership and pending-message
// reclaim policy.
type ConsumerConfig struct {
	Group                string
	Consumer             string
	Handler              out.ChunkHandler
	Logger               zerolog.Logger
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	MaxRetries           int
}

// Consumer drives out.ChunkHandler off ChunkStream via a Redis consumer group,
// reclaiming stuck pending entries and routing exhausted ones to a DLQ.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	handler  out.ChunkHandler
	log      zerolog.Logger

	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration
	maxRetries           int
}

// NewConsumer builds a Consumer from cfg, applying defaults for any zero-valued
// pending-reclaim setting.
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	pendingCheckInterval := cfg.PendingCheckInterval
	if pendingCheckInterval == 0 {
		pendingCheckInterval = 30 * time.Second
	}
	pendingIdleTime := cfg.PendingIdleTime
	if pendingIdleTime == 0 {
		pendingIdleTime = 2 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		handler:              cfg.Handler,
		log:                  cfg.Logger,
		pendingCheckInterval: pendingCheckInterval,
		pendingIdleTime:      pendingIdleTime,
		maxRetries:           maxRetries,
	}
}

// Run consumes ChunkStream until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	c.createConsumerGroup(ctx)
	go c.processPendingMessages(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{ChunkStream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			c.log.Error().Err(err).Msg("chunk queue read failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				if err := c.processMessage(ctx, msg); err != nil {
					c.log.Error().Err(err).Str("id", msg.ID).Msg("chunk job processing failed")
					continue
				}
				if err := c.client.XAck(ctx, ChunkStream, c.group, msg.ID).Err(); err != nil {
					c.log.Error().Err(err).Str("id", msg.ID).Msg("chunk job ack failed")
				}
			}
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context) {
	err := c.client.XGroupCreateMkStream(ctx, ChunkStream, c.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		c.log.Warn().Err(err).Msg("chunk consumer group creation failed")
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	raw, ok := msg.Values["data"]
	if !ok {
		return fmt.Errorf("chunk job missing data field")
	}
	dataStr, ok := raw.(string)
	if !ok {
		return fmt.Errorf("chunk job data is not a string")
	}

	var job out.ChunkJob
	if err := json.Unmarshal([]byte(dataStr), &job); err != nil {
		return fmt.Errorf("chunk job unmarshal: %w", err)
	}
	return c.handler(ctx, job)
}

func (c *Consumer) processPendingMessages(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimAndProcessPending(ctx)
		}
	}
}

func (c *Consumer) claimAndProcessPending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: ChunkStream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Error().Err(err).Msg("chunk queue pending scan failed")
		}
		return
	}

	for _, p := range pending {
		if p.Idle < c.pendingIdleTime {
			continue
		}
		if int(p.RetryCount) >= c.maxRetries {
			c.log.Warn().Str("id", p.ID).Int64("retries", p.RetryCount).Msg("chunk job exceeded max retries, moving to DLQ")
			if err := c.moveToDeadLetterQueue(ctx, p.ID); err != nil {
				c.log.Error().Err(err).Str("id", p.ID).Msg("chunk job DLQ move failed")
			}
			c.client.XAck(ctx, ChunkStream, c.group, p.ID)
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   ChunkStream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.pendingIdleTime,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("chunk job claim failed")
			continue
		}

		for _, msg := range claimed {
			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error().Err(err).Str("id", msg.ID).Msg("chunk job reprocessing failed")
				continue
			}
			c.client.XAck(ctx, ChunkStream, c.group, msg.ID)
		}
	}
}

func (c *Consumer) moveToDeadLetterQueue(ctx context.Context, msgID string) error {
	messages, err := c.client.XRange(ctx, ChunkStream, msgID, msgID).Result()
	if err != nil {
		return fmt.Errorf("read message for DLQ: %w", err)
	}
	if len(messages) == 0 {
		return fmt.Errorf("message %s not found in %s", msgID, ChunkStream)
	}

	msg := messages[0]
	dlqData := map[string]interface{}{
		"original_stream": ChunkStream,
		"original_id":     msgID,
		"failed_at":       time.Now().UTC().Format(time.RFC3339),
		"consumer":        c.consumer,
		"group":           c.group,
	}
	for k, v := range msg.Values {
		dlqData["original_"+k] = v
	}

	return c.client.XAdd(ctx, &redis.XAddArgs{Stream: "dlq:" + ChunkStream, Values: dlqData}).Err()
}

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// ProducerConfig selects the protocol a Producer writes
type ProducerConfig struct {
	RedisURL   string
	Backend    string // "redis" or "asynq"
	QueueName  string
	MaxRetries int
}

// Producer submits document jobs to the queue the worker consumes
type Producer struct {
	config *ProducerConfig
	client *redis.Client
	queue  jobQueue
	asynq  *asynq.Client
}

// NewProducer connects to the configured backend
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	p := &Producer{config: cfg}
	switch cfg.Backend {
	case "asynq":
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		p.asynq = asynq.NewClient(redisOpt)
	case "redis", "":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		p.client = redis.NewClient(opt)
		p.queue = newRedisJobQueue(p.client, cfg.QueueName)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
	return p, nil
}

// Enqueue submits a job and returns its job ID
func (p *Producer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.NewString()
	}

	if p.asynq != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("failed to marshal job payload: %w", err)
		}
		task := asynq.NewTask(TaskTypeProcessDocument, data,
			asynq.Queue(p.config.QueueName),
			asynq.MaxRetry(p.config.MaxRetries),
			asynq.TaskID(payload.JobID))
		if _, err := p.asynq.EnqueueContext(ctx, task); err != nil {
			return "", fmt.Errorf("failed to enqueue task: %w", err)
		}
		return payload.JobID, nil
	}

	return payload.JobID, enqueueList(ctx, p.queue, payload, p.config.MaxRetries)
}

func enqueueList(ctx context.Context, q jobQueue, payload *JobPayload, maxRetries int) error {
	job := &RedisJobData{
		ID:         payload.JobID,
		Type:       JobTypeProcessDocument,
		Payload:    *payload,
		CreatedAt:  time.Now().UTC(),
		MaxRetries: maxRetries,
	}
	if err := q.Push(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return q.Publish(ctx, "queued", job.ID)
}

// Stats reports list-protocol queue counts; asynq keeps its own
func (p *Producer) Stats(ctx context.Context) (map[string]int64, error) {
	if p.queue == nil {
		return nil, fmt.Errorf("stats are only available for the redis backend")
	}
	return p.queue.Stats(ctx)
}

// Close releases the Redis connection
func (p *Producer) Close() error {
	if p.asynq != nil {
		return p.asynq.Close()
	}
	return p.client.Close()
}

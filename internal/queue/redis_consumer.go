/**
 * Direct Redis Queue Consumer for the TF page pipeline worker
 *
 * Compatible with the TypeScript RedisQueue implementation.
 * Uses simple Redis LIST operations for job hand-off.
 */

package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
	"github.com/SandySenthilHub/TF-Phase1/internal/processor"
)

// DefaultQueueName is used when no queue name is configured
const DefaultQueueName = "tf:jobs"

// DefaultMaxRetries applies to jobs that carry no maxRetries
const DefaultMaxRetries = 3

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	queue  jobQueue
	runner *jobRunner
	config *RedisConsumerConfig
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds (default 1800000 = 30 minutes)
	MaxRetries        int
	PollTimeout       time.Duration
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c, err := newRedisConsumer(cfg, nil)
	if err != nil {
		client.Close()
		return nil, err
	}
	c.client = client
	c.queue = newRedisJobQueue(client, cfg.QueueName)
	return c, nil
}

func newRedisConsumer(cfg *RedisConsumerConfig, queue jobQueue) (*RedisConsumer, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("RedisConsumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisConsumer{
		queue:  queue,
		runner: newJobRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger.With("queue", cfg.QueueName),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("starting Redis queue consumer", "concurrency", c.config.Concurrency)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}
	return nil
}

// Stop gracefully stops the consumer. In-flight jobs are cancelled and
// re-queued by their workers.
func (c *RedisConsumer) Stop() error {
	c.logger.Info("stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// worker is a goroutine that processes jobs
func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	logger := c.logger.With("worker", id)
	logger.Debug("worker started")

	for {
		select {
		case <-c.ctx.Done():
			logger.Debug("worker stopping")
			return
		default:
		}

		if err := c.processNextJob(c.ctx); err != nil {
			if errors.Is(err, errNoJob) || c.ctx.Err() != nil {
				continue
			}
			logger.Error("worker error", "error", err)
			select {
			case <-time.After(time.Second):
			case <-c.ctx.Done():
			}
		}
	}
}

// processNextJob fetches and processes the next job from the queue
func (c *RedisConsumer) processNextJob(ctx context.Context) error {
	job, err := c.queue.Next(ctx, c.config.PollTimeout)
	if err != nil {
		return err
	}
	c.handleJob(ctx, job)
	return nil
}

// handleJob runs one job and records its outcome. Failures are re-queued
// until the job's retry budget is spent; fatal input errors fail at once.
func (c *RedisConsumer) handleJob(ctx context.Context, job *RedisJobData) {
	payload := &job.Payload
	if payload.JobID == "" {
		payload.JobID = job.ID
	}
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = c.config.MaxRetries
	}
	logger := c.logger.With("job_id", payload.JobID)

	// bookkeeping writes must land even when the consumer is stopping
	bg := context.WithoutCancel(ctx)

	c.mark(logger, "processing", c.queue.MarkProcessing(bg, payload.JobID))
	c.publish(bg, logger, "processing", payload.JobID)

	result, err := c.runner.run(ctx, payload)
	if err == nil {
		c.mark(logger, "completed", c.queue.MarkCompleted(bg, payload.JobID, result))
		c.runner.completed(bg, payload, result)
		c.publish(bg, logger, "completed", payload.JobID)
		return
	}

	if ctx.Err() != nil {
		// stopping: hand the job back without spending an attempt
		if perr := c.queue.Push(bg, job); perr != nil {
			logger.Error("failed to re-queue interrupted job", "error", perr)
		}
		return
	}

	job.Attempts++
	if retryable(err) && job.Attempts < maxRetries {
		if perr := c.queue.Push(bg, job); perr != nil {
			logger.Error("failed to re-queue job", "error", perr)
		} else {
			logger.Warn("job re-queued for retry", "attempt", job.Attempts, "max_retries", maxRetries, "error", err)
			c.publish(bg, logger, "retrying", payload.JobID)
			return
		}
	}

	logger.Error("job failed", "attempts", job.Attempts, "error", err)
	c.mark(logger, "failed", c.queue.MarkFailed(bg, payload.JobID, errorInfo(err, job.Attempts)))
	c.runner.failed(bg, payload, job.Attempts, err)
	c.publish(bg, logger, "failed", payload.JobID)
}

func (c *RedisConsumer) mark(logger *logging.Logger, status string, err error) {
	if err != nil {
		logger.Warn("failed to update queue state", "status", status, "error", err)
	}
}

func (c *RedisConsumer) publish(ctx context.Context, logger *logging.Logger, status, jobID string) {
	if err := c.queue.Publish(ctx, status, jobID); err != nil {
		logger.Warn("failed to publish job event", "status", status, "error", err)
	}
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	return c.queue.Stats(ctx)
}

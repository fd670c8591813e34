/**
 * TF page pipeline worker - Main Entry Point
 *
 * Consumes document jobs and runs each through the page pipeline:
 * split, recognize (vision / document-AI / local OCR), extract fields,
 * classify, group and persist.
 *
 * Queue protocols:
 * - redis: LIST protocol shared with the TypeScript RedisQueue
 * - asynq: tf:process-document tasks
 */

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/SandySenthilHub/TF-Phase1/internal/config"
	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
	"github.com/SandySenthilHub/TF-Phase1/internal/processor"
	"github.com/SandySenthilHub/TF-Phase1/internal/queue"
)

type consumer interface {
	start(ctx context.Context) error
	stop(ctx context.Context) error
}

type redisConsumer struct{ *queue.RedisConsumer }

func (c redisConsumer) start(ctx context.Context) error { return c.Start() }
func (c redisConsumer) stop(ctx context.Context) error  { return c.Stop() }

type asynqConsumer struct{ *queue.Consumer }

func (c asynqConsumer) start(ctx context.Context) error { return c.Start(ctx) }
func (c asynqConsumer) stop(ctx context.Context) error  { return c.Stop(ctx) }

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)
	logger := logging.NewLogger("Worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, processor.BuildOptions{}, logger)
	stop()
	if err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

// run owns every resource it opens and releases them before returning
func run(ctx context.Context, cfg *config.Config, opts processor.BuildOptions, logger *logging.Logger) error {
	logger.Info("worker starting",
		"queue_backend", cfg.QueueBackend,
		"queue", cfg.QueueName,
		"workers", cfg.WorkerConcurrency,
		"page_concurrency", cfg.PageConcurrency,
		"postgres", cfg.PostgresEnabled(),
		"vector_index", cfg.VectorIndexEnabled())

	rt, err := processor.Build(ctx, cfg, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("error closing runtime", "error", err)
		}
	}()

	qc, err := openConsumer(cfg, rt.Processor)
	if err != nil {
		return err
	}
	if err := qc.start(ctx); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	logger.Info("worker ready, waiting for jobs")

	<-ctx.Done()
	logger.Info("shutdown signal received, draining workers")

	if err := qc.stop(context.Background()); err != nil {
		logger.Error("error stopping queue consumer", "error", err)
	}
	if stats, err := rt.Storage.GetStats(context.Background()); err == nil {
		logger.Info("storage stats", "stats", stats)
	}
	logger.Info("shutdown complete")
	return nil
}

var openConsumer = newConsumer

func newConsumer(cfg *config.Config, proc *processor.DocumentProcessor) (consumer, error) {
	switch cfg.QueueBackend {
	case "asynq":
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize asynq consumer: %w", err)
		}
		return asynqConsumer{c}, nil
	default:
		c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis consumer: %w", err)
		}
		return redisConsumer{c}, nil
	}
}

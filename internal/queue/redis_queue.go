package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// errNoJob is returned by Next when the blocking pop times out
var errNoJob = errors.New("no jobs available")

// jobQueue is the list-protocol state a consumer works against
type jobQueue interface {
	Next(ctx context.Context, wait time.Duration) (*RedisJobData, error)
	Push(ctx context.Context, job *RedisJobData) error
	MarkProcessing(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, result interface{}) error
	MarkFailed(ctx context.Context, jobID string, info interface{}) error
	Publish(ctx context.Context, status, jobID string) error
	Stats(ctx context.Context) (map[string]int64, error)
}

// redisJobQueue keeps jobs in the layout used by the TypeScript RedisQueue:
//
//	<queue>            LIST of job IDs (LPUSH in, BRPOP out)
//	<queue>:data       HASH job ID -> RedisJobData JSON
//	<queue>:processing SET, <queue>:completed SET, <queue>:failed SET
//	<queue>:results    HASH job ID -> result JSON
//	<queue>:errors     HASH job ID -> error JSON
//	<queue>:events     pub/sub channel
type redisJobQueue struct {
	client redis.UniversalClient
	name   string
}

func newRedisJobQueue(client redis.UniversalClient, name string) *redisJobQueue {
	return &redisJobQueue{client: client, name: name}
}

func (q *redisJobQueue) key(suffix string) string {
	return fmt.Sprintf("%s:%s", q.name, suffix)
}

// Next blocks for up to wait for the next job ID and loads its data
func (q *redisJobQueue) Next(ctx context.Context, wait time.Duration) (*RedisJobData, error) {
	result, err := q.client.BRPop(ctx, wait, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errNoJob
		}
		return nil, fmt.Errorf("failed to fetch job: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid job result")
	}

	jobID := result[1]
	jobData, err := q.client.HGet(ctx, q.key("data"), jobID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job data for %s: %w", jobID, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return &job, nil
}

// Push stores the job data and appends its ID to the list
func (q *redisJobQueue) Push(ctx context.Context, job *RedisJobData) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.key("data"), job.ID, data)
		pipe.LPush(ctx, q.name, job.ID)
		return nil
	})
	return err
}

func (q *redisJobQueue) MarkProcessing(ctx context.Context, jobID string) error {
	return q.client.SAdd(ctx, q.key("processing"), jobID).Err()
}

func (q *redisJobQueue) MarkCompleted(ctx context.Context, jobID string, result interface{}) error {
	return q.finish(ctx, jobID, "completed", "results", result)
}

func (q *redisJobQueue) MarkFailed(ctx context.Context, jobID string, info interface{}) error {
	return q.finish(ctx, jobID, "failed", "errors", info)
}

func (q *redisJobQueue) finish(ctx context.Context, jobID, set, hash string, body interface{}) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal %s entry: %w", hash, err)
		}
	}
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, q.key("processing"), jobID)
		pipe.SAdd(ctx, q.key(set), jobID)
		if data != nil {
			pipe.HSet(ctx, q.key(hash), jobID, data)
		}
		return nil
	})
	return err
}

// Publish sends a job:<status> event for WebSocket streaming
func (q *redisJobQueue) Publish(ctx context.Context, status, jobID string) error {
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.Publish(ctx, q.key("events"), eventData).Err()
}

// Stats returns queue statistics
func (q *redisJobQueue) Stats(ctx context.Context) (map[string]int64, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, q.name)
	processing := pipe.SCard(ctx, q.key("processing"))
	completed := pipe.SCard(ctx, q.key("completed"))
	failed := pipe.SCard(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"renderpull/internal/frames"
	"renderpull/internal/pkg/errors"
)

func unreachable(t *testing.T) *RedisQueue {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisQueue(rdb, "renderpull:test")
}

func TestPushRejectsInvalidRequest(t *testing.T) {
	q := unreachable(t)
	_, err := q.Push(context.Background(), frames.RenderRequest{SceneID: "scene-1", StartFrame: 3, EndFrame: 1})
	if !errors.IsValidation(err) {
		t.Errorf("expected VALIDATION_ERROR before contacting redis, got %v", err)
	}
}

func TestUnreachableRedisIsUnavailable(t *testing.T) {
	q := unreachable(t)
	ctx := context.Background()

	_, err := q.Push(ctx, frames.RenderRequest{SceneID: "scene-1", Pass: "beauty", Width: 1, Height: 1})
	if !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("Push: expected UNAVAILABLE, got %v", err)
	}
	if _, err := q.Pop(ctx, 100*time.Millisecond); !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("Pop: expected UNAVAILABLE, got %v", err)
	}
}

func TestPopCancelled(t *testing.T) {
	q := unreachable(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Pop(ctx, time.Second); !errors.IsCancelled(err) {
		t.Errorf("expected CANCELLED, got %v", err)
	}
}

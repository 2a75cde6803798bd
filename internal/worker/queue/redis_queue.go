// Package queue carries render requests between the CLI and the worker over a
// Redis list.
package queue

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"renderpull/internal/frames"
	"renderpull/internal/pkg/errors"
)

// Message is one queued render request.
type Message struct {
	ID         string               `json:"id"`
	Request    frames.RenderRequest `json:"request"`
	EnqueuedAt time.Time            `json:"enqueued_at"`
}

// RedisQueue is a FIFO of messages: producers LPUSH, the worker BRPOPs.
type RedisQueue struct {
	rdb       redis.Cmdable
	queueName string
}

func NewRedisQueue(rdb redis.Cmdable, queueName string) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName}
}

// Push validates req and appends it to the queue. It returns the message ID,
// which the worker uses as the run ID.
func (q *RedisQueue) Push(ctx context.Context, req frames.RenderRequest) (*Message, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	msg := &Message{ID: uuid.NewString(), Request: req, EnqueuedAt: time.Now().UTC()}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "queue.push", "encode message")
	}
	if err := q.rdb.LPush(ctx, q.queueName, data).Err(); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.push", "lpush "+q.queueName)
	}
	return msg, nil
}

// Pop blocks for up to timeout waiting for a message. It returns nil, nil when
// the timeout elapses with the queue empty.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, errors.Cancelled(ctx.Err(), "queue.pop")
		}
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.pop", "brpop "+q.queueName)
	}
	if len(res) < 2 {
		return nil, nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, errors.Validationf("queue.pop: malformed message: %v", err)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	return &msg, nil
}

// Len reports the number of queued messages.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.queueName).Result()
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.CodeUnavailable, "queue.len", "llen "+q.queueName)
	}
	return n, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"renderpull/internal/pkg/errors"
	"renderpull/internal/worker/queue"
)

// runEnqueue pushes a render request onto the worker queue.
func runEnqueue(args []string) int {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	rf := addRequestFlags(fs)
	configPath := fs.String("config", "", "Config file (default: ~/.clara-io/config.json)")
	redisAddr := fs.String("redis", "", "Redis address (default: config redis.addr)")
	queueName := fs.String("queue", "", "Queue name (default: config redis.queue)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: renderpull enqueue <scene-id> [options]

Queue a render download. A running 'renderpull worker' picks it up.

Options:`)
		fs.PrintDefaults()
	}

	sceneID, err := parseWithScene(fs, args)
	if err != nil {
		if err == flag.ErrHelp {
			return ExitSuccess
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}
	if missing := rf.missing(fs); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "Error: missing required options %s\n", strings.Join(missing, ", "))
		fs.Usage()
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fail(ExitConfigError, "%v", err)
	}
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if *queueName != "" {
		cfg.Redis.Queue = *queueName
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	msg, err := queue.NewRedisQueue(rdb, cfg.Redis.Queue).Push(ctx, rf.request(sceneID, cfg))
	if err != nil {
		if errors.IsValidation(err) {
			return fail(ExitInvalidArgs, "%v", err)
		}
		return fail(ExitGeneralError, "%v", err)
	}

	fmt.Fprintf(os.Stdout, "%s\n", msg.ID)
	fmt.Fprintf(os.Stderr, "[renderpull] Queued frames %d-%d of %s on %s\n",
		msg.Request.StartFrame, msg.Request.EndFrame, msg.Request.SceneID, cfg.Redis.Queue)
	return ExitSuccess
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"renderpull/internal/frames"
	"renderpull/internal/pkg/errors"
	"renderpull/internal/progress"
	"renderpull/internal/storage"
)

// runRender downloads the frames of one scene into the configured store.
// Frames already present are skipped, so an interrupted run can be repeated.
func runRender(args []string) int {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	rf := addRequestFlags(fs)
	configPath := fs.String("config", "", "Config file (default: ~/.clara-io/config.json)")
	out := fs.String("out", "", "Output directory (overrides storage config)")
	bucket := fs.String("bucket", "", "Output bucket URL, e.g. s3://bucket?region=x (overrides storage config)")
	showProgress := fs.Bool("progress", true, "Show progress output")
	logFormat := fs.String("log-format", "", "Log format: text or json (default: LOG_FORMAT or text)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: renderpull render <scene-id> [options]

Download the rendered frames of a scene. Each frame is stored as
{scene-name}_{width}x{height}_{frame}.{format}.

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
	switch {
	case *bucket != "":
		cfg.Storage.Provider = "blob"
		cfg.Storage.BucketURL = *bucket
	case *out != "":
		cfg.Storage.Provider = "localfs"
		cfg.Storage.Root = *out
	}
	if err := cfg.Validate(); err != nil {
		return fail(ExitConfigError, "%v", err)
	}

	req := rf.request(sceneID, cfg).WithDefaults()
	if err := req.Validate(); err != nil {
		return fail(ExitInvalidArgs, "%v", err)
	}

	log := newLogger(*logFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		return fail(ExitStorageError, "open output store: %v", err)
	}
	defer func() { _ = closeStore() }()

	opts := frames.OptionsFromConfig(cfg)
	opts.Store = store
	opts.Log = log

	if *showProgress {
		reporter := progress.NewReporter(progress.Options{
			SceneName:      req.SceneName,
			StartFrame:     req.StartFrame,
			EndFrame:       req.EndFrame,
			Workers:        min(req.Concurrency, req.Frames()),
			Output:         os.Stderr,
			UpdateInterval: 5 * time.Second,
		})
		reporter.Start()
		defer reporter.Stop()
		opts.Observer = reporter
	}

	summary, err := frames.NewOrchestrator(opts).Run(ctx, req, frames.CredentialsFromConfig(cfg))
	return renderExitCode(summary, err)
}

func renderExitCode(summary *frames.Summary, err error) int {
	switch {
	case errors.IsCancelled(err):
		fmt.Fprintln(os.Stderr, "[renderpull] Interrupted; run the same command again to resume")
		return ExitInterrupted
	case errors.IsValidation(err):
		return fail(ExitInvalidArgs, "%v", err)
	case err != nil:
		return fail(ExitGeneralError, "%v", err)
	case !summary.OK():
		for _, res := range summary.Results {
			if res.Outcome == frames.OutcomeFailed {
				fmt.Fprintf(os.Stderr, "[renderpull] frame %d failed: %v\n", res.Frame, res.Err)
			}
		}
		return ExitFramesFailed
	default:
		return ExitSuccess
	}
}

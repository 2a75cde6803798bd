package main

import (
	"flag"
	"fmt"
	"os"

	"renderpull/internal/config"
	"renderpull/internal/frames"
	"renderpull/internal/pkg/logger"
)

// requestFlags are the render request flags shared by render and enqueue.
type requestFlags struct {
	sceneName  *string
	startFrame *int
	endFrame   *int
	pass       *string
	width      *int
	height     *int
	threads    *int
	format     *string
}

func addRequestFlags(fs *flag.FlagSet) *requestFlags {
	return &requestFlags{
		sceneName:  fs.String("scene-name", "", "Base name of the output files (default: scene ID)"),
		startFrame: fs.Int("start-frame", 0, "First frame to download (required)"),
		endFrame:   fs.Int("end-frame", 0, "Last frame to download, inclusive (required)"),
		pass:       fs.String("pass", "", "Render pass (required)"),
		width:      fs.Int("width", 0, "Frame width in pixels (required)"),
		height:     fs.Int("height", 0, "Frame height in pixels (required)"),
		threads:    fs.Int("threads", 0, "Concurrent frame downloads (default: config threads or 3)"),
		format:     fs.String("format", "", "Image format (default: config format or png)"),
	}
}

// missing returns the required request flags that were not given.
func (f *requestFlags) missing(fs *flag.FlagSet) []string {
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	var out []string
	for _, name := range []string{"start-frame", "end-frame", "pass", "width", "height"} {
		if !set[name] {
			out = append(out, "-"+name)
		}
	}
	return out
}

func (f *requestFlags) request(sceneID string, cfg config.Config) frames.RenderRequest {
	req := frames.RenderRequest{
		SceneID:     sceneID,
		SceneName:   *f.sceneName,
		Pass:        *f.pass,
		Width:       *f.width,
		Height:      *f.height,
		StartFrame:  *f.startFrame,
		EndFrame:    *f.endFrame,
		Format:      cfg.Format,
		Concurrency: cfg.Concurrency,
	}
	if *f.format != "" {
		req.Format = *f.format
	}
	if *f.threads > 0 {
		req.Concurrency = *f.threads
	}
	return req
}

// parseWithScene parses flags on both sides of the scene ID positional
// argument, so "render <scene> -pass x" and "render -pass x <scene>" both work.
func parseWithScene(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() == 0 {
		return "", fmt.Errorf("scene ID is required")
	}
	sceneID := fs.Arg(0)
	if rest := fs.Args()[1:]; len(rest) > 0 {
		if err := fs.Parse(rest); err != nil {
			return "", err
		}
		if fs.NArg() > 0 {
			return "", fmt.Errorf("unexpected arguments: %v", fs.Args())
		}
	}
	return sceneID, nil
}

// loadConfig reads the config file (missing file allowed) and applies
// RENDERPULL_ environment overrides.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(format string) *logger.Logger {
	cfg := logger.DefaultConfig()
	if format != "" {
		cfg.Format = format
	}
	return logger.New(cfg)
}

func fail(code int, format string, args ...any) int {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return code
}

package worker

import (
	"time"

	"renderpull/internal/frames"
	"renderpull/internal/pkg/logger"
)

const (
	DefaultPopTimeout   = 5 * time.Second
	DefaultErrorBackoff = time.Second
)

type Deps struct {
	Queue       Source
	Runner      Runner
	Credentials frames.Credentials
	Registry    *Registry
	Log         *logger.Logger

	// PopTimeout bounds one BRPOP so cancellation is noticed between pops.
	PopTimeout   time.Duration
	ErrorBackoff time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Registry == nil {
		d.Registry = NewRegistry(0)
	}
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	if d.PopTimeout <= 0 {
		d.PopTimeout = DefaultPopTimeout
	}
	if d.ErrorBackoff <= 0 {
		d.ErrorBackoff = DefaultErrorBackoff
	}
	return d
}

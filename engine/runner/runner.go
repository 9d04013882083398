// Package runner supervises the engine's three OS threads — cycle,
// server, watchdog — as one errgroup so a fatal error in any of them
// cancels the others and unwinds the process cleanly.
package runner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sentovic/jack1/logger"
)

// Thread is one of the engine's supervised loops. It must return promptly
// once ctx is canceled.
type Thread func(ctx context.Context) error

// Runner runs every registered Thread concurrently and waits for all of
// them; the first thread to return a non-nil error cancels the rest.
type Runner struct {
	Log     logger.Logger
	threads map[string]Thread
}

func New(log logger.Logger) *Runner {
	return &Runner{Log: log, threads: make(map[string]Thread)}
}

// Register adds a named thread to the supervised set.
func (r *Runner) Register(name string, t Thread) {
	r.threads[name] = t
}

// Run blocks until every thread has returned. The first non-nil error
// (or ctx being canceled) cancels the context the others run under; Run
// returns the first non-nil error observed.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, t := range r.threads {
		name, t := name, t
		g.Go(func() error {
			err := t(gctx)
			if err != nil && r.Log != nil {
				r.Log.Error("thread exited", logger.Fields{"thread": name, "error": err.Error()})
			}
			return err
		})
	}
	return g.Wait()
}

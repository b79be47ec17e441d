// Package watcher runs the trigger loop: it polls the serving process's
// queue and resolves the stubs each newly submitted job needs before the
// server reaches the point of opening them.
package watcher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/comfycloud/lazymodels/pkg/logging"
	"github.com/comfycloud/lazymodels/pkg/stub"
)

// DefaultInterval is the default poll interval.
const DefaultInterval = 2 * time.Second

// Queue supplies the pending job specs of the serving process.
type Queue interface {
	PendingPrompts(ctx context.Context) ([]json.RawMessage, error)
}

// Extractor computes the model paths a job spec references.
type Extractor interface {
	Extract(raw []byte) ([]string, error)
}

// Resolver materializes stubbed paths.
type Resolver interface {
	ResolvePaths(ctx context.Context, paths []string) stub.Result
}

// Config configures a Watcher.
type Config struct {
	Queue     Queue
	Extractor Extractor
	Resolver  Resolver
	Logger    logging.Logger
	// Interval between poll ticks. Defaults to DefaultInterval.
	Interval time.Duration
	// Clock supplies the ticker. Defaults to the real clock; tests inject
	// a fake to drive ticks without real time.
	Clock Clock
}

// Watcher is the trigger loop.
type Watcher struct {
	queue     Queue
	extractor Extractor
	resolver  Resolver
	log       logging.Logger
	interval  time.Duration
	clock     Clock

	// lastSeen is the pending-queue length observed on the previous tick.
	// Growth beyond it signals new submissions. Only the run loop touches
	// it.
	lastSeen int
}

// New creates a watcher.
func New(cfg Config) *Watcher {
	w := &Watcher{
		queue:     cfg.Queue,
		extractor: cfg.Extractor,
		resolver:  cfg.Resolver,
		log:       cfg.Logger,
		interval:  cfg.Interval,
		clock:     cfg.Clock,
	}
	if w.interval <= 0 {
		w.interval = DefaultInterval
	}
	if w.clock == nil {
		w.clock = RealClock{}
	}
	return w
}

// Run polls until ctx is cancelled. Errors during a tick are logged and
// swallowed; a bad tick must never stop the loop, since that would
// silently disable lazy loading for the rest of the session.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Infof("watching job queue (interval %s)", w.interval)
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			w.tick(ctx)
		}
	}
}

// tick performs one poll cycle. When the pending queue grew since the last
// observation, every pending job is re-resolved; already-real paths are
// cheap no-ops, which keeps the loop robust to missed ticks without
// per-job bookkeeping.
func (w *Watcher) tick(ctx context.Context) {
	prompts, err := w.queue.PendingPrompts(ctx)
	if err != nil {
		w.log.Debugf("queue poll failed: %v", err)
		return
	}

	if len(prompts) > w.lastSeen {
		w.log.Infof("queue grew to %d pending job(s)", len(prompts))
		for _, raw := range prompts {
			w.resolvePrompt(ctx, raw)
		}
	}
	w.lastSeen = len(prompts)
}

func (w *Watcher) resolvePrompt(ctx context.Context, raw json.RawMessage) {
	paths, err := w.extractor.Extract(raw)
	if err != nil {
		w.log.WithError(err).Warn("skipping malformed job spec")
		return
	}
	if len(paths) == 0 {
		return
	}
	w.log.Infof("job references %d model(s)", len(paths))
	res := w.resolver.ResolvePaths(ctx, paths)
	if len(res.Failed) > 0 {
		w.log.Warnf("%d model(s) failed to download and remain stubs", len(res.Failed))
	}
	if len(res.Missing) > 0 {
		w.log.Warnf("%d referenced model(s) are not in the catalog", len(res.Missing))
	}
}

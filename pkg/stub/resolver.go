package stub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"golang.org/x/sync/singleflight"

	"github.com/comfycloud/lazymodels/pkg/events"
	"github.com/comfycloud/lazymodels/pkg/logging"
	"github.com/comfycloud/lazymodels/pkg/metrics"
	"github.com/comfycloud/lazymodels/pkg/store"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Store is the content store to fetch real model bytes from.
	Store store.Store
	// Logger is the associated logger.
	Logger logging.Logger
	// Tracker optionally records completed downloads.
	Tracker *metrics.Tracker
	// Events optionally receives download notifications.
	Events *events.Callbacks
}

// Resolver replaces placeholders with real content. Concurrent resolution
// of the same path is collapsed into a single download; disjoint paths may
// resolve concurrently.
type Resolver struct {
	store   store.Store
	log     logging.Logger
	tracker *metrics.Tracker
	events  *events.Callbacks
	group   singleflight.Group
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	return &Resolver{
		store:   cfg.Store,
		log:     cfg.Logger,
		tracker: cfg.Tracker,
		events:  cfg.Events,
	}
}

// Result reports the outcome of one ResolvePaths call.
type Result struct {
	// Resolved paths transitioned from stub to real content.
	Resolved []string
	// AlreadyReal paths had real content before the call.
	AlreadyReal []string
	// Missing paths are neither stubs nor real files.
	Missing []string
	// Failed paths are stubs whose fetch failed; they remain stubs and
	// will be retried the next time a job references them.
	Failed []string
}

// ResolvePaths materializes every stubbed path in paths. Fetch failures
// are non-destructive: the placeholder and marker stay intact. Paths that
// are already real are left untouched.
func (r *Resolver) ResolvePaths(ctx context.Context, paths []string) Result {
	var res Result
	for _, p := range paths {
		switch StateOf(p) {
		case StateStub:
			if err := r.resolveOne(ctx, p); err != nil {
				r.log.WithError(err).Errorf("failed to resolve %s", filepath.Base(p))
				res.Failed = append(res.Failed, p)
			} else {
				res.Resolved = append(res.Resolved, p)
			}
		case StateReal:
			r.log.Debugf("%s already available", filepath.Base(p))
			res.AlreadyReal = append(res.AlreadyReal, p)
		default:
			r.log.Warnf("%s not found in catalog", filepath.Base(p))
			res.Missing = append(res.Missing, p)
		}
	}
	return res
}

// resolveOne downloads the real content for one stubbed path. Calls for
// the same path share a single in-flight download.
func (r *Resolver) resolveOne(ctx context.Context, path string) error {
	_, err, _ := r.group.Do(path, func() (interface{}, error) {
		return nil, r.download(ctx, path)
	})
	return err
}

func (r *Resolver) download(ctx context.Context, path string) error {
	marker := MarkerPath(path)
	raw, err := os.ReadFile(marker)
	if err != nil {
		if os.IsNotExist(err) {
			// Resolved by a call we were coalesced behind.
			return nil
		}
		return fmt.Errorf("read marker: %w", err)
	}
	handle := strings.TrimSpace(string(raw))
	if handle == "" {
		return fmt.Errorf("marker %s is empty", marker)
	}

	name := filepath.Base(path)
	r.log.Infof("downloading %s (handle %s)", name, handle)
	start := time.Now()

	// Fetch beside the placeholder, then swap atomically so the serving
	// process sees either the empty stub or the full file, never a tear.
	partial := path + partialSuffix
	if err := r.store.Fetch(ctx, handle, partial); err != nil {
		os.Remove(partial)
		return fmt.Errorf("fetch %q: %w", handle, err)
	}
	info, err := os.Stat(partial)
	if err != nil {
		os.Remove(partial)
		return fmt.Errorf("stat downloaded file: %w", err)
	}
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return fmt.Errorf("replace placeholder: %w", err)
	}
	if err := os.Remove(marker); err != nil {
		return fmt.Errorf("remove marker: %w", err)
	}

	elapsed := time.Since(start)
	r.log.Infof("downloaded %s: %s in %s", name,
		units.HumanSize(float64(info.Size())), elapsed.Round(100*time.Millisecond))
	if r.tracker != nil {
		r.tracker.Record(path, info.Size(), elapsed)
	}
	r.events.Download(name, info.Size(), elapsed)
	return nil
}

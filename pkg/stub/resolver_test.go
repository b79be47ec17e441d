package stub

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfycloud/lazymodels/pkg/catalog"
	"github.com/comfycloud/lazymodels/pkg/events"
	"github.com/comfycloud/lazymodels/pkg/metrics"
	"github.com/comfycloud/lazymodels/pkg/models"
	"github.com/comfycloud/lazymodels/pkg/store"
)

// fakeStore serves canned content by handle and counts fetches.
type fakeStore struct {
	mu      sync.Mutex
	content map[string]string
	err     error
	fetches int
}

func (f *fakeStore) ListFolder(ctx context.Context, folderID string) ([]store.Entry, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Fetch(ctx context.Context, handle, dest string) error {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	data, ok := f.content[handle]
	if !ok {
		return errors.Errorf("unknown handle %q", handle)
	}
	return os.WriteFile(dest, []byte(data), 0o644)
}

func (f *fakeStore) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func stubbedPath(t *testing.T, layout *models.Layout, relPath, handle string) string {
	t.Helper()
	m := NewMaterializer(layout, testLogger())
	_, err := m.Materialize(catalog.Catalog{relPath: handle})
	require.NoError(t, err)
	path, ok := layout.LocalPath(relPath)
	require.True(t, ok)
	return path
}

func TestResolvePaths(t *testing.T) {
	layout := testLayout(t)
	path := stubbedPath(t, layout, "checkpoints/sdxl.safetensors", "h1")
	st := &fakeStore{content: map[string]string{"h1": "model weights"}}
	r := NewResolver(ResolverConfig{Store: st, Logger: testLogger()})

	res := r.ResolvePaths(context.Background(), []string{path})
	require.Equal(t, []string{path}, res.Resolved)

	// Stub became real: content in place, marker gone, no partial left.
	assert.Equal(t, StateReal, StateOf(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "model weights", string(data))
	assert.NoFileExists(t, MarkerPath(path))
	assert.NoFileExists(t, path+partialSuffix)
}

func TestResolvePathsAlreadyReal(t *testing.T) {
	layout := testLayout(t)
	path, _ := layout.LocalPath("vae/ae.safetensors")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("already here"), 0o644))

	st := &fakeStore{}
	r := NewResolver(ResolverConfig{Store: st, Logger: testLogger()})

	res := r.ResolvePaths(context.Background(), []string{path})
	assert.Equal(t, []string{path}, res.AlreadyReal)
	assert.Zero(t, st.fetchCount(), "real files must not be fetched again")
}

func TestResolvePathsMissing(t *testing.T) {
	layout := testLayout(t)
	path, _ := layout.LocalPath("loras/never-uploaded.safetensors")

	r := NewResolver(ResolverConfig{Store: &fakeStore{}, Logger: testLogger()})
	res := r.ResolvePaths(context.Background(), []string{path})
	assert.Equal(t, []string{path}, res.Missing)
}

func TestResolveFailureIsNonDestructive(t *testing.T) {
	layout := testLayout(t)
	path := stubbedPath(t, layout, "checkpoints/sdxl.safetensors", "h1")
	st := &fakeStore{err: errors.New("quota exceeded")}
	r := NewResolver(ResolverConfig{Store: st, Logger: testLogger()})

	res := r.ResolvePaths(context.Background(), []string{path})
	require.Equal(t, []string{path}, res.Failed)

	// The slot is still a resolvable stub: placeholder and marker intact,
	// no partial debris.
	assert.Equal(t, StateStub, StateOf(path))
	handle, err := os.ReadFile(MarkerPath(path))
	require.NoError(t, err)
	assert.Equal(t, "h1", string(handle))
	assert.NoFileExists(t, path+partialSuffix)

	// A later attempt succeeds against the same stub.
	st.err = nil
	st.content = map[string]string{"h1": "model weights"}
	res = r.ResolvePaths(context.Background(), []string{path})
	assert.Equal(t, []string{path}, res.Resolved)
	assert.Equal(t, StateReal, StateOf(path))
}

func TestResolveConvergence(t *testing.T) {
	layout := testLayout(t)
	path := stubbedPath(t, layout, "unet/flux1-dev.safetensors", "h1")
	st := &fakeStore{content: map[string]string{"h1": "weights"}}
	r := NewResolver(ResolverConfig{Store: st, Logger: testLogger()})

	first := r.ResolvePaths(context.Background(), []string{path})
	require.Equal(t, []string{path}, first.Resolved)

	// Re-resolving a resolved path is a no-op, not a second download.
	second := r.ResolvePaths(context.Background(), []string{path})
	assert.Equal(t, []string{path}, second.AlreadyReal)
	assert.Equal(t, 1, st.fetchCount())
}

func TestResolveRecordsMetricsAndEvents(t *testing.T) {
	layout := testLayout(t)
	path := stubbedPath(t, layout, "clip/clip_l.safetensors", "h1")
	st := &fakeStore{content: map[string]string{"h1": "0123456789"}}

	tracker := metrics.NewTracker()
	var gotName string
	var gotBytes int64
	r := NewResolver(ResolverConfig{
		Store:   st,
		Logger:  testLogger(),
		Tracker: tracker,
		Events: &events.Callbacks{
			OnDownload: func(name string, bytes int64, elapsed time.Duration) {
				gotName, gotBytes = name, bytes
			},
		},
	})

	res := r.ResolvePaths(context.Background(), []string{path})
	require.Len(t, res.Resolved, 1)

	snap := tracker.Snapshot()
	assert.Equal(t, 1, snap.Downloads)
	assert.Equal(t, int64(10), snap.TotalBytes)
	assert.Equal(t, "clip_l.safetensors", gotName)
	assert.Equal(t, int64(10), gotBytes)
}

func TestResolveConcurrentSamePath(t *testing.T) {
	layout := testLayout(t)
	path := stubbedPath(t, layout, "checkpoints/big.safetensors", "h1")
	st := &fakeStore{content: map[string]string{"h1": "weights"}}
	r := NewResolver(ResolverConfig{Store: st, Logger: testLogger()})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ResolvePaths(context.Background(), []string{path})
		}()
	}
	wg.Wait()

	assert.Equal(t, StateReal, StateOf(path))
	assert.NoFileExists(t, MarkerPath(path))
}

package mirror

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfycloud/lazymodels/pkg/logging"
	"github.com/comfycloud/lazymodels/pkg/models"
	"github.com/comfycloud/lazymodels/pkg/stub"
)

func testLogger() logging.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logging.NewLogrusAdapter(l)
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSyncCopiesNewFiles(t *testing.T) {
	local, remote := t.TempDir(), t.TempDir()
	write(t, filepath.Join(local, "checkpoints", "sdxl.safetensors"), "checkpoint")
	write(t, filepath.Join(local, "loras", "sub", "detail.safetensors"), "lora")

	s := NewSyncer(models.DefaultTable(), testLogger())
	stats, err := s.Sync(local, remote)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Copied)
	assert.Equal(t, int64(len("checkpoint")+len("lora")), stats.Bytes)

	data, err := os.ReadFile(filepath.Join(remote, "checkpoints", "sdxl.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, "checkpoint", string(data))
	assert.FileExists(t, filepath.Join(remote, "loras", "sub", "detail.safetensors"))
}

func TestSyncSkipsUnchanged(t *testing.T) {
	local, remote := t.TempDir(), t.TempDir()
	write(t, filepath.Join(local, "vae", "ae.safetensors"), "same size")
	write(t, filepath.Join(remote, "vae", "ae.safetensors"), "same size")

	s := NewSyncer(models.DefaultTable(), testLogger())
	stats, err := s.Sync(local, remote)
	require.NoError(t, err)
	assert.Zero(t, stats.Copied)
	assert.Equal(t, 1, stats.Skipped)
}

func TestSyncUpdatesChangedSize(t *testing.T) {
	local, remote := t.TempDir(), t.TempDir()
	write(t, filepath.Join(local, "vae", "ae.safetensors"), "new longer content")
	write(t, filepath.Join(remote, "vae", "ae.safetensors"), "old")

	s := NewSyncer(models.DefaultTable(), testLogger())
	stats, err := s.Sync(local, remote)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Copied)

	data, err := os.ReadFile(filepath.Join(remote, "vae", "ae.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, "new longer content", string(data))
}

func TestSyncIgnoresStubs(t *testing.T) {
	local, remote := t.TempDir(), t.TempDir()
	// A stubbed model from a lazy-loading session must never be pushed
	// over the mirror's real copy.
	placeholder := filepath.Join(local, "checkpoints", "sdxl.safetensors")
	write(t, placeholder, "")
	write(t, stub.MarkerPath(placeholder), "handle")
	write(t, filepath.Join(local, "checkpoints", "real.safetensors"), "real")

	s := NewSyncer(models.DefaultTable(), testLogger())
	stats, err := s.Sync(local, remote)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Copied)
	assert.NoFileExists(t, filepath.Join(remote, "checkpoints", "sdxl.safetensors"))
	assert.NoFileExists(t, filepath.Join(remote, "checkpoints", "sdxl.safetensors.stub"))
}

func TestSyncReportsOrphans(t *testing.T) {
	local, remote := t.TempDir(), t.TempDir()
	write(t, filepath.Join(local, "loras", "keep.safetensors"), "x")
	write(t, filepath.Join(remote, "loras", "keep.safetensors"), "x")
	write(t, filepath.Join(remote, "loras", "deleted-locally.safetensors"), "y")

	s := NewSyncer(models.DefaultTable(), testLogger())
	stats, err := s.Sync(local, remote)
	require.NoError(t, err)

	// Orphans are reported, never deleted.
	assert.Equal(t, []string{"loras/deleted-locally.safetensors"}, stats.Orphans)
	assert.FileExists(t, filepath.Join(remote, "loras", "deleted-locally.safetensors"))
}

func TestSyncMissingLocalRoot(t *testing.T) {
	s := NewSyncer(models.DefaultTable(), testLogger())
	_, err := s.Sync(filepath.Join(t.TempDir(), "nope"), t.TempDir())
	assert.Error(t, err)
}

func TestSyncSkipsUnknownDirectories(t *testing.T) {
	local, remote := t.TempDir(), t.TempDir()
	write(t, filepath.Join(local, "scratch", "junk.bin"), "junk")

	s := NewSyncer(models.DefaultTable(), testLogger())
	stats, err := s.Sync(local, remote)
	require.NoError(t, err)
	assert.Zero(t, stats.Copied)
	assert.NoFileExists(t, filepath.Join(remote, "scratch", "junk.bin"))
}

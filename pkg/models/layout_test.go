package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutLocalPath(t *testing.T) {
	layout := NewLayout("/app/models", DefaultTable())

	path, ok := layout.LocalPath("checkpoints/sdxl.safetensors")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("/app/models", "checkpoints", "sdxl.safetensors"), path)

	// Aliased and canonical names land on the same local path.
	aliased, ok := layout.LocalPath("text_encoders/t5xxl.safetensors")
	require.True(t, ok)
	canonical, ok := layout.LocalPath("clip/t5xxl.safetensors")
	require.True(t, ok)
	assert.Equal(t, canonical, aliased)

	_, ok = layout.LocalPath("garbage/file.bin")
	assert.False(t, ok)
}

func TestLayoutEnsureRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "models")
	layout := NewLayout(root, DefaultTable())

	require.NoError(t, layout.EnsureRoot())
	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Second call is a no-op.
	require.NoError(t, layout.EnsureRoot())
}

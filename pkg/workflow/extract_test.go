package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfycloud/lazymodels/pkg/models"
)

func testExtractor() *Extractor {
	layout := models.NewLayout("/app/models", models.DefaultTable())
	return NewExtractor(layout, DefaultLoaderTable())
}

func TestExtractCheckpointLoader(t *testing.T) {
	e := testExtractor()

	paths, err := e.Extract([]byte(`{
		"3": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sdxl.safetensors"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/app/models", "checkpoints", "sdxl.safetensors"),
	}, paths)
}

func TestExtractDualCLIPLoader(t *testing.T) {
	e := testExtractor()

	paths, err := e.Extract([]byte(`{
		"11": {"class_type": "DualCLIPLoader", "inputs": {
			"clip_name1": "clip_l.safetensors",
			"clip_name2": "t5xxl_fp16.safetensors",
			"type": "flux"
		}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/app/models", "clip", "clip_l.safetensors"),
		filepath.Join("/app/models", "clip", "t5xxl_fp16.safetensors"),
	}, paths)
}

func TestExtractMixedGraph(t *testing.T) {
	e := testExtractor()

	paths, err := e.Extract([]byte(`{
		"1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sdxl.safetensors"}},
		"2": {"class_type": "LoraLoader", "inputs": {"lora_name": "detail.safetensors", "strength_model": 0.8}},
		"3": {"class_type": "VAELoader", "inputs": {"vae_name": "ae.safetensors"}},
		"4": {"class_type": "KSampler", "inputs": {"seed": 42, "steps": 20}},
		"5": {"class_type": "SaveImage", "inputs": {"filename_prefix": "out"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("/app/models", "checkpoints", "sdxl.safetensors"),
		filepath.Join("/app/models", "loras", "detail.safetensors"),
		filepath.Join("/app/models", "vae", "ae.safetensors"),
	}, paths)
}

func TestExtractDeduplicates(t *testing.T) {
	e := testExtractor()

	paths, err := e.Extract([]byte(`{
		"1": {"class_type": "LoraLoader", "inputs": {"lora_name": "detail.safetensors"}},
		"2": {"class_type": "LoraLoaderModelOnly", "inputs": {"lora_name": "detail.safetensors"}}
	}`))
	require.NoError(t, err)
	assert.Len(t, paths, 1)
}

func TestExtractNoModels(t *testing.T) {
	e := testExtractor()

	paths, err := e.Extract([]byte(`{
		"1": {"class_type": "KSampler", "inputs": {"seed": 42}}
	}`))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestExtractIgnoresNonStringInputs(t *testing.T) {
	e := testExtractor()

	paths, err := e.Extract([]byte(`{
		"1": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": ["4", 0]}},
		"2": {"class_type": "VAELoader", "inputs": {"vae_name": ""}}
	}`))
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestExtractMalformedSpec(t *testing.T) {
	e := testExtractor()

	_, err := e.Extract([]byte(`not json`))
	assert.Error(t, err)
}

func TestLoadLoaderTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loaders.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
MyCustomLoader:
  category: checkpoints
  keys: [model_file]
`), 0o644))

	table, err := LoadLoaderTable(path)
	require.NoError(t, err)

	layout := models.NewLayout("/app/models", models.DefaultTable())
	e := NewExtractor(layout, table)
	paths, err := e.Extract([]byte(`{
		"1": {"class_type": "MyCustomLoader", "inputs": {"model_file": "x.safetensors"}}
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("/app/models", "checkpoints", "x.safetensors")}, paths)
}

func TestLoadLoaderTableRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loaders.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))

	_, err := LoadLoaderTable(path)
	assert.Error(t, err)
}

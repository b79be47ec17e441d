// Package workflow parses submitted job specifications and statically
// determines which local model files their execution will touch.
package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/comfycloud/lazymodels/pkg/models"
)

// Node is one typed node of a job graph.
type Node struct {
	ClassType string                 `json:"class_type"`
	Inputs    map[string]interface{} `json:"inputs"`
}

// Prompt is a job specification: a graph of typed nodes keyed by node ID.
type Prompt map[string]Node

// LoaderRule describes how one node kind references model files: the
// category its files live in and the input keys holding file names.
type LoaderRule struct {
	Category string   `yaml:"category"`
	Keys     []string `yaml:"keys"`
}

// LoaderTable maps node class types to loader rules. Node kinds absent from
// the table do not reference model files.
type LoaderTable map[string]LoaderRule

// DefaultLoaderTable returns the compiled-in loader table for the serving
// process's stock loader nodes.
func DefaultLoaderTable() LoaderTable {
	return LoaderTable{
		"CheckpointLoaderSimple": {Category: "checkpoints", Keys: []string{"ckpt_name"}},
		"CheckpointLoader":       {Category: "checkpoints", Keys: []string{"ckpt_name"}},
		"LoraLoader":             {Category: "loras", Keys: []string{"lora_name"}},
		"LoraLoaderModelOnly":    {Category: "loras", Keys: []string{"lora_name"}},
		"VAELoader":              {Category: "vae", Keys: []string{"vae_name"}},
		"ControlNetLoader":       {Category: "controlnet", Keys: []string{"control_net_name"}},
		"UpscaleModelLoader":     {Category: "upscale_models", Keys: []string{"model_name"}},
		"CLIPLoader":             {Category: "clip", Keys: []string{"clip_name"}},
		"UNETLoader":             {Category: "unet", Keys: []string{"unet_name"}},
		"CLIPVisionLoader":       {Category: "clip_vision", Keys: []string{"clip_name"}},
		// DualCLIPLoader reads two encoders; both inputs contribute.
		"DualCLIPLoader": {Category: "clip", Keys: []string{"clip_name1", "clip_name2"}},
	}
}

// LoadLoaderTable reads a loader table from a YAML file, keyed by node
// class type.
func LoadLoaderTable(path string) (LoaderTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read loader table: %w", err)
	}
	var t LoaderTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse loader table: %w", err)
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("loader table %q is empty", path)
	}
	return t, nil
}

// Extractor computes the set of local model paths a job references.
type Extractor struct {
	layout *models.Layout
	table  LoaderTable
}

// NewExtractor creates an extractor over the given layout and loader table.
func NewExtractor(layout *models.Layout, table LoaderTable) *Extractor {
	return &Extractor{layout: layout, table: table}
}

// Extract parses a raw job specification and returns the referenced local
// model paths. A job referencing no models yields an empty slice, not an
// error.
func (e *Extractor) Extract(raw []byte) ([]string, error) {
	var p Prompt
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse job spec: %w", err)
	}
	return e.ExtractPrompt(p), nil
}

// ExtractPrompt returns the referenced local model paths of an already
// parsed prompt, deduplicated and sorted.
func (e *Extractor) ExtractPrompt(p Prompt) []string {
	seen := make(map[string]struct{})
	for _, node := range p {
		rule, ok := e.table[node.ClassType]
		if !ok {
			continue
		}
		cat, ok := e.layout.Table().Category(rule.Category)
		if !ok {
			continue
		}
		for _, key := range rule.Keys {
			name, ok := node.Inputs[key].(string)
			if !ok || name == "" {
				continue
			}
			seen[e.layout.PathFor(cat, name)] = struct{}{}
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

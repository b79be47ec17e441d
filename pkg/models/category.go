// Package models defines the model category taxonomy and the on-disk layout
// of the serving process's models directory.
package models

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is one model kind. Each category is bound to exactly one
// directory under the models root, named identically to the category.
type Category string

// Dir returns the category's directory name under the models root.
func (c Category) Dir() string {
	return string(c)
}

// defaultCategories is the closed set of known categories, matching the
// serving process's standard models directory structure.
var defaultCategories = []string{
	"audio_encoders",
	"checkpoints",
	"clip",
	"clip_vision",
	"configs",
	"controlnet",
	"diffusers",
	"embeddings",
	"gligen",
	"hypernetworks",
	"latent_upscale_models",
	"loras",
	"model_patches",
	"photomaker",
	"style_models",
	"unet",
	"upscale_models",
	"vae",
	"vae_approx",
}

// defaultAliases maps alternate vendor folder names to canonical categories.
var defaultAliases = map[string]string{
	"text_encoders":    "clip",
	"diffusion_models": "unet",
}

// Table resolves catalog paths to categories. Lookups are pure; the table
// is immutable after construction.
type Table struct {
	categories map[string]struct{}
	aliases    map[string]string
}

// DefaultTable returns the compiled-in category table.
func DefaultTable() *Table {
	return newTable(defaultCategories, defaultAliases)
}

func newTable(categories []string, aliases map[string]string) *Table {
	t := &Table{
		categories: make(map[string]struct{}, len(categories)),
		aliases:    make(map[string]string, len(aliases)),
	}
	for _, c := range categories {
		t.categories[c] = struct{}{}
	}
	for alias, target := range aliases {
		t.aliases[alias] = target
	}
	return t
}

// tableFile is the YAML shape of an on-disk category table.
type tableFile struct {
	Categories []string          `yaml:"categories"`
	Aliases    map[string]string `yaml:"aliases"`
}

// LoadTable reads a category table from a YAML file. Aliases must point at
// listed categories.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category table: %w", err)
	}
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse category table: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("category table %q lists no categories", path)
	}
	t := newTable(f.Categories, f.Aliases)
	for alias, target := range f.Aliases {
		if _, ok := t.categories[target]; !ok {
			return nil, fmt.Errorf("alias %q points at unknown category %q", alias, target)
		}
	}
	return t, nil
}

// Resolve splits relPath on its first separator and maps the leading
// segment to a category, applying aliases. It returns the category, the
// remainder of the path under the category directory, and whether the path
// was recognized. Paths without a separator are always rejected.
func (t *Table) Resolve(relPath string) (Category, string, bool) {
	first, rest, found := strings.Cut(relPath, "/")
	if !found || rest == "" {
		return "", "", false
	}
	name := strings.ToLower(first)
	if target, ok := t.aliases[name]; ok {
		name = target
	}
	if _, ok := t.categories[name]; !ok {
		return "", "", false
	}
	return Category(name), rest, true
}

// Category maps a bare category or alias name to a category.
func (t *Table) Category(name string) (Category, bool) {
	name = strings.ToLower(name)
	if target, ok := t.aliases[name]; ok {
		name = target
	}
	_, ok := t.categories[name]
	return Category(name), ok
}

// Categories returns the known categories in sorted order.
func (t *Table) Categories() []Category {
	out := make([]Category, 0, len(t.categories))
	for c := range t.categories {
		out = append(out, Category(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package models

import (
	"os"
	"path/filepath"
)

// DefaultModelsPath is the models root inside the serving container.
const DefaultModelsPath = "/app/models"

// Layout describes where model files live on local disk.
type Layout struct {
	root  string
	table *Table
}

// NewLayout creates a layout rooted at root, resolving categories through
// table.
func NewLayout(root string, table *Table) *Layout {
	return &Layout{root: root, table: table}
}

// Root returns the models root directory.
func (l *Layout) Root() string {
	return l.root
}

// Table returns the layout's category table.
func (l *Layout) Table() *Table {
	return l.table
}

// PathFor returns the local path of a model file within a category.
func (l *Layout) PathFor(cat Category, name string) string {
	return filepath.Join(l.root, cat.Dir(), filepath.FromSlash(name))
}

// LocalPath resolves a catalog-relative path (category/rest) to a local
// path. The second return reports whether the category was recognized.
func (l *Layout) LocalPath(relPath string) (string, bool) {
	cat, rest, ok := l.table.Resolve(relPath)
	if !ok {
		return "", false
	}
	return l.PathFor(cat, rest), true
}

// EnsureRoot creates the models root directory if missing.
func (l *Layout) EnsureRoot() error {
	return os.MkdirAll(l.root, 0o755)
}

package stub

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/comfycloud/lazymodels/pkg/catalog"
	"github.com/comfycloud/lazymodels/pkg/logging"
	"github.com/comfycloud/lazymodels/pkg/models"
)

// Materializer creates placeholders for catalog entries so the serving
// process sees a complete model library at boot.
type Materializer struct {
	layout *models.Layout
	log    logging.Logger
}

// NewMaterializer creates a materializer writing under layout's root.
func NewMaterializer(layout *models.Layout, log logging.Logger) *Materializer {
	return &Materializer{layout: layout, log: log}
}

// Materialize creates a zero-byte placeholder and handle marker for every
// catalog entry with a recognized category, skipping files that are
// already real from an earlier session. Idempotent: re-running with the
// same catalog creates nothing new.
func (m *Materializer) Materialize(c catalog.Catalog) (int, error) {
	if err := m.layout.EnsureRoot(); err != nil {
		return 0, fmt.Errorf("create models root: %w", err)
	}

	created := 0
	for relPath, handle := range c {
		localPath, ok := m.layout.LocalPath(relPath)
		if !ok {
			m.log.Debugf("skipping %q: unrecognized category", relPath)
			continue
		}
		if StateOf(localPath) == StateReal {
			// Real download from a previous session on this volume.
			continue
		}
		if err := m.materializeOne(localPath, handle); err != nil {
			m.log.WithError(err).Warnf("failed to materialize stub for %q", relPath)
			continue
		}
		created++
	}

	m.log.Infof("materialized %d stub files", created)
	return created, nil
}

func (m *Materializer) materializeOne(localPath, handle string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create category directory: %w", err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create placeholder: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close placeholder: %w", err)
	}
	if err := os.WriteFile(MarkerPath(localPath), []byte(handle), 0o644); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	return nil
}

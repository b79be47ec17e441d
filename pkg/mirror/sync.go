// Package mirror keeps a mirror directory (typically a mounted cloud
// drive) up to date with the local models tree. Files are copied when new
// or when their sizes differ; mirror files with no local counterpart are
// reported as orphans, never deleted.
package mirror

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"

	"github.com/comfycloud/lazymodels/pkg/logging"
	"github.com/comfycloud/lazymodels/pkg/models"
	"github.com/comfycloud/lazymodels/pkg/stub"
)

// Stats summarizes one sync run.
type Stats struct {
	Copied  int
	Skipped int
	Bytes   int64
	// Orphans are mirror paths (relative to the mirror root) with no
	// local counterpart.
	Orphans []string
}

// Syncer copies model files from a local tree into a mirror tree.
type Syncer struct {
	table *models.Table
	log   logging.Logger
}

// NewSyncer creates a syncer that visits the category directories of
// table.
func NewSyncer(table *models.Table, log logging.Logger) *Syncer {
	return &Syncer{table: table, log: log}
}

// Sync makes mirrorRoot match localRoot for every category directory.
// Size equality is the change detector, matching the store's coarse
// metadata. Copy errors are logged and skipped so one bad file does not
// abort the run.
func (s *Syncer) Sync(localRoot, mirrorRoot string) (Stats, error) {
	var stats Stats

	if _, err := os.Stat(localRoot); err != nil {
		return stats, fmt.Errorf("local models path: %w", err)
	}
	if err := os.MkdirAll(mirrorRoot, 0o755); err != nil {
		return stats, fmt.Errorf("create mirror root: %w", err)
	}

	for _, cat := range s.table.Categories() {
		localDir := filepath.Join(localRoot, cat.Dir())
		mirrorDir := filepath.Join(mirrorRoot, cat.Dir())

		localFiles, err := fileSizes(localDir)
		if err != nil {
			return stats, fmt.Errorf("scan %s: %w", localDir, err)
		}
		if len(localFiles) == 0 {
			continue
		}
		mirrorFiles, err := fileSizes(mirrorDir)
		if err != nil {
			return stats, fmt.Errorf("scan %s: %w", mirrorDir, err)
		}
		s.log.Infof("[%s] %d files locally, %d on mirror", cat, len(localFiles), len(mirrorFiles))

		for rel, size := range localFiles {
			if mirrorFiles[rel] == size {
				stats.Skipped++
				continue
			}
			src := filepath.Join(localDir, rel)
			dst := filepath.Join(mirrorDir, rel)
			action := "new"
			if _, exists := mirrorFiles[rel]; exists {
				action = "update"
			}
			s.log.Infof("  [%s] %s/%s (%s)", action, cat, rel, units.HumanSize(float64(size)))
			if err := copyFile(src, dst); err != nil {
				s.log.WithError(err).Errorf("copy %s/%s failed", cat, rel)
				continue
			}
			stats.Copied++
			stats.Bytes += size
		}

		for rel := range mirrorFiles {
			if _, ok := localFiles[rel]; !ok {
				orphan := filepath.ToSlash(filepath.Join(cat.Dir(), rel))
				stats.Orphans = append(stats.Orphans, orphan)
				s.log.Warnf("  [orphan] %s exists on mirror but not locally", orphan)
			}
		}
	}

	s.log.Infof("sync complete: %d copied, %d skipped, %s transferred",
		stats.Copied, stats.Skipped, units.HumanSize(float64(stats.Bytes)))
	return stats, nil
}

// fileSizes walks dir and maps relative path to size. Stub markers and
// their placeholders are not library content and are excluded.
func fileSizes(dir string) (map[string]int64, error) {
	sizes := make(map[string]int64)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasSuffix(path, stub.MarkerSuffix) {
			return nil
		}
		if stub.IsStub(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		sizes[rel] = info.Size()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sizes, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

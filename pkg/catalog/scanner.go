// Package catalog discovers the remote model library. A scan produces a
// flat mapping from normalized relative path to the store's content handle
// for that file.
package catalog

import (
	"context"
	"strings"

	"github.com/comfycloud/lazymodels/pkg/logging"
	"github.com/comfycloud/lazymodels/pkg/store"
)

// Catalog maps a normalized relative path to its content handle.
type Catalog map[string]string

// Scan enumerates the store folder tree rooted at folderID. It fails open:
// on transport errors it logs and returns an empty catalog so the serving
// process can still boot, degraded to an empty model library. Duplicate
// normalized paths keep the first handle seen.
func Scan(ctx context.Context, st store.Store, folderID string, log logging.Logger) Catalog {
	entries, err := st.ListFolder(ctx, folderID)
	if err != nil {
		log.WithError(err).Warnf("catalog scan of folder %s failed, continuing with empty catalog", folderID)
		return Catalog{}
	}

	c := make(Catalog, len(entries))
	for _, e := range entries {
		p := NormalizePath(e.Path)
		if p == "" || e.Handle == "" {
			continue
		}
		if prev, exists := c[p]; exists {
			log.Warnf("duplicate catalog path %q (handles %s, %s), keeping first", p, prev, e.Handle)
			continue
		}
		c[p] = e.Handle
	}
	log.Infof("catalog scan found %d files", len(c))
	return c
}

// NormalizePath converts backslashes to forward slashes and strips leading
// "./" and "/" so category resolution is platform-independent.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimLeft(p, "./")
}

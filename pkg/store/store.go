// Package store defines the content store interface that backs lazy model
// loading. A store holds the operator's model library as a folder tree and
// serves individual objects addressed by opaque handles.
package store

import "context"

// Entry describes one file in a store folder listing.
type Entry struct {
	// Path is the file's path relative to the listed folder. Separators and
	// leading "./" are as reported by the store; normalization happens in
	// the catalog scanner.
	Path string
	// Handle is the store's opaque identifier for the file. It is
	// sufficient to later fetch that exact object and has no other
	// structure the caller may rely on.
	Handle string
}

// Store is a remote content store holding model files.
type Store interface {
	// ListFolder enumerates the folder tree rooted at folderID and returns
	// one entry per file.
	ListFolder(ctx context.Context, folderID string) ([]Entry, error)
	// Fetch downloads the object identified by handle into the local file
	// at dest, creating or truncating it. On error the contents of dest
	// are unspecified; callers that need atomicity must fetch into a
	// temporary path.
	Fetch(ctx context.Context, handle, dest string) error
}

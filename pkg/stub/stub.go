// Package stub implements lazy model materialization. At boot every
// catalog entry becomes a zero-byte placeholder plus a sidecar marker
// holding its content handle; the resolver later swaps placeholders for
// real content when a job references them.
package stub

import "os"

// MarkerSuffix is appended to a model path to form its sidecar marker
// path. The marker's presence is the sole authoritative stub signal; its
// content is the store handle needed to fetch the real bytes.
const MarkerSuffix = ".stub"

// partialSuffix is appended to a model path while its real content is
// being fetched. The partial file is renamed over the placeholder in one
// atomic step so a concurrent reader never observes a torn write.
const partialSuffix = ".partial"

// State classifies a local model slot.
type State int

const (
	// StateAbsent means no file exists at the path.
	StateAbsent State = iota
	// StateStub means a placeholder with a sidecar marker exists.
	StateStub
	// StateReal means a nonzero-length file with no marker exists.
	StateReal
)

// MarkerPath returns the sidecar marker path for a model path.
func MarkerPath(path string) string {
	return path + MarkerSuffix
}

// IsStub reports whether the model at path is a placeholder. Marker
// presence decides; file size does not, since a real file could in theory
// be empty.
func IsStub(path string) bool {
	_, err := os.Stat(MarkerPath(path))
	return err == nil
}

// StateOf classifies the slot at path.
func StateOf(path string) State {
	if IsStub(path) {
		return StateStub
	}
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return StateReal
	}
	return StateAbsent
}

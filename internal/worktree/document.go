package worktree

import (
	"os"
	"sync"
)

// DocumentHandle is a lazily-loaded view of a file entry's on-disk
// content. The actual artifact format (KDL/JSON request documents) is
// out of scope for the storage core (§1); this handle only guarantees
// that a parse/read failure surfaces to the caller instead of aborting
// whatever produced the entry, matching §4.5.1's "parse errors do not
// abort scan; they produce a file entry whose handle reports an error to
// later readers."
type DocumentHandle struct {
	absPath string

	once    sync.Once
	content []byte
	err     error
}

// NewDocumentHandle creates a handle that will read absPath on first use.
func NewDocumentHandle(absPath string) *DocumentHandle {
	return &DocumentHandle{absPath: absPath}
}

func (h *DocumentHandle) load() {
	h.once.Do(func() {
		h.content, h.err = os.ReadFile(h.absPath)
	})
}

// Bytes returns the file's raw content, reading it on first call.
func (h *DocumentHandle) Bytes() ([]byte, error) {
	h.load()
	return h.content, h.err
}

// Err reports whether loading the document failed, without forcing a
// caller that only cares about presence to hold onto the content.
func (h *DocumentHandle) Err() error {
	h.load()
	return h.err
}

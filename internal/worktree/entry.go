// Package worktree implements the in-memory indexed mirror of a project's
// on-disk tree (§3.5, §4.4) and the engine that keeps it in sync with the
// filesystem (§4.5).
package worktree

import (
	"time"

	"github.com/sapic-foundation/sapic-core/internal/ids"
)

// RootPath is the sentinel path denoting the worktree root itself.
const RootPath = "."

// EntryKind distinguishes a directory entry from a file entry.
type EntryKind int

const (
	Dir EntryKind = iota
	File
)

func (k EntryKind) String() string {
	if k == Dir {
		return "dir"
	}
	return "file"
}

// FileID is the OS-provided inode/device identifier used to recognize
// that a path surviving a rename is "the same" underlying file (§3.5,
// §4.5.2 id-preservation rule). The zero value never matches a real file,
// so on platforms where it can't be obtained, rename degrades to the
// Removed+Created shape the spec explicitly tolerates.
type FileID struct {
	Dev uint64
	Ino uint64
}

func (f FileID) valid() bool {
	return f != FileID{}
}

// Entry is one node in a snapshot.
type Entry struct {
	ID     ids.EntryId
	Path   string // relative to the project root, forward-slash separators
	Kind   EntryKind
	MTime  *time.Time
	FileID FileID
	Handle *DocumentHandle // nil for directories
}

// ChangeKind tags how a path was affected by a worktree mutation.
type ChangeKind int

const (
	Created ChangeKind = iota
	Updated
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "Created"
	case Updated:
		return "Updated"
	default:
		return "Removed"
	}
}

// ChangeEntry is one element of a change set (§3.6).
type ChangeEntry struct {
	Path string
	ID   ids.EntryId
	Kind ChangeKind
}

// ChangeSet is the ordered result of a worktree mutation or scan,
// consumed by UI streams and by callers that need to drop dead entries'
// KV keys.
type ChangeSet []ChangeEntry

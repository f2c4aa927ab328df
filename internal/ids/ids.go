// Package ids defines the opaque identifier types that durably reference
// workspaces, projects, and worktree entries. An id is assigned once at
// creation and never reused or changed by a rename.
package ids

import (
	"strings"

	"github.com/google/uuid"
)

// WorkspaceId opaquely identifies a workspace for its entire lifetime.
type WorkspaceId string

// ProjectId opaquely identifies a project for its entire lifetime.
type ProjectId string

// EntryId opaquely identifies a worktree entry; stable across rename.
type EntryId string

// NewWorkspaceId generates a fresh, compact, URL-safe workspace id.
func NewWorkspaceId() WorkspaceId {
	return WorkspaceId(uuid.NewString())
}

// NewProjectId generates a fresh, compact, URL-safe project id.
func NewProjectId() ProjectId {
	return ProjectId(uuid.NewString())
}

// NewEntryId generates a fresh, compact, URL-safe entry id.
func NewEntryId() EntryId {
	return EntryId(uuid.NewString())
}

// Valid reports whether s could plausibly be an id: non-empty and free of
// path separators and ':', since ids are interpolated directly into on-disk
// paths and KV key segments.
func Valid(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/\\:")
}

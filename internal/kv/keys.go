package kv

import (
	"fmt"

	"github.com/sapic-foundation/sapic-core/internal/ids"
)

// The following builders produce the conventional `:`-separated keys named
// in §3.3. They exist so every caller spells a given key the same way.

// WorkspaceLastOpenedAtKey is an Application-scope key.
func WorkspaceLastOpenedAtKey(id ids.WorkspaceId) string {
	return fmt.Sprintf("workspace:%s:last_opened_at", id)
}

// LastActiveWorkspaceKey is an Application-scope key.
const LastActiveWorkspaceKey = "last_active_workspace"

// ProjectOrderKey is a Workspace-scope key.
func ProjectOrderKey(id ids.ProjectId) string {
	return fmt.Sprintf("project:%s:order", id)
}

// ExpandedItemsKey is a Workspace-scope key (sidebar tree expansion state).
const ExpandedItemsKey = "expanded_items"

// SidebarSizeKey is a Workspace-scope key.
const SidebarSizeKey = "layout:sidebar:size"

// EntryOrderKey is a Project-scope key.
func EntryOrderKey(id ids.EntryId) string {
	return fmt.Sprintf("entry:%s:order", id)
}

// EntryExpandedKey is a Project-scope key.
func EntryExpandedKey(id ids.EntryId) string {
	return fmt.Sprintf("entry:%s:expanded", id)
}

// ExpandedEntriesKey is a Project-scope key.
const ExpandedEntriesKey = "expanded_entries"

// ProjectPrefix is the Workspace-scope prefix covering every key belonging
// to a given project (used by remove_batch_by_prefix on deletion).
func ProjectPrefix(id ids.ProjectId) string {
	return fmt.Sprintf("project:%s:", id)
}

// WorkspacePrefix is the Application-scope prefix covering every key
// belonging to a given workspace.
func WorkspacePrefix(id ids.WorkspaceId) string {
	return fmt.Sprintf("workspace:%s:", id)
}

// EntryPrefix is the Project-scope prefix covering every key belonging to
// a given entry.
func EntryPrefix(id ids.EntryId) string {
	return fmt.Sprintf("entry:%s:", id)
}

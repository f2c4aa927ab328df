// Package corepath computes the canonical on-disk paths for the user-dir
// layout described in the spec's data model: globals, per-workspace state,
// and per-project state/config/manifest, including the external_path
// redirection a project config may request.
package corepath

import (
	"path/filepath"

	"github.com/sapic-foundation/sapic-core/internal/ids"
)

// GlobalsDir returns the directory backing the Application scope.
func GlobalsDir(userDir string) string {
	return filepath.Join(userDir, "globals")
}

// ApplicationStateDB returns the Application scope's database file.
func ApplicationStateDB(userDir string) string {
	return filepath.Join(GlobalsDir(userDir), "state.db")
}

// WorkspacesDir returns the parent directory of all workspaces.
func WorkspacesDir(userDir string) string {
	return filepath.Join(userDir, "workspaces")
}

// WorkspaceDir returns a single workspace's root directory.
func WorkspaceDir(userDir string, id ids.WorkspaceId) string {
	return filepath.Join(WorkspacesDir(userDir), string(id))
}

// WorkspaceStateDB returns the Workspace scope's database file.
func WorkspaceStateDB(userDir string, id ids.WorkspaceId) string {
	return filepath.Join(WorkspaceDir(userDir, id), "state.db")
}

// WorkspaceManifest returns the workspace manifest path (Sapic.json).
func WorkspaceManifest(userDir string, id ids.WorkspaceId) string {
	return filepath.Join(WorkspaceDir(userDir, id), "Sapic.json")
}

// ProjectsDir returns a workspace's projects directory.
func ProjectsDir(userDir string, wsID ids.WorkspaceId) string {
	return filepath.Join(WorkspaceDir(userDir, wsID), "projects")
}

// ProjectInternalDir returns the internal (never redirected) project
// directory: this is where state.db and config.json always live.
func ProjectInternalDir(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId) string {
	return filepath.Join(ProjectsDir(userDir, wsID), string(prID))
}

// ProjectStateDB returns the Project scope's database file.
func ProjectStateDB(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId) string {
	return filepath.Join(ProjectInternalDir(userDir, wsID, prID), "state.db")
}

// ProjectConfigPath returns the project's internal config.json path.
func ProjectConfigPath(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId) string {
	return filepath.Join(ProjectInternalDir(userDir, wsID, prID), "config.json")
}

// ProjectRootDir returns the directory the project's manifest and
// resource subdirectories live under, honoring external_path redirection
// when set (§3.4: "the manifest and resource directories live at that
// external path while state.db and config.json remain at the internal
// path").
func ProjectRootDir(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId, externalPath string) string {
	if externalPath != "" {
		return externalPath
	}
	return ProjectInternalDir(userDir, wsID, prID)
}

// ProjectManifestPath returns the project manifest path, honoring
// external_path redirection.
func ProjectManifestPath(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId, externalPath string) string {
	return filepath.Join(ProjectRootDir(userDir, wsID, prID, externalPath), "Sapic.json")
}

// ProjectAssetsDir, ProjectEnvironmentsDir and ProjectResourcesDir return
// the project's resource subdirectories, honoring external_path.
func ProjectAssetsDir(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId, externalPath string) string {
	return filepath.Join(ProjectRootDir(userDir, wsID, prID, externalPath), "assets")
}

func ProjectEnvironmentsDir(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId, externalPath string) string {
	return filepath.Join(ProjectRootDir(userDir, wsID, prID, externalPath), "environments")
}

func ProjectResourcesDir(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId, externalPath string) string {
	return filepath.Join(ProjectRootDir(userDir, wsID, prID, externalPath), "resources")
}

// ProjectGitDir returns the optional .git directory location.
func ProjectGitDir(userDir string, wsID ids.WorkspaceId, prID ids.ProjectId, externalPath string) string {
	return filepath.Join(ProjectRootDir(userDir, wsID, prID, externalPath), ".git")
}

package corepath

import (
	"path/filepath"
	"testing"

	"github.com/sapic-foundation/sapic-core/internal/ids"
)

func TestProjectRootDirHonorsExternalPath(t *testing.T) {
	ws, pr := ids.WorkspaceId("w1"), ids.ProjectId("p1")

	internal := ProjectRootDir("/user", ws, pr, "")
	if want := ProjectInternalDir("/user", ws, pr); internal != want {
		t.Fatalf("ProjectRootDir() with no external_path = %q, want %q", internal, want)
	}

	external := ProjectRootDir("/user", ws, pr, "/ext/p1")
	if external != "/ext/p1" {
		t.Fatalf("ProjectRootDir() with external_path = %q, want /ext/p1", external)
	}
}

func TestProjectStateDBNeverRedirects(t *testing.T) {
	ws, pr := ids.WorkspaceId("w1"), ids.ProjectId("p1")

	got := ProjectStateDB("/user", ws, pr)
	want := filepath.Join("/user", "workspaces", "w1", "projects", "p1", "state.db")
	if got != want {
		t.Fatalf("ProjectStateDB() = %q, want %q", got, want)
	}
}

func TestProjectResourceDirsUnderExternalPath(t *testing.T) {
	ws, pr := ids.WorkspaceId("w1"), ids.ProjectId("p1")

	if got, want := ProjectAssetsDir("/user", ws, pr, "/ext"), "/ext/assets"; got != want {
		t.Fatalf("ProjectAssetsDir() = %q, want %q", got, want)
	}
	if got, want := ProjectEnvironmentsDir("/user", ws, pr, "/ext"), "/ext/environments"; got != want {
		t.Fatalf("ProjectEnvironmentsDir() = %q, want %q", got, want)
	}
	if got, want := ProjectResourcesDir("/user", ws, pr, "/ext"), "/ext/resources"; got != want {
		t.Fatalf("ProjectResourcesDir() = %q, want %q", got, want)
	}
}

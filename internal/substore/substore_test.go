package substore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sapic-foundation/sapic-core/internal/coreerr"
	"github.com/sapic-foundation/sapic-core/internal/ids"
	"github.com/sapic-foundation/sapic-core/internal/kv"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	opener := func(dbPath string) (kv.KvStorage, error) {
		return kv.Open(filepath.Join(root, "db", dbPath), kv.Options{})
	}
	return New(root, opener)
}

func TestAddProjectFailsWithoutWorkspace(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ws := ids.NewWorkspaceId()
	pr := ids.NewProjectId()

	err := m.AddProject(ctx, ws, pr)
	if err == nil {
		t.Fatalf("expected error adding project to unopened workspace")
	}
	if coreerr.KindOf(err) != coreerr.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", coreerr.KindOf(err))
	}
}

func TestScopeLifecycleClosesOnWorkspaceRemoval(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ws := ids.NewWorkspaceId()
	pr := ids.NewProjectId()

	if err := m.AddWorkspace(ctx, ws); err != nil {
		t.Fatalf("AddWorkspace: %v", err)
	}
	if err := m.AddProject(ctx, ws, pr); err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	projScope, err := m.Project(pr)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if err := projScope.Put(ctx, "k", []byte(`"v"`)); err != nil {
		t.Fatalf("Put on project scope: %v", err)
	}

	if err := m.RemoveWorkspace(ctx, ws); err != nil {
		t.Fatalf("RemoveWorkspace: %v", err)
	}

	if _, err := m.Project(pr); coreerr.KindOf(err) != coreerr.Closed {
		t.Fatalf("expected Closed after workspace removal, got %v", err)
	}
	if _, err := m.Workspace(ws); coreerr.KindOf(err) != coreerr.Closed {
		t.Fatalf("expected Closed for workspace itself, got %v", err)
	}

	if _, _, err := projScope.Get(ctx, "k"); coreerr.KindOf(err) != coreerr.Closed {
		t.Fatalf("expected operations on the stale handle to report Closed, got %v", err)
	}
}

func TestRemoveProjectIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ws := ids.NewWorkspaceId()
	pr := ids.NewProjectId()

	if err := m.AddWorkspace(ctx, ws); err != nil {
		t.Fatal(err)
	}
	if err := m.AddProject(ctx, ws, pr); err != nil {
		t.Fatal(err)
	}

	if err := m.RemoveProject(ctx, ws, pr); err != nil {
		t.Fatalf("first RemoveProject: %v", err)
	}
	if err := m.RemoveProject(ctx, ws, pr); err != nil {
		t.Fatalf("second RemoveProject should be a no-op, got %v", err)
	}
}

func TestCloseProjectsForWorkspaceLeavesWorkspaceOpen(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ws := ids.NewWorkspaceId()
	pr := ids.NewProjectId()

	if err := m.AddWorkspace(ctx, ws); err != nil {
		t.Fatalf("AddWorkspace: %v", err)
	}
	if err := m.AddProject(ctx, ws, pr); err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	m.CloseProjectsForWorkspace(ctx, ws)

	if _, err := m.Project(pr); coreerr.KindOf(err) != coreerr.Closed {
		t.Fatalf("expected project scope Closed, got %v", err)
	}
	if _, err := m.Workspace(ws); err != nil {
		t.Fatalf("expected workspace scope to stay open, got %v", err)
	}

	// Idempotent: a second call and a call on an unopened workspace are
	// both no-ops rather than errors.
	m.CloseProjectsForWorkspace(ctx, ws)
	m.CloseProjectsForWorkspace(ctx, ids.NewWorkspaceId())
}

func TestOnDidChangeValueTagsEventsWithScope(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	ws := ids.NewWorkspaceId()
	pr := ids.NewProjectId()

	var got []kv.ChangeEvent
	m.OnDidChangeValue(func(ev kv.ChangeEvent) { got = append(got, ev) })

	if err := m.AddWorkspace(ctx, ws); err != nil {
		t.Fatalf("AddWorkspace: %v", err)
	}
	if err := m.AddProject(ctx, ws, pr); err != nil {
		t.Fatalf("AddProject: %v", err)
	}

	wsScope, _ := m.Workspace(ws)
	prScope, _ := m.Project(pr)
	if err := wsScope.Put(ctx, "k", []byte(`"v"`)); err != nil {
		t.Fatal(err)
	}
	if _, _, err := prScope.Remove(ctx, "k"); err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 {
		t.Fatalf("observer fired %d times, want 2: %+v", len(got), got)
	}
	if got[0].Scope.Kind != kv.ScopeWorkspace || got[0].Scope.Workspace != ws || got[0].Removed {
		t.Fatalf("workspace put event = %+v", got[0])
	}
	if got[1].Scope.Kind != kv.ScopeProject || got[1].Scope.Project != pr || !got[1].Removed {
		t.Fatalf("project remove event = %+v", got[1])
	}
}

func TestNoCrossScopeLeak(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	wsA, wsB := ids.NewWorkspaceId(), ids.NewWorkspaceId()

	if err := m.AddWorkspace(ctx, wsA); err != nil {
		t.Fatal(err)
	}
	if err := m.AddWorkspace(ctx, wsB); err != nil {
		t.Fatal(err)
	}

	scopeA, _ := m.Workspace(wsA)
	scopeB, _ := m.Workspace(wsB)

	if err := scopeA.Put(ctx, "shared-key", []byte(`"a"`)); err != nil {
		t.Fatal(err)
	}
	if _, found, err := scopeB.Get(ctx, "shared-key"); err != nil || found {
		t.Fatalf("key written to scope A leaked into scope B: found=%v err=%v", found, err)
	}
}

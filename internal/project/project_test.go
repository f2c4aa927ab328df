package project

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sapic-foundation/sapic-core/internal/coreerr"
	"github.com/sapic-foundation/sapic-core/internal/ids"
	"github.com/sapic-foundation/sapic-core/internal/kv"
	"github.com/sapic-foundation/sapic-core/internal/substore"
	"github.com/sapic-foundation/sapic-core/internal/vcs"
)

func newTestService(t *testing.T) (*Service, *substore.Manager, ids.WorkspaceId, string) {
	t.Helper()
	userDir := t.TempDir()
	sub := substore.New(userDir, substore.DefaultOpener(kv.Options{}))
	wsID := ids.NewWorkspaceId()
	if err := sub.AddWorkspace(context.Background(), wsID); err != nil {
		t.Fatalf("AddWorkspace: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(userDir, "workspaces", string(wsID)), 0o755); err != nil {
		t.Fatal(err)
	}
	return New(userDir, sub, vcs.NewStubCollaborator()), sub, wsID, userDir
}

func TestCreateProjectWritesLayoutManifestAndOrder(t *testing.T) {
	svc, sub, wsID, userDir := newTestService(t)
	ctx := context.Background()

	prID, err := svc.CreateProject(ctx, wsID, "Widgets API", "")
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	root := filepath.Join(userDir, "workspaces", string(wsID), "projects", string(prID))
	for _, rel := range []string{"Sapic.json", "config.json", ".gitignore", "assets/.gitkeep", "environments/.gitkeep", "resources/.gitkeep"} {
		if _, err := os.Stat(filepath.Join(root, rel)); err != nil {
			t.Fatalf("expected %s to exist: %v", rel, err)
		}
	}

	wsScope, err := sub.Workspace(wsID)
	if err != nil {
		t.Fatal(err)
	}
	if _, found, err := wsScope.Get(ctx, kv.ProjectOrderKey(prID)); err != nil || !found {
		t.Fatalf("expected project order key, found=%v err=%v", found, err)
	}

	prScope, err := sub.Project(prID)
	if err != nil {
		t.Fatal(err)
	}
	raw, found, err := prScope.Get(ctx, kv.ExpandedEntriesKey)
	if err != nil || !found {
		t.Fatalf("expected expanded_entries placeholder, found=%v err=%v", found, err)
	}
	if string(raw) != "[]" {
		t.Fatalf("expected empty expanded_entries, got %s", raw)
	}
}

func TestCreateProjectOrderIncrementsAcrossProjects(t *testing.T) {
	svc, sub, wsID, _ := newTestService(t)
	ctx := context.Background()

	p1, err := svc.CreateProject(ctx, wsID, "first", "")
	if err != nil {
		t.Fatal(err)
	}
	p2, err := svc.CreateProject(ctx, wsID, "second", "")
	if err != nil {
		t.Fatal(err)
	}

	wsScope, _ := sub.Workspace(wsID)
	raw1, _, _ := wsScope.Get(ctx, kv.ProjectOrderKey(p1))
	raw2, _, _ := wsScope.Get(ctx, kv.ProjectOrderKey(p2))
	if string(raw1) != "0" || string(raw2) != "1" {
		t.Fatalf("expected orders 0 then 1, got %s and %s", raw1, raw2)
	}
}

func TestCreateProjectWithExternalPathRedirectsRoot(t *testing.T) {
	svc, _, wsID, userDir := newTestService(t)
	ctx := context.Background()
	externalPath := filepath.Join(userDir, "external-widgets")

	prID, err := svc.CreateProject(ctx, wsID, "Widgets", externalPath)
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if _, err := os.Stat(filepath.Join(externalPath, "Sapic.json")); err != nil {
		t.Fatalf("expected manifest at external path: %v", err)
	}
	internalDir := filepath.Join(userDir, "workspaces", string(wsID), "projects", string(prID))
	if _, err := os.Stat(filepath.Join(internalDir, "config.json")); err != nil {
		t.Fatalf("expected config.json to remain internal: %v", err)
	}
	if _, err := os.Stat(filepath.Join(internalDir, "Sapic.json")); err == nil {
		t.Fatalf("manifest should not exist at the internal path when external_path is set")
	}
}

func TestLoadBuildsWorktreeUnlessArchived(t *testing.T) {
	svc, _, wsID, userDir := newTestService(t)
	ctx := context.Background()

	prID, err := svc.CreateProject(ctx, wsID, "Widgets", "")
	if err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(userDir, "workspaces", string(wsID), "projects", string(prID))
	if err := os.WriteFile(filepath.Join(root, "request.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := svc.Load(ctx, wsID, prID); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap, ok := svc.Worktree(prID)
	if !ok {
		t.Fatal("expected worktree to be built after Load")
	}
	if _, ok := snap.EntryByPath("request.json"); !ok {
		t.Fatal("expected request.json to be discovered by the worktree scan")
	}

	if err := svc.Archive(ctx, wsID, prID); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, ok := svc.Worktree(prID); ok {
		t.Fatal("expected worktree to be dropped after archiving")
	}
	if !svc.IsArchived(prID) {
		t.Fatal("expected IsArchived to report true")
	}

	if err := svc.Unarchive(ctx, wsID, prID); err != nil {
		t.Fatalf("Unarchive: %v", err)
	}
	if _, ok := svc.Worktree(prID); !ok {
		t.Fatal("expected worktree to be rebuilt after unarchiving")
	}
	if svc.IsArchived(prID) {
		t.Fatal("expected IsArchived to report false after unarchiving")
	}
}

func TestDeleteProjectRemovesDirectoryAndKeys(t *testing.T) {
	svc, sub, wsID, userDir := newTestService(t)
	ctx := context.Background()

	prID, err := svc.CreateProject(ctx, wsID, "Widgets", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteProject(ctx, wsID, prID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}

	root := filepath.Join(userDir, "workspaces", string(wsID), "projects", string(prID))
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("expected project directory to be gone, stat err=%v", err)
	}
	wsScope, _ := sub.Workspace(wsID)
	if _, found, _ := wsScope.Get(ctx, kv.ProjectOrderKey(prID)); found {
		t.Fatal("expected project order key to be removed")
	}
	if _, err := sub.Project(prID); coreerr.KindOf(err) != coreerr.Closed {
		t.Fatalf("expected project scope to report Closed after deletion, got %v", err)
	}
}

func TestCloneWiresStubCollaborator(t *testing.T) {
	svc, _, wsID, userDir := newTestService(t)
	ctx := context.Background()

	prID, err := svc.Clone(ctx, wsID, "cloned", "https://example.invalid/repo.git", "main", nil)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	stub := svc.collab.(*vcs.StubCollaborator)
	root := filepath.Join(userDir, "workspaces", string(wsID), "projects", string(prID))
	cloned := stub.Cloned()
	if len(cloned) != 1 || cloned[0] != root {
		t.Fatalf("expected clone recorded at %s, got %v", root, cloned)
	}
}

func TestCloneRollsBackOnCollaboratorFailure(t *testing.T) {
	svc, sub, wsID, userDir := newTestService(t)
	ctx := context.Background()
	svc.collab = &vcs.StubCollaborator{FailErr: os.ErrPermission}

	_, err := svc.Clone(ctx, wsID, "cloned", "https://example.invalid/repo.git", "main", nil)
	if coreerr.KindOf(err) != coreerr.VcsError {
		t.Fatalf("expected VcsError, got %v", err)
	}

	entries, readErr := os.ReadDir(filepath.Join(userDir, "workspaces", string(wsID), "projects"))
	if readErr != nil && !os.IsNotExist(readErr) {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected the failed clone's project directory to be cleaned up, found %v", entries)
	}
	wsScope, _ := sub.Workspace(wsID)
	pairs, err := wsScope.GetBatchByPrefix(ctx, "project:")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 0 {
		t.Fatalf("expected no leftover project keys after rollback, got %v", pairs)
	}
}

func TestSetExpandedEntryAndIsExpandedEntry(t *testing.T) {
	svc, _, wsID, _ := newTestService(t)
	ctx := context.Background()

	prID, err := svc.CreateProject(ctx, wsID, "Widgets", "")
	if err != nil {
		t.Fatal(err)
	}
	entryID := ids.NewEntryId()

	if expanded, err := svc.IsExpandedEntry(ctx, prID, entryID); err != nil || expanded {
		t.Fatalf("expected entry not expanded initially, got %v err=%v", expanded, err)
	}
	if err := svc.SetExpandedEntry(ctx, prID, entryID, true); err != nil {
		t.Fatalf("SetExpandedEntry: %v", err)
	}
	if expanded, err := svc.IsExpandedEntry(ctx, prID, entryID); err != nil || !expanded {
		t.Fatalf("expected entry expanded, got %v err=%v", expanded, err)
	}
}

func TestImportArchiveUnzipsBeforeKVWiring(t *testing.T) {
	svc, sub, wsID, userDir := newTestService(t)
	ctx := context.Background()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("README.md")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	prID, err := svc.ImportArchive(ctx, wsID, "Imported", bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("ImportArchive: %v", err)
	}

	root := filepath.Join(userDir, "workspaces", string(wsID), "projects", string(prID))
	data, err := os.ReadFile(filepath.Join(root, "README.md"))
	if err != nil {
		t.Fatalf("expected unzipped file: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("unexpected content: %q", data)
	}
	if _, err := sub.Project(prID); err != nil {
		t.Fatalf("expected project scope to be wired after import: %v", err)
	}
}

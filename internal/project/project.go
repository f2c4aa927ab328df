// Package project implements the project entity service (§4.6.2): one
// worktree per project, composed with its rollback-guarded filesystem
// layout and its Workspace/Project KV scopes, plus the VCS-backed
// clone/init/load operations and archive/unarchive lifecycle recovered
// from the original implementation.
package project

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sapic-foundation/sapic-core/internal/applog"
	"github.com/sapic-foundation/sapic-core/internal/corepath"
	"github.com/sapic-foundation/sapic-core/internal/coreerr"
	"github.com/sapic-foundation/sapic-core/internal/ids"
	"github.com/sapic-foundation/sapic-core/internal/kv"
	"github.com/sapic-foundation/sapic-core/internal/manifest"
	"github.com/sapic-foundation/sapic-core/internal/rollback"
	"github.com/sapic-foundation/sapic-core/internal/substore"
	"github.com/sapic-foundation/sapic-core/internal/vcs"
	"github.com/sapic-foundation/sapic-core/internal/worktree"
)

const resourceGitkeep = ".gitkeep"

var resourceDirs = []string{"assets", "environments", "resources"}

// Service is the project entity service.
type Service struct {
	userDir string
	sub     *substore.Manager
	engine  *worktree.Engine
	collab  vcs.Collaborator

	mu        sync.RWMutex
	worktrees map[ids.ProjectId]*worktree.Snapshot
	archived  map[ids.ProjectId]bool
}

// New returns a Service. collab may be nil if clone/init-vcs/load-vcs are
// never called (e.g. in tests exercising only the local lifecycle).
func New(userDir string, sub *substore.Manager, collab vcs.Collaborator) *Service {
	return &Service{
		userDir:   userDir,
		sub:       sub,
		engine:    worktree.NewEngine(),
		collab:    collab,
		worktrees: make(map[ids.ProjectId]*worktree.Snapshot),
		archived:  make(map[ids.ProjectId]bool),
	}
}

// CreateProject creates a project's on-disk layout, manifest, config and
// resource directories under rollback guard, registers its KV scope, and
// records its position in the workspace's project order (§4.6.2 steps
// 1-3). externalPath, if non-empty, redirects the manifest and resource
// directories (§3.4).
func (s *Service) CreateProject(ctx context.Context, wsID ids.WorkspaceId, name, externalPath string) (ids.ProjectId, error) {
	wsScope, err := s.sub.Workspace(wsID)
	if err != nil {
		return "", err
	}

	prID := ids.NewProjectId()
	sess, err := rollback.Begin(s.scratchDir())
	if err != nil {
		return "", err
	}

	internalDir := corepath.ProjectInternalDir(s.userDir, wsID, prID)
	if err := sess.CreateDirAll(internalDir); err != nil {
		sess.Rollback()
		return "", err
	}

	rootDir := corepath.ProjectRootDir(s.userDir, wsID, prID, externalPath)
	if rootDir != internalDir {
		if err := sess.CreateDirAll(rootDir); err != nil {
			sess.Rollback()
			return "", err
		}
	}
	for _, resourceDir := range resourceDirs {
		dir := filepath.Join(rootDir, resourceDir)
		if err := sess.CreateDirAll(dir); err != nil {
			sess.Rollback()
			return "", err
		}
		if err := sess.CreateFileWith(filepath.Join(dir, resourceGitkeep), rollback.CreateOptions{IgnoreIfExists: true}, nil); err != nil {
			sess.Rollback()
			return "", err
		}
	}

	manifestData, err := json.MarshalIndent(manifest.Project{Name: name}, "", "  ")
	if err != nil {
		sess.Rollback()
		return "", coreerr.Wrap(coreerr.Serialization, "marshal project manifest", err)
	}
	manifestData = append(manifestData, '\n')
	if err := sess.CreateFileWith(corepath.ProjectManifestPath(s.userDir, wsID, prID, externalPath), rollback.CreateOptions{}, manifestData); err != nil {
		sess.Rollback()
		return "", err
	}

	var extPathPtr *string
	if externalPath != "" {
		extPathPtr = &externalPath
	}
	configData, err := json.MarshalIndent(manifest.ProjectConfig{Archived: false, ExternalPath: extPathPtr}, "", "  ")
	if err != nil {
		sess.Rollback()
		return "", coreerr.Wrap(coreerr.Serialization, "marshal project config", err)
	}
	configData = append(configData, '\n')
	if err := sess.CreateFileWith(corepath.ProjectConfigPath(s.userDir, wsID, prID), rollback.CreateOptions{}, configData); err != nil {
		sess.Rollback()
		return "", err
	}

	if err := sess.CreateFileWith(filepath.Join(rootDir, ".gitignore"), rollback.CreateOptions{IgnoreIfExists: true}, []byte("state.db\nstate.db-wal\nstate.db-shm\n")); err != nil {
		sess.Rollback()
		return "", err
	}

	if err := s.sub.AddProject(ctx, wsID, prID); err != nil {
		sess.Rollback()
		return "", err
	}

	order, err := s.nextProjectOrder(ctx, wsScope)
	if err != nil {
		sess.Rollback()
		return "", err
	}
	orderRaw, _ := json.Marshal(order)
	if err := wsScope.Put(ctx, kv.ProjectOrderKey(prID), orderRaw); err != nil {
		sess.Rollback()
		return "", err
	}

	prScope, err := s.sub.Project(prID)
	if err != nil {
		sess.Rollback()
		return "", err
	}
	emptyList, _ := json.Marshal([]string{})
	if err := prScope.Put(ctx, kv.ExpandedEntriesKey, emptyList); err != nil {
		sess.Rollback()
		return "", err
	}

	s.mu.Lock()
	s.archived[prID] = false
	s.mu.Unlock()

	sess.Commit()
	return prID, nil
}

func (s *Service) nextProjectOrder(ctx context.Context, wsScope kv.KvStorage) (int, error) {
	pairs, err := wsScope.GetBatchByPrefix(ctx, "project:")
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range pairs {
		if strings.HasSuffix(p.Key, ":order") {
			count++
		}
	}
	return count, nil
}

func (s *Service) scratchDir() string {
	return filepath.Join(s.userDir, ".rollback")
}

// Load opens (or re-opens) a project's KV scope and, unless it's archived,
// builds its worktree by scanning the on-disk tree (§4.6.2: "the archived
// flag is checked when loading to decide whether to construct a worktree
// at all").
func (s *Service) Load(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId) error {
	if !s.sub.HasWorkspace(wsID) {
		return coreerr.New(coreerr.FailedPrecondition, fmt.Sprintf("workspace %s is not open", wsID))
	}
	if _, err := s.sub.Project(prID); err != nil {
		if err := s.sub.AddProject(ctx, wsID, prID); err != nil {
			return err
		}
	}

	cfg, err := manifest.ReadProjectConfig(corepath.ProjectConfigPath(s.userDir, wsID, prID))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.archived[prID] = cfg.Archived
	s.mu.Unlock()

	if cfg.Archived {
		return nil
	}
	return s.buildWorktree(ctx, wsID, prID, cfg)
}

func (s *Service) buildWorktree(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId, cfg manifest.ProjectConfig) error {
	externalPath := ""
	if cfg.ExternalPath != nil {
		externalPath = *cfg.ExternalPath
	}
	rootDir := corepath.ProjectRootDir(s.userDir, wsID, prID, externalPath)
	snap := worktree.NewSnapshot(rootDir)
	if _, err := s.engine.SyncFromDisk(ctx, snap); err != nil {
		return err
	}
	s.mu.Lock()
	s.worktrees[prID] = snap
	s.mu.Unlock()
	return nil
}

// Worktree returns the loaded worktree snapshot for prID, if any.
func (s *Service) Worktree(prID ids.ProjectId) (*worktree.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.worktrees[prID]
	return snap, ok
}

// IsArchived reports the last-loaded archived state for prID.
func (s *Service) IsArchived(prID ids.ProjectId) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.archived[prID]
}

// Archive drops the in-memory worktree for prID and persists
// config.archived=true, without touching the project's KV scope.
func (s *Service) Archive(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId) error {
	if err := s.setArchivedFlag(wsID, prID, true); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.worktrees, prID)
	s.archived[prID] = true
	s.mu.Unlock()
	return nil
}

// Unarchive clears config.archived and lazily reconstructs the worktree by
// scanning the project root.
func (s *Service) Unarchive(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId) error {
	if err := s.setArchivedFlag(wsID, prID, false); err != nil {
		return err
	}
	cfg, err := manifest.ReadProjectConfig(corepath.ProjectConfigPath(s.userDir, wsID, prID))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.archived[prID] = false
	s.mu.Unlock()
	return s.buildWorktree(ctx, wsID, prID, cfg)
}

func (s *Service) setArchivedFlag(wsID ids.WorkspaceId, prID ids.ProjectId, archived bool) error {
	path := corepath.ProjectConfigPath(s.userDir, wsID, prID)
	cfg, err := manifest.ReadProjectConfig(path)
	if err != nil {
		return err
	}
	cfg.Archived = archived
	return manifest.WriteJSON(path, cfg)
}

// DeleteProject removes a project's directories and KV state. FS is
// rollback-guarded; KV removal happens only after the FS step succeeds so a
// committed KV entry always had an on-disk counterpart (§5 ordering rule),
// mirrored here as "delete: KV before FS is NOT applied to whole-project
// deletion" — instead the project's own resources vanish together with its
// directory, so the ordering that matters is substore teardown after the
// directory is confirmed gone.
func (s *Service) DeleteProject(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId) error {
	wsScope, err := s.sub.Workspace(wsID)
	if err != nil {
		return err
	}

	cfg, cfgErr := manifest.ReadProjectConfig(corepath.ProjectConfigPath(s.userDir, wsID, prID))
	externalPath := ""
	if cfgErr == nil && cfg.ExternalPath != nil {
		externalPath = *cfg.ExternalPath
	}

	internalDir := corepath.ProjectInternalDir(s.userDir, wsID, prID)
	sess, err := rollback.Begin(s.scratchDir())
	if err != nil {
		return err
	}
	if err := sess.RemoveDir(internalDir, rollback.RemoveOptions{IgnoreIfNotExists: true}); err != nil {
		sess.Rollback()
		return err
	}
	if externalPath != "" {
		if err := sess.RemoveDir(externalPath, rollback.RemoveOptions{IgnoreIfNotExists: true}); err != nil {
			sess.Rollback()
			return err
		}
	}

	if _, err := wsScope.RemoveBatchByPrefix(ctx, kv.ProjectPrefix(prID)); err != nil {
		sess.Rollback()
		return err
	}
	if err := s.sub.RemoveProject(ctx, wsID, prID); err != nil {
		applog.Warnf("project: substore removal reported an error for %s: %v", prID, err)
	}

	s.mu.Lock()
	delete(s.worktrees, prID)
	delete(s.archived, prID)
	s.mu.Unlock()

	sess.Commit()
	return nil
}

// Clone creates a project exactly like CreateProject (directories, manifest,
// config and KV keys), then clones repositoryURL into its root via the
// configured VCS collaborator. If the clone fails, the project is deleted
// again and the collaborator's error is returned.
func (s *Service) Clone(ctx context.Context, wsID ids.WorkspaceId, name, repositoryURL, branch string, creds vcs.CredentialsCallback) (ids.ProjectId, error) {
	if s.collab == nil {
		return "", coreerr.New(coreerr.FailedPrecondition, "no VCS collaborator configured")
	}
	prID, err := s.CreateProject(ctx, wsID, name, "")
	if err != nil {
		return "", err
	}
	rootDir := corepath.ProjectRootDir(s.userDir, wsID, prID, "")
	if _, err := s.collab.Clone(ctx, repositoryURL, branch, rootDir, creds); err != nil {
		_ = s.DeleteProject(ctx, wsID, prID)
		return "", err
	}
	return prID, nil
}

// InitVCS initializes a new repository in an already-created project's
// root, optionally wiring repositoryURL as its remote.
func (s *Service) InitVCS(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId, repositoryURL string, creds vcs.CredentialsCallback) error {
	if s.collab == nil {
		return coreerr.New(coreerr.FailedPrecondition, "no VCS collaborator configured")
	}
	cfg, err := manifest.ReadProjectConfig(corepath.ProjectConfigPath(s.userDir, wsID, prID))
	if err != nil {
		return err
	}
	externalPath := ""
	if cfg.ExternalPath != nil {
		externalPath = *cfg.ExternalPath
	}
	rootDir := corepath.ProjectRootDir(s.userDir, wsID, prID, externalPath)
	_, err = s.collab.InitRepo(ctx, rootDir, repositoryURL, creds)
	return err
}

// LoadVCS opens an already-cloned repository at a loaded project's root,
// surfacing collaborator failures as coreerr.VcsError.
func (s *Service) LoadVCS(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId) error {
	if s.collab == nil {
		return coreerr.New(coreerr.FailedPrecondition, "no VCS collaborator configured")
	}
	cfg, err := manifest.ReadProjectConfig(corepath.ProjectConfigPath(s.userDir, wsID, prID))
	if err != nil {
		return err
	}
	externalPath := ""
	if cfg.ExternalPath != nil {
		externalPath = *cfg.ExternalPath
	}
	rootDir := corepath.ProjectRootDir(s.userDir, wsID, prID, externalPath)
	_, err = s.collab.Load(ctx, rootDir)
	return err
}

// SetExpandedEntry marks entryID expanded or collapsed in prID's
// expanded_entries bookkeeping (§9).
func (s *Service) SetExpandedEntry(ctx context.Context, prID ids.ProjectId, entryID ids.EntryId, expanded bool) error {
	scope, err := s.sub.Project(prID)
	if err != nil {
		return err
	}
	set, err := readExpandedEntries(ctx, scope)
	if err != nil {
		return err
	}
	if expanded {
		set[string(entryID)] = struct{}{}
	} else {
		delete(set, string(entryID))
	}
	return writeExpandedEntries(ctx, scope, set)
}

// IsExpandedEntry reports whether entryID is marked expanded in prID.
func (s *Service) IsExpandedEntry(ctx context.Context, prID ids.ProjectId, entryID ids.EntryId) (bool, error) {
	scope, err := s.sub.Project(prID)
	if err != nil {
		return false, err
	}
	set, err := readExpandedEntries(ctx, scope)
	if err != nil {
		return false, err
	}
	_, ok := set[string(entryID)]
	return ok, nil
}

func readExpandedEntries(ctx context.Context, scope kv.KvStorage) (map[string]struct{}, error) {
	raw, found, err := scope.Get(ctx, kv.ExpandedEntriesKey)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	if !found {
		return set, nil
	}
	var members []string
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, coreerr.Wrap(coreerr.Serialization, "unmarshal expanded entries", err)
	}
	for _, id := range members {
		set[id] = struct{}{}
	}
	return set, nil
}

func writeExpandedEntries(ctx context.Context, scope kv.KvStorage, set map[string]struct{}) error {
	members := make([]string, 0, len(set))
	for id := range set {
		members = append(members, id)
	}
	sort.Strings(members)
	raw, err := json.Marshal(members)
	if err != nil {
		return coreerr.Wrap(coreerr.Serialization, "marshal expanded entries", err)
	}
	return scope.Put(ctx, kv.ExpandedEntriesKey, raw)
}

// ImportArchive unzips a project archive into a freshly created project's
// internal directory before any KV wiring happens (§4.6.2: "Project
// import-archive unzips into the internal path before KV wiring").
func (s *Service) ImportArchive(ctx context.Context, wsID ids.WorkspaceId, name string, archive io.ReaderAt, size int64) (ids.ProjectId, error) {
	prID := ids.NewProjectId()
	internalDir := corepath.ProjectInternalDir(s.userDir, wsID, prID)

	zr, err := zip.NewReader(archive, size)
	if err != nil {
		return "", coreerr.Wrap(coreerr.Serialization, "open project archive", err)
	}

	sess, err := rollback.Begin(s.scratchDir())
	if err != nil {
		return "", err
	}
	if err := sess.CreateDirAll(internalDir); err != nil {
		sess.Rollback()
		return "", err
	}

	for _, f := range zr.File {
		target := filepath.Join(internalDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, internalDir) {
			sess.Rollback()
			return "", coreerr.New(coreerr.FailedPrecondition, fmt.Sprintf("archive entry escapes project directory: %s", f.Name))
		}
		if f.FileInfo().IsDir() {
			if err := sess.CreateDirAll(target); err != nil {
				sess.Rollback()
				return "", err
			}
			continue
		}
		if err := sess.CreateDirAll(filepath.Dir(target)); err != nil {
			sess.Rollback()
			return "", err
		}
		rc, err := f.Open()
		if err != nil {
			sess.Rollback()
			return "", coreerr.Wrap(coreerr.Io, "open archive entry", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			sess.Rollback()
			return "", coreerr.Wrap(coreerr.Io, "read archive entry", err)
		}
		if err := sess.CreateFileWith(target, rollback.CreateOptions{Overwrite: true}, data); err != nil {
			sess.Rollback()
			return "", err
		}
	}

	manifestData, err := json.MarshalIndent(manifest.Project{Name: name}, "", "  ")
	if err != nil {
		sess.Rollback()
		return "", coreerr.Wrap(coreerr.Serialization, "marshal project manifest", err)
	}
	manifestData = append(manifestData, '\n')
	if err := sess.CreateFileWith(corepath.ProjectManifestPath(s.userDir, wsID, prID, ""), rollback.CreateOptions{Overwrite: true}, manifestData); err != nil {
		sess.Rollback()
		return "", err
	}
	configData, _ := json.MarshalIndent(manifest.ProjectConfig{Archived: false}, "", "  ")
	configData = append(configData, '\n')
	if err := sess.CreateFileWith(corepath.ProjectConfigPath(s.userDir, wsID, prID), rollback.CreateOptions{Overwrite: true}, configData); err != nil {
		sess.Rollback()
		return "", err
	}

	if err := s.sub.AddProject(ctx, wsID, prID); err != nil {
		sess.Rollback()
		return "", err
	}

	sess.Commit()
	return prID, nil
}


// Package substore implements the Substore Manager (§4.3): it opens
// workspace and project KV scopes on demand and closes them on entity
// removal, enforcing that a project scope never outlives its workspace.
package substore

import (
	"context"
	"fmt"
	"sync"

	"github.com/sapic-foundation/sapic-core/internal/applog"
	"github.com/sapic-foundation/sapic-core/internal/coreerr"
	"github.com/sapic-foundation/sapic-core/internal/corepath"
	"github.com/sapic-foundation/sapic-core/internal/ids"
	"github.com/sapic-foundation/sapic-core/internal/kv"
)

// Opener constructs a KvStorage handle for a scope database path. Real
// callers pass kv.Open bound to an Options value; tests pass their own
// constructor over a temp dir.
type Opener func(dbPath string) (kv.KvStorage, error)

// Manager tracks every open workspace and project scope and routes
// lookups without naming the backing engine.
type Manager struct {
	userDir string
	opener  Opener

	mu         sync.RWMutex
	workspaces map[ids.WorkspaceId]kv.KvStorage
	children   map[ids.WorkspaceId]map[ids.ProjectId]ids.ProjectId
	projects   map[ids.ProjectId]kv.KvStorage
	observer   kv.ChangeObserver
}

// New creates a Manager rooted at userDir, using opener to construct scope
// database handles. The Manager is created once at app start and passed by
// handle (§9); there is no process-global singleton.
func New(userDir string, opener Opener) *Manager {
	return &Manager{
		userDir:    userDir,
		opener:     opener,
		workspaces: make(map[ids.WorkspaceId]kv.KvStorage),
		children:   make(map[ids.WorkspaceId]map[ids.ProjectId]ids.ProjectId),
		projects:   make(map[ids.ProjectId]kv.KvStorage),
	}
}

// OnDidChangeValue registers observer to be notified after every successful
// Put or Remove on a scope this manager opens from this point forward
// (§4.2 "emits OnDidChangeValue{key, scope, removed}"). Register it before
// the first AddWorkspace/AddProject call; scopes already open when this is
// called keep whatever observer (or none) they were opened with.
func (m *Manager) OnDidChangeValue(observer kv.ChangeObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = observer
}

// DefaultOpener returns an Opener backed by the real sqlite KvStorage.
func DefaultOpener(opts kv.Options) Opener {
	return func(dbPath string) (kv.KvStorage, error) {
		return kv.Open(dbPath, opts)
	}
}

// AddWorkspace opens the workspace's scope database and registers an empty
// child-project set.
func (m *Manager) AddWorkspace(ctx context.Context, id ids.WorkspaceId) error {
	store, err := m.opener(corepath.WorkspaceStateDB(m.userDir, id))
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, fmt.Sprintf("open workspace scope %s", id), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces[id] = kv.NewObservingStore(store, kv.Scope{Kind: kv.ScopeWorkspace, Workspace: id}, m.observer)
	m.children[id] = make(map[ids.ProjectId]ids.ProjectId)
	return nil
}

// RemoveWorkspace closes the workspace's scope database and every project
// scope in its child-set. Close errors are logged but do not stop the
// removal from completing — the manager fails closed (§4.3).
func (m *Manager) RemoveWorkspace(ctx context.Context, id ids.WorkspaceId) error {
	m.mu.Lock()
	store, ok := m.workspaces[id]
	children := m.children[id]
	delete(m.workspaces, id)
	delete(m.children, id)
	var childStores []kv.KvStorage
	for childID := range children {
		if cs, ok := m.projects[childID]; ok {
			childStores = append(childStores, cs)
			delete(m.projects, childID)
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	if err := store.Close(ctx); err != nil {
		applog.Warnf("close workspace scope %s: %v", id, err)
	}
	for _, cs := range childStores {
		if err := cs.Close(ctx); err != nil {
			applog.Warnf("close project scope under workspace %s: %v", id, err)
		}
	}
	return nil
}

// AddProject opens the project's scope database, failing if its workspace
// hasn't been added first.
func (m *Manager) AddProject(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId) error {
	m.mu.Lock()
	children, ok := m.children[wsID]
	if !ok {
		m.mu.Unlock()
		return coreerr.New(coreerr.FailedPrecondition, fmt.Sprintf("workspace %s has no open scope", wsID))
	}
	m.mu.Unlock()

	store, err := m.opener(corepath.ProjectStateDB(m.userDir, wsID, prID))
	if err != nil {
		return coreerr.Wrap(coreerr.Storage, fmt.Sprintf("open project scope %s", prID), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	children[prID] = prID
	m.projects[prID] = kv.NewObservingStore(store, kv.Scope{Kind: kv.ScopeProject, Workspace: wsID, Project: prID}, m.observer)
	return nil
}

// RemoveProject closes the project's scope database and forgets it.
// Idempotent if the project isn't currently open.
func (m *Manager) RemoveProject(ctx context.Context, wsID ids.WorkspaceId, prID ids.ProjectId) error {
	m.mu.Lock()
	store, ok := m.projects[prID]
	delete(m.projects, prID)
	if children, ok := m.children[wsID]; ok {
		delete(children, prID)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	if err := store.Close(ctx); err != nil {
		applog.Warnf("close project scope %s: %v", prID, err)
	}
	return nil
}

// CloseProjectsForWorkspace closes and forgets every project scope open
// under wsID, without touching the workspace scope itself (§4.6.1
// "deactivate ... close project scopes via substore mgr"). Idempotent: a
// workspace with no open project scopes is a no-op.
func (m *Manager) CloseProjectsForWorkspace(ctx context.Context, wsID ids.WorkspaceId) {
	m.mu.Lock()
	children, ok := m.children[wsID]
	if !ok {
		m.mu.Unlock()
		return
	}
	var childStores []kv.KvStorage
	for childID := range children {
		if cs, ok := m.projects[childID]; ok {
			childStores = append(childStores, cs)
			delete(m.projects, childID)
		}
		delete(children, childID)
	}
	m.mu.Unlock()

	for _, cs := range childStores {
		if err := cs.Close(ctx); err != nil {
			applog.Warnf("close project scope under workspace %s: %v", wsID, err)
		}
	}
}

// Workspace returns the open scope for a workspace, or coreerr.Closed if
// it hasn't been added (or has since been removed).
func (m *Manager) Workspace(id ids.WorkspaceId) (kv.KvStorage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.workspaces[id]
	if !ok {
		return nil, coreerr.New(coreerr.Closed, fmt.Sprintf("workspace scope %s is not open", id))
	}
	return store, nil
}

// Project returns the open scope for a project, or coreerr.Closed if it
// hasn't been added (or has since been removed, directly or via its
// workspace).
func (m *Manager) Project(id ids.ProjectId) (kv.KvStorage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.projects[id]
	if !ok {
		return nil, coreerr.New(coreerr.Closed, fmt.Sprintf("project scope %s is not open", id))
	}
	return store, nil
}

// HasWorkspace reports whether a workspace scope is currently open.
func (m *Manager) HasWorkspace(id ids.WorkspaceId) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.workspaces[id]
	return ok
}

// AllScopes returns every currently open workspace and project scope, for
// a background checkpoint scheduler to flush (§5 "a background task
// outside the core periodically calls flush(Checkpoint) on every live
// scope").
func (m *Manager) AllScopes() []kv.KvStorage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]kv.KvStorage, 0, len(m.workspaces)+len(m.projects))
	for _, s := range m.workspaces {
		out = append(out, s)
	}
	for _, s := range m.projects {
		out = append(out, s)
	}
	return out
}

// CloseAll closes every open scope; used on explicit shutdown.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	workspaces := m.workspaces
	projects := m.projects
	m.workspaces = make(map[ids.WorkspaceId]kv.KvStorage)
	m.children = make(map[ids.WorkspaceId]map[ids.ProjectId]ids.ProjectId)
	m.projects = make(map[ids.ProjectId]kv.KvStorage)
	m.mu.Unlock()

	var firstErr error
	for id, store := range workspaces {
		if err := store.Close(ctx); err != nil {
			applog.Warnf("close workspace scope %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	for id, store := range projects {
		if err := store.Close(ctx); err != nil {
			applog.Warnf("close project scope %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

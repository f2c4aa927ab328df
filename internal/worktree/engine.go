package worktree

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sapic-foundation/sapic-core/internal/applog"
	"github.com/sapic-foundation/sapic-core/internal/coreerr"
	"github.com/sapic-foundation/sapic-core/internal/ids"
)

// Engine keeps a Snapshot in sync with an on-disk tree (§4.5). It owns the
// filesystem side of entry creation, removal and rename; Snapshot owns the
// in-memory indices the engine mutates as a side effect of each operation.
type Engine struct {
	mu sync.Mutex // held around each operation's index mutation step; directory scans run before it is taken
}

// NewEngine returns an Engine. The engine itself carries no root; every
// method takes the snapshot whose AbsRoot it should operate against, so one
// Engine can service many worktrees (one per loaded project).
func NewEngine() *Engine {
	return &Engine{}
}

// Absolutize resolves a worktree-relative path against root_abs_path,
// rejecting any path that escapes the root.
func (e *Engine) Absolutize(rootAbsPath, relPath string) (string, error) {
	if relPath == RootPath || relPath == "" {
		return rootAbsPath, nil
	}
	clean := filepath.Clean(strings.ReplaceAll(relPath, "/", string(filepath.Separator)))
	if clean == "." {
		return rootAbsPath, nil
	}
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", coreerr.New(coreerr.FailedPrecondition, fmt.Sprintf("path %q escapes worktree root", relPath))
	}
	return filepath.Join(rootAbsPath, clean), nil
}

// Relativize converts an absolute path under rootAbsPath back to a
// worktree-relative, forward-slash path, falling back to RootPath when
// absPath doesn't actually sit under the root.
func (e *Engine) Relativize(rootAbsPath, absPath string) string {
	rel, err := filepath.Rel(rootAbsPath, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return RootPath
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return RootPath
	}
	return rel
}

type scannedEntry struct {
	path   string
	kind   EntryKind
	mtime  time.Time
	fileID FileID
}

// Scan walks rootAbsPath/relPath concurrently and returns every entry found
// beneath it. A directory that can't be read, or a child whose metadata
// can't be obtained, is skipped and logged rather than aborting the rest of
// the walk (§4.5.1). A child without a file_id is kept with a zero FileID.
func (e *Engine) Scan(ctx context.Context, rootAbsPath, relPath string) ([]scannedEntry, error) {
	absStart, err := e.Absolutize(rootAbsPath, relPath)
	if err != nil {
		return nil, err
	}

	sem := make(chan struct{}, max(runtime.NumCPU(), 1))
	var mu sync.Mutex
	var results []scannedEntry

	g, ctx := errgroup.WithContext(ctx)

	var walk func(absDir, relDir string)
	walk = func(absDir, relDir string) {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			children, err := os.ReadDir(absDir)
			if err != nil {
				applog.Warnf("worktree scan: skipping unreadable directory %s: %v", absDir, err)
				return nil
			}

			for _, child := range children {
				childAbs := filepath.Join(absDir, child.Name())
				childRel := relJoin(relDir, child.Name())

				info, err := child.Info()
				if err != nil {
					applog.Warnf("worktree scan: skipping %s: %v", childAbs, err)
					continue
				}

				kind := File
				if info.IsDir() {
					kind = Dir
				}

				mu.Lock()
				results = append(results, scannedEntry{
					path:   childRel,
					kind:   kind,
					mtime:  info.ModTime(),
					fileID: fileIDFromInfo(info),
				})
				mu.Unlock()

				if info.IsDir() {
					walk(childAbs, childRel)
				}
			}
			return nil
		})
	}

	walk(absStart, relPath)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func relJoin(dir, name string) string {
	if dir == RootPath || dir == "" {
		return name
	}
	return dir + "/" + name
}

// SyncFromDisk performs a full rescan of snap's root and reconciles it
// against the existing snapshot, producing a change set. Unlike
// CreateEntry/RemoveEntry/RenameEntry it does not detect renames: a path
// that disappeared and a new path that appeared in the same pass are
// reported as an unrelated Removed/Created pair.
func (e *Engine) SyncFromDisk(ctx context.Context, snap *Snapshot) (ChangeSet, error) {
	scanned, err := e.Scan(ctx, snap.AbsRoot(), RootPath)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]scannedEntry, len(scanned))
	for _, se := range scanned {
		byPath[se.path] = se
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var changes ChangeSet

	for _, se := range scanned {
		existing, ok := snap.EntryByPath(se.path)
		if !ok {
			ne := e.newEntryFromScan(snap.AbsRoot(), se)
			snap.CreateEntry(ne)
			changes = append(changes, ChangeEntry{Path: ne.Path, ID: ne.ID, Kind: Created})
			continue
		}
		if entryChanged(existing, se) {
			updated := e.newEntryFromScan(snap.AbsRoot(), se)
			updated.ID = existing.ID
			snap.CreateEntry(updated)
			changes = append(changes, ChangeEntry{Path: updated.Path, ID: updated.ID, Kind: Updated})
		}
	}

	for _, existing := range snap.IterEntriesByPrefix("") {
		if _, ok := byPath[existing.Path]; ok {
			continue
		}
		for _, removed := range snap.RemoveEntry(existing.Path) {
			changes = append(changes, ChangeEntry{Path: removed.Path, ID: removed.ID, Kind: Removed})
		}
	}

	return changes, nil
}

func entryChanged(existing *Entry, se scannedEntry) bool {
	if existing.Kind != se.kind {
		return true
	}
	if existing.FileID != se.fileID {
		return true
	}
	if existing.MTime == nil || !existing.MTime.Equal(se.mtime) {
		return true
	}
	return false
}

func (e *Engine) newEntryFromScan(rootAbsPath string, se scannedEntry) *Entry {
	mtime := se.mtime
	entry := &Entry{
		ID:     ids.NewEntryId(),
		Path:   se.path,
		Kind:   se.kind,
		MTime:  &mtime,
		FileID: se.fileID,
	}
	if se.kind == File {
		abs, _ := e.Absolutize(rootAbsPath, se.path)
		entry.Handle = NewDocumentHandle(abs)
	}
	return entry
}

// CreateEntry creates path as a new file or directory under snap's root and
// indexes it. For a directory, the returned change set holds the directory's
// own entry plus whatever a scan of it finds afterward (normally nothing,
// since it was just created empty).
func (e *Engine) CreateEntry(ctx context.Context, snap *Snapshot, path string, isDir bool, content []byte) (ChangeSet, error) {
	abs, err := e.Absolutize(snap.AbsRoot(), path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err == nil {
		return nil, coreerr.New(coreerr.AlreadyExists, abs)
	} else if !os.IsNotExist(err) {
		return nil, coreerr.Wrap(coreerr.Io, "stat failed", err)
	}

	if isDir {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "create directory failed", err)
		}
		scanned, err := e.Scan(ctx, snap.AbsRoot(), path)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()

		info, statErr := os.Stat(abs)
		var changes ChangeSet
		dirEntry := &Entry{ID: ids.NewEntryId(), Path: path, Kind: Dir}
		if statErr == nil {
			mt := info.ModTime()
			dirEntry.MTime = &mt
			dirEntry.FileID = fileIDFromInfo(info)
		}
		snap.CreateEntry(dirEntry)
		changes = append(changes, ChangeEntry{Path: path, ID: dirEntry.ID, Kind: Created})

		for _, se := range scanned {
			child := e.newEntryFromScan(snap.AbsRoot(), se)
			snap.CreateEntry(child)
			changes = append(changes, ChangeEntry{Path: child.Path, ID: child.ID, Kind: Created})
		}
		return changes, nil
	}

	if err := os.WriteFile(abs, content, 0o644); err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "create file failed", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entry := &Entry{ID: ids.NewEntryId(), Path: path, Kind: File, Handle: NewDocumentHandle(abs)}
	if info, err := os.Stat(abs); err == nil {
		mt := info.ModTime()
		entry.MTime = &mt
		entry.FileID = fileIDFromInfo(info)
	}
	snap.CreateEntry(entry)
	return ChangeSet{{Path: path, ID: entry.ID, Kind: Created}}, nil
}

// RemoveEntry removes path from disk and the index. A directory is first
// atomically renamed aside (".deleted.<pid>") so the index update isn't
// blocked on the (potentially large) recursive delete, which proceeds in
// the background.
func (e *Engine) RemoveEntry(ctx context.Context, snap *Snapshot, path string) (ChangeSet, error) {
	abs, err := e.Absolutize(snap.AbsRoot(), path)
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(abs)
	if statErr == nil {
		if info.IsDir() {
			tempDir := fmt.Sprintf("%s.deleted.%d", abs, os.Getpid())
			if err := os.Rename(abs, tempDir); err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "remove directory failed", err)
			}
			go func() {
				if err := os.RemoveAll(tempDir); err != nil {
					applog.Errorf("worktree: failed to remove temporary directory %s: %v", tempDir, err)
				}
			}()
		} else {
			if err := os.Remove(abs); err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "remove file failed", err)
			}
		}
	} else if !os.IsNotExist(statErr) {
		return nil, coreerr.Wrap(coreerr.Io, "stat failed", statErr)
	}

	e.mu.Lock()
	removed := snap.RemoveEntry(path)
	e.mu.Unlock()

	changes := make(ChangeSet, 0, len(removed))
	for _, r := range removed {
		changes = append(changes, ChangeEntry{Path: r.Path, ID: r.ID, Kind: Removed})
	}
	return changes, nil
}

// RenameEntry moves oldPath to newPath on disk, then rescans newPath's
// subtree and matches it back against the removed entries by file_id so
// ids survive the rename (§4.5.2). An entry whose file_id can't be matched
// — because the platform doesn't provide a stable one, or the object
// genuinely changed identity — is reported as Removed+Created instead of
// Updated.
func (e *Engine) RenameEntry(ctx context.Context, snap *Snapshot, oldPath, newPath string) (ChangeSet, error) {
	absOld, err := e.Absolutize(snap.AbsRoot(), oldPath)
	if err != nil {
		return nil, err
	}
	absNew, err := e.Absolutize(snap.AbsRoot(), newPath)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(absNew); err == nil {
		return nil, coreerr.New(coreerr.AlreadyExists, absNew)
	}
	if _, err := os.Stat(absOld); err != nil {
		if os.IsNotExist(err) {
			return nil, coreerr.New(coreerr.NotFound, absOld)
		}
		return nil, coreerr.Wrap(coreerr.Io, "stat failed", err)
	}

	if err := os.Rename(absOld, absNew); err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "rename failed", err)
	}

	scanned, err := e.Scan(ctx, snap.AbsRoot(), newPath)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := snap.RemoveEntry(oldPath)
	removedByFileID := make(map[FileID]*Entry)
	for _, r := range removed {
		if r.FileID.valid() {
			removedByFileID[r.FileID] = r
		}
	}

	// The renamed path itself isn't returned by Scan (it only walks
	// descendants), so stat it directly too.
	var changes ChangeSet
	if info, err := os.Stat(absNew); err == nil {
		changes = append(changes, e.reconcileRenamed(snap, scannedEntry{
			path:   newPath,
			kind:   kindOf(info),
			mtime:  info.ModTime(),
			fileID: fileIDFromInfo(info),
		}, removedByFileID))
	}
	for _, se := range scanned {
		changes = append(changes, e.reconcileRenamed(snap, se, removedByFileID))
	}
	// Old entries whose id no new entry took over are reported as Removed.
	reused := make(map[ids.EntryId]bool)
	for _, c := range changes {
		if c.Kind == Updated {
			reused[c.ID] = true
		}
	}
	for _, r := range removed {
		if !reused[r.ID] {
			changes = append(changes, ChangeEntry{Path: r.Path, ID: r.ID, Kind: Removed})
		}
	}
	return changes, nil
}

func kindOf(info fs.FileInfo) EntryKind {
	if info.IsDir() {
		return Dir
	}
	return File
}

func (e *Engine) reconcileRenamed(snap *Snapshot, se scannedEntry, removedByFileID map[FileID]*Entry) ChangeEntry {
	if se.fileID.valid() {
		if reused, ok := removedByFileID[se.fileID]; ok {
			delete(removedByFileID, se.fileID)
			entry := e.newEntryFromScan(snap.AbsRoot(), se)
			entry.ID = reused.ID
			snap.CreateEntry(entry)
			return ChangeEntry{Path: entry.Path, ID: entry.ID, Kind: Updated}
		}
	}
	entry := e.newEntryFromScan(snap.AbsRoot(), se)
	snap.CreateEntry(entry)
	return ChangeEntry{Path: entry.Path, ID: entry.ID, Kind: Created}
}

// Package rollback implements the atomic filesystem transaction engine
// (§4.1): a journal that records one reverse action per successful forward
// mutation and, on rollback, replays them LIFO so a multi-step directory/
// file mutation is all-or-nothing from the filesystem's point of view.
package rollback

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sapic-foundation/sapic-core/internal/coreerr"
)

// CreateOptions governs file-creation steps.
type CreateOptions struct {
	// Overwrite: create_file truncates existing content; create_file_with
	// appends when false, overwrites when true (only meaningful when the
	// target already exists).
	Overwrite bool
	// IgnoreIfExists makes creation over an existing path a no-op.
	IgnoreIfExists bool
}

// RemoveOptions governs remove steps.
type RemoveOptions struct {
	IgnoreIfNotExists bool
}

// RenameOptions governs rename steps.
type RenameOptions struct {
	Overwrite      bool
	IgnoreIfExists bool
}

// undoKind tags the shape of a recorded reverse action.
type undoKind int

const (
	undoRemoveEmptyDir undoKind = iota
	undoCreateDir
	undoRemoveFile
	undoRestore // rename `original` back to `path`
)

type undo struct {
	kind     undoKind
	path     string
	original string
}

// Session is a single rollback-journal transaction. Forward operations
// append undo actions as they succeed; Rollback replays them LIFO.
// Session is not safe for concurrent use — callers serialize their own
// mutation sequence, matching the single-writer discipline of the rest of
// the storage core.
type Session struct {
	scratch   string
	undoStack []undo
	done      bool
}

// Begin creates a rollback session with a fresh, randomly named scratch
// directory under scratchRoot for destructive-step backups.
func Begin(scratchRoot string) (*Session, error) {
	scratch := filepath.Join(scratchRoot, uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "create rollback scratch directory", err)
	}
	return &Session{scratch: scratch}, nil
}

func (s *Session) backupPath() string {
	return filepath.Join(s.scratch, uuid.NewString())
}

// Commit drops the session: the scratch directory (and any backups in it)
// is removed and no further rollback is possible. Call this once every
// forward step in the caller's mutation sequence has succeeded.
func (s *Session) Commit() {
	if s.done {
		return
	}
	s.done = true
	os.RemoveAll(s.scratch)
}

// Rollback replays the undo stack LIFO, restoring the filesystem to its
// pre-session state (modulo mtime drift on ancestor directories, which the
// OS does not let us undo). On the first failed undo step, Rollback stops
// and returns that error; the remaining undo stack is left unexecuted and
// the caller must treat this as a data-loss risk (§4.1).
func (s *Session) Rollback() error {
	defer s.Commit()

	for len(s.undoStack) > 0 {
		last := len(s.undoStack) - 1
		u := s.undoStack[last]
		s.undoStack = s.undoStack[:last]

		var err error
		switch u.kind {
		case undoRemoveEmptyDir:
			err = os.Remove(u.path)
		case undoCreateDir:
			err = os.Mkdir(u.path, 0o755)
		case undoRemoveFile:
			err = os.Remove(u.path)
		case undoRestore:
			err = os.Rename(u.original, u.path)
		}
		if err != nil {
			return coreerr.Wrap(coreerr.Io, "rollback step failed, remaining undo stack was not executed", err)
		}
	}
	return nil
}

// CreateDir creates a single directory and records its removal as undo.
func (s *Session) CreateDir(path string) error {
	if err := os.Mkdir(path, 0o755); err != nil {
		return coreerr.Wrap(coreerr.Io, fmt.Sprintf("create directory %s", path), err)
	}
	s.undoStack = append(s.undoStack, undo{kind: undoRemoveEmptyDir, path: path})
	return nil
}

// CreateDirAll creates path and any missing parents, recording removal of
// each directory that didn't already exist, innermost first so the undo
// stack removes them in the order that makes each removal valid (an empty
// dir before its now-empty parent).
func (s *Session) CreateDirAll(path string) error {
	var missing []string
	for p := path; ; {
		if _, err := os.Stat(p); err == nil {
			break
		}
		missing = append(missing, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return coreerr.Wrap(coreerr.Io, fmt.Sprintf("create directory tree %s", path), err)
	}

	// missing is inner-to-outer (path, its parent, ...); undo must delete
	// inner-out, so push in reverse and LIFO pops the innermost first.
	for i := len(missing) - 1; i >= 0; i-- {
		s.undoStack = append(s.undoStack, undo{kind: undoRemoveEmptyDir, path: missing[i]})
	}
	return nil
}

// RemoveDir removes a directory (empty or not) by renaming it into the
// scratch area; the undo restores it with a single rename back.
func (s *Session) RemoveDir(path string, opts RemoveOptions) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if opts.IgnoreIfNotExists {
				return nil
			}
			return coreerr.New(coreerr.NotFound, fmt.Sprintf("cannot remove non-existent directory: %s", path))
		}
		return coreerr.Wrap(coreerr.Io, fmt.Sprintf("stat %s", path), err)
	}
	if !info.IsDir() {
		return coreerr.New(coreerr.FailedPrecondition, fmt.Sprintf("not a directory: %s", path))
	}

	backup := s.backupPath()
	if err := os.Rename(path, backup); err != nil {
		return coreerr.Wrap(coreerr.Io, fmt.Sprintf("remove directory %s", path), err)
	}
	s.undoStack = append(s.undoStack, undo{kind: undoRestore, path: path, original: backup})
	return nil
}

// CreateFile creates an empty file, or (overwrite=true) truncates an
// existing one while preserving a backup for rollback.
func (s *Session) CreateFile(path string, opts CreateOptions) error {
	exists := fileExists(path)
	if exists && opts.IgnoreIfExists {
		return nil
	}

	switch {
	case exists && opts.Overwrite:
		backup := s.backupPath()
		if err := copyFile(path, backup); err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("backup %s before truncate", path), err)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("truncate %s", path), err)
		}
		f.Close()
		s.undoStack = append(s.undoStack, undo{kind: undoRestore, path: path, original: backup})
	case exists && !opts.Overwrite:
		// already exists, preserve: no-op forward step, nothing to undo.
	default:
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("create file %s", path), err)
		}
		f.Close()
		s.undoStack = append(s.undoStack, undo{kind: undoRemoveFile, path: path})
	}
	return nil
}

// CreateFileWith writes content to path, creating it if absent, overwriting
// or appending per opts.Overwrite if it already exists.
func (s *Session) CreateFileWith(path string, opts CreateOptions, content []byte) error {
	exists := fileExists(path)
	if exists && opts.IgnoreIfExists {
		return nil
	}

	switch {
	case exists && opts.Overwrite:
		backup := s.backupPath()
		if err := copyFile(path, backup); err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("backup %s before overwrite", path), err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("overwrite %s", path), err)
		}
		s.undoStack = append(s.undoStack, undo{kind: undoRestore, path: path, original: backup})
	case exists && !opts.Overwrite:
		backup := s.backupPath()
		if err := copyFile(path, backup); err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("backup %s before append", path), err)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("open %s for append", path), err)
		}
		if _, err := f.Write(content); err != nil {
			f.Close()
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("append to %s", path), err)
		}
		if err := f.Close(); err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("flush %s", path), err)
		}
		s.undoStack = append(s.undoStack, undo{kind: undoRestore, path: path, original: backup})
	default:
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("create file with content %s", path), err)
		}
		s.undoStack = append(s.undoStack, undo{kind: undoRemoveFile, path: path})
	}
	return nil
}

// RemoveFile removes a file by renaming it into the scratch area.
func (s *Session) RemoveFile(path string, opts RemoveOptions) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if opts.IgnoreIfNotExists {
				return nil
			}
			return coreerr.New(coreerr.NotFound, fmt.Sprintf("cannot remove non-existent file: %s", path))
		}
		return coreerr.Wrap(coreerr.Io, fmt.Sprintf("stat %s", path), err)
	}
	if info.IsDir() {
		return coreerr.New(coreerr.FailedPrecondition, fmt.Sprintf("not a file: %s", path))
	}

	backup := s.backupPath()
	if err := os.Rename(path, backup); err != nil {
		return coreerr.Wrap(coreerr.Io, fmt.Sprintf("remove file %s", path), err)
	}
	s.undoStack = append(s.undoStack, undo{kind: undoRestore, path: path, original: backup})
	return nil
}

// Rename moves from to to, dispatching to the file/dir variant and
// honoring options. Matches tokio::fs::rename semantics: on Unix, renaming
// a directory onto an existing empty directory is allowed.
func (s *Session) Rename(from, to string, opts RenameOptions) error {
	fromInfo, err := os.Stat(from)
	if err != nil {
		return coreerr.New(coreerr.NotFound, fmt.Sprintf("cannot rename non-existent path %s", from))
	}

	toInfo, toErr := os.Stat(to)
	toExists := toErr == nil

	if toExists {
		if fromInfo.IsDir() && !toInfo.IsDir() {
			return coreerr.New(coreerr.FailedPrecondition, fmt.Sprintf("cannot rename a directory to a file: %s -> %s", from, to))
		}
		if !fromInfo.IsDir() && toInfo.IsDir() {
			return coreerr.New(coreerr.FailedPrecondition, fmt.Sprintf("cannot rename a file to a directory: %s -> %s", from, to))
		}
	}

	if !opts.Overwrite && toExists {
		if opts.IgnoreIfExists {
			return nil
		}
		return coreerr.New(coreerr.AlreadyExists, fmt.Sprintf("path already exists: %s", to))
	}

	if opts.Overwrite && toExists {
		toBackup := s.backupPath()
		if err := os.Rename(to, toBackup); err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("backup destination %s", to), err)
		}
		if err := os.Rename(from, to); err != nil {
			return coreerr.Wrap(coreerr.Io, fmt.Sprintf("rename %s to %s", from, to), err)
		}
		// LIFO: undo the from->to rename first, then restore the
		// overwritten destination.
		s.undoStack = append(s.undoStack, undo{kind: undoRestore, path: to, original: toBackup})
		s.undoStack = append(s.undoStack, undo{kind: undoRestore, path: from, original: to})
		return nil
	}

	if err := os.Rename(from, to); err != nil {
		return coreerr.Wrap(coreerr.Io, fmt.Sprintf("rename %s to %s", from, to), err)
	}
	s.undoStack = append(s.undoStack, undo{kind: undoRestore, path: from, original: to})
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode())
}

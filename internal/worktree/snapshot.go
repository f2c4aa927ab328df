package worktree

import (
	"sort"
	"strings"
	"sync"

	"github.com/sapic-foundation/sapic-core/internal/ids"
)

// pathIndex is an ordered index of path -> EntryId. No B-tree library
// appears anywhere in the retrieved example pack (see DESIGN.md), so it's
// a sorted slice searched with sort.Search — the same range-skip-take
// shape the spec prescribes for prefix iteration, just expressed over
// Go's stdlib binary search instead of a tree type.
type pathIndex struct {
	paths []string // kept sorted
	ids   map[string]ids.EntryId
}

func newPathIndex() *pathIndex {
	return &pathIndex{ids: make(map[string]ids.EntryId)}
}

func (p *pathIndex) search(path string) int {
	return sort.Search(len(p.paths), func(i int) bool { return p.paths[i] >= path })
}

func (p *pathIndex) put(path string, id ids.EntryId) {
	if _, exists := p.ids[path]; exists {
		p.ids[path] = id
		return
	}
	i := p.search(path)
	p.paths = append(p.paths, "")
	copy(p.paths[i+1:], p.paths[i:])
	p.paths[i] = path
	p.ids[path] = id
}

func (p *pathIndex) remove(path string) (ids.EntryId, bool) {
	id, ok := p.ids[path]
	if !ok {
		return "", false
	}
	delete(p.ids, path)
	i := p.search(path)
	if i < len(p.paths) && p.paths[i] == path {
		p.paths = append(p.paths[:i], p.paths[i+1:]...)
	}
	return id, true
}

func (p *pathIndex) get(path string) (ids.EntryId, bool) {
	id, ok := p.ids[path]
	return id, ok
}

// prefixRange returns the [lo, hi) slice index range of paths starting
// with prefix — the "range-skip-take" pattern named in §4.4.
func (p *pathIndex) prefixRange(prefix string) (lo, hi int) {
	lo = sort.Search(len(p.paths), func(i int) bool { return p.paths[i] >= prefix })
	hi = lo
	for hi < len(p.paths) && strings.HasPrefix(p.paths[hi], prefix) {
		hi++
	}
	return lo, hi
}

// Snapshot is a point-in-time indexed view of a worktree (§4.4): two
// indices over the same set of entries, guaranteed equal in cardinality
// and content after every operation.
type Snapshot struct {
	mu      sync.RWMutex
	byID    map[ids.EntryId]*Entry
	byPath  *pathIndex
	absRoot string
}

// NewSnapshot creates an empty snapshot rooted at absRoot.
func NewSnapshot(absRoot string) *Snapshot {
	return &Snapshot{
		byID:    make(map[ids.EntryId]*Entry),
		byPath:  newPathIndex(),
		absRoot: absRoot,
	}
}

// AbsRoot returns the snapshot's absolute root directory.
func (s *Snapshot) AbsRoot() string {
	return s.absRoot
}

// CreateEntry inserts e into both indices. A duplicate path is permitted
// and replaces both mappings (§4.4: "overwrite on duplicate path is
// permitted and replaces both mappings").
func (s *Snapshot) CreateEntry(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createEntryLocked(e)
}

func (s *Snapshot) createEntryLocked(e *Entry) {
	if oldID, ok := s.byPath.get(e.Path); ok && oldID != e.ID {
		delete(s.byID, oldID)
	}
	s.byID[e.ID] = e
	s.byPath.put(e.Path, e.ID)
}

// EntryByPath looks up an entry by its relative path.
func (s *Snapshot) EntryByPath(path string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPath.get(path)
	if !ok {
		return nil, false
	}
	e, ok := s.byID[id]
	return e, ok
}

// EntryByID looks up an entry by its id.
func (s *Snapshot) EntryByID(id ids.EntryId) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// IterEntriesByPrefix returns every entry whose path begins with prefix,
// in path order.
func (s *Snapshot) IterEntriesByPrefix(prefix string) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo, hi := s.byPath.prefixRange(prefix)
	out := make([]*Entry, 0, hi-lo)
	for i := lo; i < hi; i++ {
		id := s.byPath.ids[s.byPath.paths[i]]
		if e, ok := s.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// RemoveEntry removes path (and, if it names a directory, every entry
// whose path starts with it — recursive subtree removal) from both
// indices, returning the removed entries so the caller can form a change
// set.
func (s *Snapshot) RemoveEntry(path string) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeEntryLocked(path)
}

func (s *Snapshot) removeEntryLocked(path string) []*Entry {
	id, ok := s.byPath.get(path)
	if !ok {
		return nil
	}
	target := s.byID[id]
	if target == nil || target.Kind == File {
		s.byPath.remove(path)
		delete(s.byID, id)
		if target == nil {
			return nil
		}
		return []*Entry{target}
	}

	// Directory: collect the subtree first (prefix match on path+"/" so a
	// sibling like "foo2" doesn't get swept up removing "foo").
	subtreePrefix := path
	if subtreePrefix != RootPath {
		subtreePrefix += "/"
	}
	lo, hi := s.byPath.prefixRange(subtreePrefix)
	paths := append([]string{path}, append([]string{}, s.byPath.paths[lo:hi]...)...)

	removed := make([]*Entry, 0, len(paths))
	for _, p := range paths {
		pid, ok := s.byPath.remove(p)
		if !ok {
			continue
		}
		if e, ok := s.byID[pid]; ok {
			removed = append(removed, e)
		}
		delete(s.byID, pid)
	}
	return removed
}

// LowestAncestorPath walks path's ancestors and returns the first one
// present in the snapshot; it never panics, returning (nil, false) when no
// ancestor is loaded so the caller can fall back to the root sentinel.
func (s *Snapshot) LowestAncestorPath(path string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for p := path; ; {
		if id, ok := s.byPath.get(p); ok {
			return s.byID[id], true
		}
		if p == RootPath || p == "." || p == "" {
			return nil, false
		}
		parent := parentOf(p)
		if parent == p {
			return nil, false
		}
		p = parent
	}
}

// Len returns |entries_by_id|, which must equal the path index's size
// after every operation (§4.4 invariant).
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// PathLen returns |entries_by_path|.
func (s *Snapshot) PathLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byPath.paths)
}

func parentOf(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return RootPath
	}
	return path[:i]
}

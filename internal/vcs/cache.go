package vcs

import (
	"context"
	"sync"
	"time"
)

// CachingCollaborator wraps a Collaborator and caches the result of Load
// per localPath for a TTL, so repeated Load calls against the same project
// (e.g. from a CLI `project list` walking every project in a workspace)
// don't re-stat the repository on every call.
type CachingCollaborator struct {
	inner Collaborator
	cache *repoCache
}

// NewCachingCollaborator wraps inner, caching Load results for ttl.
func NewCachingCollaborator(inner Collaborator, ttl time.Duration) *CachingCollaborator {
	return &CachingCollaborator{inner: inner, cache: newRepoCache(ttl)}
}

func (c *CachingCollaborator) Clone(ctx context.Context, repositoryURL, branch, localPath string, creds CredentialsCallback) (RepositoryHandle, error) {
	handle, err := c.inner.Clone(ctx, repositoryURL, branch, localPath, creds)
	if err == nil {
		c.cache.set(localPath, handle)
	}
	return handle, err
}

func (c *CachingCollaborator) InitRepo(ctx context.Context, localPath, repositoryURL string, creds CredentialsCallback) (RepositoryHandle, error) {
	handle, err := c.inner.InitRepo(ctx, localPath, repositoryURL, creds)
	if err == nil {
		c.cache.set(localPath, handle)
	}
	return handle, err
}

func (c *CachingCollaborator) Load(ctx context.Context, localPath string) (RepositoryHandle, error) {
	if handle, ok := c.cache.get(localPath); ok {
		return handle, nil
	}
	handle, err := c.inner.Load(ctx, localPath)
	if err == nil {
		c.cache.set(localPath, handle)
	}
	return handle, err
}

// Invalidate drops any cached Load result for localPath, e.g. after a
// project is deleted or its external_path changes.
func (c *CachingCollaborator) Invalidate(localPath string) {
	c.cache.delete(localPath)
}

// Close stops the cache's background eviction goroutine. Call it once the
// collaborator is no longer needed.
func (c *CachingCollaborator) Close() {
	c.cache.stop()
}

type repoCacheEntry struct {
	handle    RepositoryHandle
	expiresAt time.Time
}

// repoCache is a TTL map from a project's local path to its last-known
// RepositoryHandle, keyed and valued for exactly what CachingCollaborator
// needs — there's only ever one instantiation of this shape in this
// codebase, so it isn't generic over T or bounded by a max-entries count.
type repoCache struct {
	mu      sync.RWMutex
	entries map[string]repoCacheEntry
	ttl     time.Duration
	stopCh  chan struct{}
}

func newRepoCache(ttl time.Duration) *repoCache {
	c := &repoCache{
		entries: make(map[string]repoCacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.cleanup()
	return c
}

func (c *repoCache) get(localPath string) (RepositoryHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[localPath]
	if !ok || time.Now().After(e.expiresAt) {
		return RepositoryHandle{}, false
	}
	return e.handle, true
}

func (c *repoCache) set(localPath string, handle RepositoryHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[localPath] = repoCacheEntry{handle: handle, expiresAt: time.Now().Add(c.ttl)}
}

func (c *repoCache) delete(localPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, localPath)
}

func (c *repoCache) stop() {
	close(c.stopCh)
}

func (c *repoCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for localPath, e := range c.entries {
				if now.After(e.expiresAt) {
					delete(c.entries, localPath)
				}
			}
			c.mu.Unlock()
		case <-c.stopCh:
			return
		}
	}
}

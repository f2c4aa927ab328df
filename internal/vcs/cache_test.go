package vcs

import (
	"context"
	"testing"
	"time"
)

type countingCollaborator struct {
	loads int
}

func (c *countingCollaborator) Clone(ctx context.Context, repositoryURL, branch, localPath string, creds CredentialsCallback) (RepositoryHandle, error) {
	return RepositoryHandle{URL: repositoryURL, Branch: branch}, nil
}

func (c *countingCollaborator) InitRepo(ctx context.Context, localPath, repositoryURL string, creds CredentialsCallback) (RepositoryHandle, error) {
	return RepositoryHandle{URL: repositoryURL}, nil
}

func (c *countingCollaborator) Load(ctx context.Context, localPath string) (RepositoryHandle, error) {
	c.loads++
	return RepositoryHandle{URL: "cached-" + localPath}, nil
}

func TestCachingCollaboratorReusesLoadWithinTTL(t *testing.T) {
	inner := &countingCollaborator{}
	c := NewCachingCollaborator(inner, time.Minute)

	h1, err := c.Load(context.Background(), "/proj/a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	h2, err := c.Load(context.Background(), "/proj/a")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical cached handle, got %v and %v", h1, h2)
	}
	if inner.loads != 1 {
		t.Fatalf("expected inner.Load called once, got %d", inner.loads)
	}
}

func TestCachingCollaboratorInvalidate(t *testing.T) {
	inner := &countingCollaborator{}
	c := NewCachingCollaborator(inner, time.Minute)

	if _, err := c.Load(context.Background(), "/proj/a"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Invalidate("/proj/a")
	if _, err := c.Load(context.Background(), "/proj/a"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if inner.loads != 2 {
		t.Fatalf("expected inner.Load called twice after invalidate, got %d", inner.loads)
	}
}

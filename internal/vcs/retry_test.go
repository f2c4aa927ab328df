package vcs

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/time/rate"
)

type failNTimesCollaborator struct {
	failures int
	calls    int
}

func (f *failNTimesCollaborator) Clone(ctx context.Context, repositoryURL, branch, localPath string, creds CredentialsCallback) (RepositoryHandle, error) {
	f.calls++
	if f.calls <= f.failures {
		return RepositoryHandle{}, errors.New("transient failure")
	}
	return RepositoryHandle{URL: repositoryURL, Branch: branch}, nil
}

func (f *failNTimesCollaborator) InitRepo(ctx context.Context, localPath, repositoryURL string, creds CredentialsCallback) (RepositoryHandle, error) {
	return RepositoryHandle{}, nil
}

func (f *failNTimesCollaborator) Load(ctx context.Context, localPath string) (RepositoryHandle, error) {
	return RepositoryHandle{}, nil
}

func TestRetryingCollaboratorRetriesUntilSuccess(t *testing.T) {
	inner := &failNTimesCollaborator{failures: 2}
	r := NewRetryingCollaborator(inner, rate.NewLimiter(rate.Inf, 1), 3)

	handle, err := r.Clone(context.Background(), "https://example.invalid/r.git", "main", "/tmp/x", nil)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if handle.URL != "https://example.invalid/r.git" {
		t.Fatalf("unexpected handle: %+v", handle)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetryingCollaboratorExhaustsAttempts(t *testing.T) {
	inner := &failNTimesCollaborator{failures: 5}
	r := NewRetryingCollaborator(inner, rate.NewLimiter(rate.Inf, 1), 2)

	_, err := r.Clone(context.Background(), "https://example.invalid/r.git", "main", "/tmp/x", nil)
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if inner.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", inner.calls)
	}
}

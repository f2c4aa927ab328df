package vcs

import (
	"context"

	"golang.org/x/time/rate"
)

// RetryingCollaborator wraps a Collaborator with a bounded number of retry
// attempts, each gated by a rate limiter so a flaky clone doesn't hammer
// the remote host (§6.3/§2 domain-stack wiring).
type RetryingCollaborator struct {
	inner       Collaborator
	limiter     *rate.Limiter
	maxAttempts int
}

// NewRetryingCollaborator wraps inner. limiter gates each attempt (including
// the first); maxAttempts must be at least 1.
func NewRetryingCollaborator(inner Collaborator, limiter *rate.Limiter, maxAttempts int) *RetryingCollaborator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingCollaborator{inner: inner, limiter: limiter, maxAttempts: maxAttempts}
}

func (r *RetryingCollaborator) retry(ctx context.Context, op func() (RepositoryHandle, error)) (RepositoryHandle, error) {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			return RepositoryHandle{}, WrapError("rate limiter wait failed", err)
		}
		handle, err := op()
		if err == nil {
			return handle, nil
		}
		lastErr = err
	}
	return RepositoryHandle{}, lastErr
}

func (r *RetryingCollaborator) Clone(ctx context.Context, repositoryURL, branch, localPath string, creds CredentialsCallback) (RepositoryHandle, error) {
	return r.retry(ctx, func() (RepositoryHandle, error) {
		return r.inner.Clone(ctx, repositoryURL, branch, localPath, creds)
	})
}

func (r *RetryingCollaborator) InitRepo(ctx context.Context, localPath, repositoryURL string, creds CredentialsCallback) (RepositoryHandle, error) {
	return r.retry(ctx, func() (RepositoryHandle, error) {
		return r.inner.InitRepo(ctx, localPath, repositoryURL, creds)
	})
}

func (r *RetryingCollaborator) Load(ctx context.Context, localPath string) (RepositoryHandle, error) {
	return r.retry(ctx, func() (RepositoryHandle, error) {
		return r.inner.Load(ctx, localPath)
	})
}

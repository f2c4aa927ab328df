package vcs

import (
	"context"
	"os"
	"sync"
)

// StubCollaborator is an in-memory Collaborator for tests: Clone and
// InitRepo just create the target directory, and Load succeeds if it
// already exists. There is no real git protocol involved — the OAuth-based
// hosting provider flow is out of scope.
type StubCollaborator struct {
	mu      sync.Mutex
	cloned  []string
	FailErr error // when set, every call fails with this error
}

func NewStubCollaborator() *StubCollaborator {
	return &StubCollaborator{}
}

func (s *StubCollaborator) Clone(ctx context.Context, repositoryURL, branch, localPath string, creds CredentialsCallback) (RepositoryHandle, error) {
	if s.FailErr != nil {
		return RepositoryHandle{}, WrapError("clone failed", s.FailErr)
	}
	if creds != nil {
		if _, err := creds(ctx); err != nil {
			return RepositoryHandle{}, WrapError("credentials callback failed", err)
		}
	}
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		return RepositoryHandle{}, WrapError("clone mkdir failed", err)
	}
	s.mu.Lock()
	s.cloned = append(s.cloned, localPath)
	s.mu.Unlock()
	return RepositoryHandle{URL: repositoryURL, Branch: branch}, nil
}

func (s *StubCollaborator) InitRepo(ctx context.Context, localPath, repositoryURL string, creds CredentialsCallback) (RepositoryHandle, error) {
	if s.FailErr != nil {
		return RepositoryHandle{}, WrapError("init failed", s.FailErr)
	}
	if err := os.MkdirAll(localPath, 0o755); err != nil {
		return RepositoryHandle{}, WrapError("init mkdir failed", err)
	}
	return RepositoryHandle{URL: repositoryURL}, nil
}

func (s *StubCollaborator) Load(ctx context.Context, localPath string) (RepositoryHandle, error) {
	if s.FailErr != nil {
		return RepositoryHandle{}, WrapError("load failed", s.FailErr)
	}
	if _, err := os.Stat(localPath); err != nil {
		return RepositoryHandle{}, WrapError("load: repository not present", err)
	}
	return RepositoryHandle{}, nil
}

// Cloned reports every path Clone has been called with, for test assertions.
func (s *StubCollaborator) Cloned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cloned))
	copy(out, s.cloned)
	return out
}

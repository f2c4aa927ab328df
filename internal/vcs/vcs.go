// Package vcs defines the opaque collaborator boundary the project
// service calls through for clone/init/load (§6.3). The core never
// inspects git internals; a Collaborator implementation owns the actual
// hosting-provider protocol (GitHub, GitLab, ...).
package vcs

import (
	"context"

	"github.com/sapic-foundation/sapic-core/internal/coreerr"
)

// Credentials is produced on demand by a CredentialsCallback.
type Credentials struct {
	Username string
	Token    string
}

// CredentialsCallback supplies short-lived credentials for a VCS
// operation, e.g. reading from an OS keyring or prompting the user.
type CredentialsCallback func(ctx context.Context) (Credentials, error)

// RepositoryHandle is the opaque result of a successful clone/init/load.
// The core stores nothing from it beyond what it needs to report back to
// the caller.
type RepositoryHandle struct {
	URL    string
	Branch string
}

// Collaborator is the VCS boundary consumed by the project service.
type Collaborator interface {
	// Clone clones repositoryURL (optionally at branch) into localPath.
	Clone(ctx context.Context, repositoryURL, branch, localPath string, creds CredentialsCallback) (RepositoryHandle, error)
	// InitRepo initializes a new repository at localPath and, if
	// repositoryURL is non-empty, wires it as the remote.
	InitRepo(ctx context.Context, localPath, repositoryURL string, creds CredentialsCallback) (RepositoryHandle, error)
	// Load opens an already-cloned repository at localPath.
	Load(ctx context.Context, localPath string) (RepositoryHandle, error)
}

// WrapError tags a collaborator-returned error as VcsError, the shape
// §6.3 requires every collaborator failure to surface as.
func WrapError(detail string, cause error) error {
	return coreerr.Wrap(coreerr.VcsError, detail, cause)
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sapic-foundation/sapic-core/internal/applog"
	"github.com/sapic-foundation/sapic-core/internal/config"
	"github.com/sapic-foundation/sapic-core/internal/kv"
	"github.com/sapic-foundation/sapic-core/internal/project"
	"github.com/sapic-foundation/sapic-core/internal/substore"
	"github.com/sapic-foundation/sapic-core/internal/vcs"
	"github.com/sapic-foundation/sapic-core/internal/workspace"
)

// vcsRetryRate and vcsRetryAttempts bound how hard a CLI invocation hammers
// a remote VCS host on clone/init/load failures. vcsLoadCacheTTL bounds how
// long a Load result is trusted before re-stating the repository.
const (
	vcsRetryRate     = 2 // attempts per second
	vcsRetryAttempts = 3
	vcsLoadCacheTTL  = 30 * time.Second
)

// services bundles the entity services a command needs, plus a Close that
// tears every open scope down cleanly.
type services struct {
	sub       *substore.Manager
	workspace *workspace.Manager
	project   *project.Service
	collab    *vcs.CachingCollaborator
}

func (s *services) Close(ctx context.Context) error {
	s.collab.Close()
	wsErr := s.workspace.Close(ctx)
	if subErr := s.sub.CloseAll(ctx); subErr != nil {
		return subErr
	}
	return wsErr
}

// bootstrap loads config (honoring --root as a UserDir override) and wires
// the substore/workspace/project services against it.
func bootstrap(cmd *cobra.Command) (*services, error) {
	debug, _ := cmd.Root().PersistentFlags().GetBool("debug")
	applog.SetDebug(debug)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if root, _ := cmd.Root().PersistentFlags().GetString("root"); root != "" {
		cfg.UserDir = root
	}

	sub := substore.New(cfg.UserDir, substore.DefaultOpener(kv.Options{BusyTimeout: cfg.Kv.BusyTimeout}))
	sub.OnDidChangeValue(logChangeEvent)
	ws, err := workspace.New(context.Background(), cfg.UserDir, sub)
	if err != nil {
		return nil, fmt.Errorf("failed to open application scope: %w", err)
	}
	ws.OnDidChangeValue(logChangeEvent)
	retrying := vcs.NewRetryingCollaborator(vcs.NewStubCollaborator(), rate.NewLimiter(rate.Limit(vcsRetryRate), 1), vcsRetryAttempts)
	collab := vcs.NewCachingCollaborator(retrying, vcsLoadCacheTTL)
	proj := project.New(cfg.UserDir, sub, collab)

	return &services{sub: sub, workspace: ws, project: proj, collab: collab}, nil
}

// logChangeEvent is the default OnDidChangeValue observer: this CLI has no
// IPC layer to dispatch change events to, so it just traces them at debug
// level.
func logChangeEvent(ev kv.ChangeEvent) {
	op := "put"
	if ev.Removed {
		op = "remove"
	}
	applog.Debugf("kv: %s %s (scope kind=%d workspace=%s project=%s)", op, ev.Key, ev.Scope.Kind, ev.Scope.Workspace, ev.Scope.Project)
}

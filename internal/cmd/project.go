package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sapic-foundation/sapic-core/internal/ids"
	"github.com/sapic-foundation/sapic-core/internal/vcs"
)

var (
	projectExternalPath string
	projectCloneBranch  string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects within a workspace",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <workspace-id> <name>",
	Short: "Create a project in a workspace",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectCreate,
}

var projectListCmd = &cobra.Command{
	Use:   "list <workspace-id>",
	Short: "List a workspace's projects and each worktree's entry count",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectList,
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive <workspace-id> <project-id>",
	Short: "Archive a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectArchive,
}

var projectUnarchiveCmd = &cobra.Command{
	Use:   "unarchive <workspace-id> <project-id>",
	Short: "Unarchive a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectUnarchive,
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <workspace-id> <project-id>",
	Short: "Delete a project",
	Args:  cobra.ExactArgs(2),
	RunE:  runProjectDelete,
}

var projectCloneCmd = &cobra.Command{
	Use:   "clone <workspace-id> <name> <repository-url>",
	Short: "Create a project and clone a repository into it",
	Args:  cobra.ExactArgs(3),
	RunE:  runProjectClone,
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectArchiveCmd, projectUnarchiveCmd, projectDeleteCmd, projectCloneCmd)
	projectCreateCmd.Flags().StringVar(&projectExternalPath, "external-path", "", "external directory to root the project at, instead of the internal path")
	projectCloneCmd.Flags().StringVar(&projectCloneBranch, "branch", "", "branch to check out after cloning")
}

func runProjectCreate(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	prID, err := svc.project.CreateProject(context.Background(), ids.WorkspaceId(args[0]), args[1], projectExternalPath)
	if err != nil {
		return err
	}
	fmt.Println(prID)
	return nil
}

func runProjectList(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	wsID := ids.WorkspaceId(args[0])
	ctx := context.Background()

	listing, err := svc.workspace.ListProjects(ctx, wsID)
	if err != nil {
		return err
	}
	for _, p := range listing {
		if err := svc.project.Load(ctx, wsID, p.ID); err != nil {
			fmt.Printf("%s\t%s\t<failed to load: %v>\n", p.ID, p.Name, err)
			continue
		}
		status := "active"
		entries := 0
		if svc.project.IsArchived(p.ID) {
			status = "archived"
		} else if snap, ok := svc.project.Worktree(p.ID); ok {
			entries = snap.Len()
		}
		fmt.Printf("%s\t%s\t%s\t%s entries\n", p.ID, p.Name, status, humanize.Comma(int64(entries)))
	}
	return nil
}

func runProjectArchive(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	return svc.project.Archive(context.Background(), ids.WorkspaceId(args[0]), ids.ProjectId(args[1]))
}

func runProjectUnarchive(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	return svc.project.Unarchive(context.Background(), ids.WorkspaceId(args[0]), ids.ProjectId(args[1]))
}

func runProjectDelete(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	return svc.project.DeleteProject(context.Background(), ids.WorkspaceId(args[0]), ids.ProjectId(args[1]))
}

func runProjectClone(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	creds := func(ctx context.Context) (vcs.Credentials, error) {
		return vcs.Credentials{}, nil
	}

	prID, err := svc.project.Clone(context.Background(), ids.WorkspaceId(args[0]), args[1], args[2], projectCloneBranch, creds)
	if err != nil {
		return err
	}
	fmt.Println(prID)
	return nil
}

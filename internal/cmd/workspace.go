package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/ncruces/go-strftime"
	"github.com/spf13/cobra"

	"github.com/sapic-foundation/sapic-core/internal/ids"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
}

var workspaceListLong bool

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceCreate,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaceList,
}

var workspaceActivateCmd = &cobra.Command{
	Use:   "activate <id>",
	Short: "Activate a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceActivate,
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceDelete,
}

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(workspaceCreateCmd, workspaceListCmd, workspaceActivateCmd, workspaceDeleteCmd)
	workspaceListCmd.Flags().BoolVar(&workspaceListLong, "long", false, "show absolute timestamps alongside the relative ones")
}

func runWorkspaceCreate(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	id, err := svc.workspace.CreateWorkspace(context.Background(), args[0])
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	infos, err := svc.workspace.ListWorkspaces(context.Background())
	if err != nil {
		return err
	}

	// The bullet glyph is replaced by a plain dash when stdout isn't a
	// terminal (e.g. piped into a file or another program).
	bullet := "•"
	if !isatty.IsTerminal(uintptr(1)) && !isatty.IsCygwinTerminal(uintptr(1)) {
		bullet = "-"
	}

	for _, info := range infos {
		line := fmt.Sprintf("%s %s\t%s", bullet, info.ID, info.Name)
		if info.LastOpenedAt != nil {
			line += fmt.Sprintf("\t%s", humanize.Time(*info.LastOpenedAt))
			if workspaceListLong {
				if abs, err := strftime.Format("%Y-%m-%d %H:%M:%S", *info.LastOpenedAt); err == nil {
					line += fmt.Sprintf(" (%s)", abs)
				}
			}
		}
		fmt.Println(line)
	}
	return nil
}

func runWorkspaceActivate(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	return svc.workspace.ActivateWorkspace(context.Background(), ids.WorkspaceId(args[0]))
}

func runWorkspaceDelete(cmd *cobra.Command, args []string) error {
	svc, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer svc.Close(context.Background())

	return svc.workspace.DeleteWorkspace(context.Background(), ids.WorkspaceId(args[0]))
}

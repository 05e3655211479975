package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vietddude/deepwiki/internal/tools"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Inspect and prepare indexed repositories",
}

var repoStatusCmd = &cobra.Command{
	Use:   "status [owner/name]",
	Short: "Check whether a repository is indexed",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTool(func(ctx context.Context, svc *tools.Service) tools.Result {
			return svc.RepoStatus(ctx, args[0])
		})
	},
}

var repoSearchCmd = &cobra.Command{
	Use:   "search [term]",
	Short: "Search indexed repositories",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTool(func(ctx context.Context, svc *tools.Service) tools.Result {
			return svc.SearchRepos(ctx, args[0])
		})
	},
}

var repoWarmCmd = &cobra.Command{
	Use:   "warm [owner/name]",
	Short: "Pre-warm a repository for faster queries",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTool(func(ctx context.Context, svc *tools.Service) tools.Result {
			return svc.WarmRepo(ctx, args[0])
		})
	},
}

func init() {
	repoCmd.AddCommand(repoStatusCmd, repoSearchCmd, repoWarmCmd)
	rootCmd.AddCommand(repoCmd)
}

package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/deepwiki/internal/lifecycle"
	"github.com/vietddude/deepwiki/internal/tools"
)

var (
	queryRepos     []string
	queryMode      string
	queryContext   string
	queryNoSummary bool
	queryMermaid   bool
	resultMermaid  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Ask a question about one or more repositories and wait for the answer",
	Args:  cobra.ExactArgs(1),
	Run:   runQuery,
}

var resultCmd = &cobra.Command{
	Use:   "result [query-id]",
	Short: "Fetch the result of a previously submitted query",
	Args:  cobra.ExactArgs(1),
	Run:   runResult,
}

func init() {
	queryCmd.Flags().StringSliceVarP(&queryRepos, "repo", "r", nil, "repository in owner/name form (repeatable, up to 5)")
	queryCmd.Flags().StringVarP(&queryMode, "mode", "m", "fast", "query mode: fast, deep or codemap")
	queryCmd.Flags().StringVar(&queryContext, "context", "", "additional context to guide the search")
	queryCmd.Flags().BoolVar(&queryNoSummary, "no-summary", false, "skip the generated summary")
	queryCmd.Flags().BoolVar(&queryMermaid, "mermaid", false, "include a Mermaid diagram (codemap mode)")

	resultCmd.Flags().BoolVar(&resultMermaid, "mermaid", false, "include a Mermaid diagram if available")

	rootCmd.AddCommand(queryCmd, resultCmd)
}

func runQuery(cmd *cobra.Command, args []string) {
	summary := !queryNoSummary
	in := tools.QueryInput{
		Question:        args[0],
		Repos:           queryRepos,
		Mode:            queryMode,
		Context:         queryContext,
		GenerateSummary: &summary,
		IncludeMermaid:  queryMermaid,
	}

	runTool(func(ctx context.Context, svc *tools.Service) tools.Result {
		progress := make(chan lifecycle.Progress, 8)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for p := range progress {
				slog.Info("Waiting for query", "query_id", p.JobID, "progress", p.Percent, "status", p.RemoteState)
			}
		}()

		res := svc.Query(ctx, in, progress)
		close(progress)
		<-done
		return res
	})
}

func runResult(cmd *cobra.Command, args []string) {
	runTool(func(ctx context.Context, svc *tools.Service) tools.Result {
		return svc.GetResult(ctx, args[0], resultMermaid)
	})
}

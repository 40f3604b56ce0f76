package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lherron/cfgsync/internal/cli/appctx"
	"github.com/lherron/cfgsync/internal/client"
	"github.com/lherron/cfgsync/internal/migrate"
	"github.com/lherron/cfgsync/internal/resolve"
)

var dashboardsCmd = &cobra.Command{
	Use:   "dashboards",
	Short: "Sync custom dashboards from the source to the target",
	Long: `Copies every source dashboard into the target. Dashboards whose title
already exists in the target are handled by --on-duplicate:

  skip    leave the target dashboard alone (its details are never fetched)
  update  overwrite the target dashboard
  ask     prompt for each duplicate before any write; without a terminal
          duplicates are skipped

Exit codes: 0 when everything succeeded or was skipped, 5 when some
dashboards failed, 1 when the run could not complete.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.SyncOptions(), runDashboards),
}

func init() {
	rootCmd.AddCommand(dashboardsCmd)
	f := dashboardsCmd.Flags()
	f.String("on-duplicate", "ask", "Duplicate policy: skip, update or ask")
	f.Int("max-concurrent", 10, "Maximum in-flight fetches and writes")
	f.String("default-owner-id", "", "Target user id for dashboards whose owner cannot be mapped")
	f.Bool("verify-writes", false, "Read each created dashboard back and fail it if it was not stored")
	f.String("source-mode", "api", "Where to read dashboards from: api or file")
	f.String("source-file", "", "JSON file to read when --source-mode=file")
	f.String("save-source", "", "Write fetched source dashboards to this JSON file")
	f.Bool("porcelain", false, "Machine-readable output")
}

func runDashboards(app *appctx.App, cmd *cobra.Command, args []string) error {
	cfg := app.Config
	policy, err := resolve.ParsePolicy(cfg.OnDuplicate)
	if err != nil {
		return exitError(ExitFailure, err)
	}
	out, err := renderer(cmd, cfg.Output)
	if err != nil {
		return exitError(ExitFailure, err)
	}

	var prompter resolve.Prompter
	if policy == resolve.PolicyAsk && interactive(cmd.InOrStdin()) {
		prompter = newTerminalPrompter(cmd.InOrStdin(), cmd.ErrOrStderr(), app.Target)
	}

	orch, err := migrate.New(migrate.Options{
		Source:         app.Source,
		Target:         app.Target,
		Policy:         policy,
		Prompter:       prompter,
		Concurrency:    cfg.MaxConcurrentRequests,
		DefaultOwnerID: cfg.DefaultOwnerID,
		VerifyWrites:   cfg.VerifyWrites,
		SaveSourcePath: cfg.SaveSource,
		Logger:         app.Logger,
	})
	if err != nil {
		return exitError(ExitFailure, err)
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := orch.Run(ctx)
	if err := out.Render(summary); err != nil {
		return exitError(ExitFailure, err)
	}
	printFailures(cmd, summary)

	switch {
	case runErr == nil && summary.ExitCode() == ExitPartial:
		return exitError(ExitPartial, fmt.Errorf("%s failed", plural(summary.Failed, "dashboard")))
	case runErr == nil:
		return nil
	case client.IsFatal(runErr):
		return exitError(ExitFailure, fmt.Errorf("authentication failed, check the API tokens: %w", runErr))
	default:
		return exitError(ExitFailure, runErr)
	}
}

// printFailures lists failed items and warnings on stderr
func printFailures(cmd *cobra.Command, s *migrate.Summary) {
	w := cmd.ErrOrStderr()
	if len(s.Failures) > 0 {
		fmt.Fprintf(w, "\nFailed dashboards:\n")
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  %s (%s) [%s]: %s\n", f.Title, f.ID, f.Kind, f.Reason)
		}
	}
	if len(s.Warnings) > 0 {
		fmt.Fprintf(w, "\nWarnings:\n")
		for _, msg := range s.Warnings {
			fmt.Fprintf(w, "  %s\n", msg)
		}
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

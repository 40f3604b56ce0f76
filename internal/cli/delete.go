package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lherron/cfgsync/internal/bulk"
	"github.com/lherron/cfgsync/internal/cli/appctx"
	"github.com/lherron/cfgsync/internal/client"
)

const deleteConfirmPhrase = "DELETE ALL"

var deleteDashboardsCmd = &cobra.Command{
	Use:   "delete-dashboards",
	Short: "Delete every custom dashboard in the target",
	Long: `Lists the target's custom dashboards and deletes all of them after the
operator types DELETE ALL. Intended for resetting a test instance between
sync runs. --confirm skips the prompt.`,
	Args: cobra.NoArgs,
	RunE: appctx.WithApp(appctx.TargetOnly(), runDeleteDashboards),
}

var deleteConfirm bool

func init() {
	rootCmd.AddCommand(deleteDashboardsCmd)
	deleteDashboardsCmd.Flags().BoolVar(&deleteConfirm, "confirm", false, "Delete without prompting")
	deleteDashboardsCmd.Flags().Int("max-concurrent", 10, "Maximum in-flight deletes")
}

func runDeleteDashboards(app *appctx.App, cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	w := cmd.ErrOrStderr()

	dashboards, err := app.Target.ListDashboards(ctx)
	if err != nil {
		return exitError(ExitFailure, err)
	}
	if len(dashboards) == 0 {
		fmt.Fprintln(w, "No dashboards to delete.")
		return nil
	}

	fmt.Fprintf(w, "WARNING: this deletes ALL %s from %s\n\n", plural(len(dashboards), "dashboard"), app.Config.Target.URL)
	for _, d := range dashboards {
		fmt.Fprintf(w, "  - %s (ID: %s)\n", d.Title, d.ID)
	}
	fmt.Fprintln(w)

	if !deleteConfirm {
		fmt.Fprintf(w, "Type '%s' to confirm: ", deleteConfirmPhrase)
		response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if strings.TrimRight(response, "\r\n") != deleteConfirmPhrase {
			fmt.Fprintln(w, "Cancelled.")
			return nil
		}
	}

	result := &bulk.Result{TotalItems: len(dashboards)}
	op := &bulk.Operation{Jobs: app.Config.MaxConcurrentRequests}
	err = op.Execute(ctx, len(dashboards), func(ctx context.Context, i int) error {
		d := dashboards[i]
		if d.ID == "" {
			result.Record(d.String(), fmt.Errorf("dashboard has no id"))
			return nil
		}
		err := app.Target.DeleteDashboard(ctx, d.ID)
		if client.IsFatal(err) {
			return err
		}
		if err == nil {
			app.Logger.Info().Str("dashboard", d.String()).Msg("Deleted dashboard")
		}
		result.Record(d.String(), err)
		return nil
	})
	result.PrintSummary(cmd.OutOrStdout())
	if err != nil {
		return exitError(ExitFailure, err)
	}
	if code := result.ExitCode(); code != ExitOK {
		return exitError(code, fmt.Errorf("%s could not be deleted", plural(result.Failed, "dashboard")))
	}
	return nil
}

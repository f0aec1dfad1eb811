package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past deployments",
	Long: `History lists deployments recorded in the local state store, newest
first, with their terminal state and backup slug.

Examples:
  hadeploy history
  hadeploy history --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var (
	historyLimit int
	historyJSON  bool
)

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of deployments to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	deployments, err := store.ListDeployments(ctx, historyLimit)
	if err != nil {
		return err
	}

	if historyJSON {
		return printJSON(deployments)
	}

	if len(deployments) == 0 {
		fmt.Println("No deployments recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATE\tBACKUP\tDRY RUN\tERROR")
	for _, d := range deployments {
		dryRun := ""
		if d.DryRun {
			dryRun = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.StartedAt.Local().Format(time.RFC3339), d.State, d.BackupSlug, dryRun, d.Error)
	}
	return w.Flush()
}

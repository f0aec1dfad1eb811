package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List backups on the instance",
	Long: `Backups lists the snapshots the instance manages. Deploys reference
these by slug for manual rollback.

Examples:
  hadeploy backups
  hadeploy backups --json`,
	Args: cobra.NoArgs,
	RunE: runBackups,
}

var backupsJSON bool

func init() {
	rootCmd.AddCommand(backupsCmd)

	backupsCmd.Flags().BoolVar(&backupsJSON, "json", false, "output as JSON")
}

func runBackups(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backups, err := newClient(cfg).ListBackups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if backupsJSON {
		return printJSON(backups)
	}

	if len(backups) == 0 {
		fmt.Println("No backups found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tNAME\tDATE\tSIZE (MB)")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\n",
			b.Slug, b.Name, b.Date.Local().Format(time.RFC3339), b.Size)
	}
	return w.Flush()
}

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Check that the instance is responsive",
	Long: `Health-check polls the REST API a bounded number of times with a
fixed wait between attempts and reports healthy on the first well-formed
response. There is no backoff: the instance either comes back within a few
intervals or the check fails.

Examples:
  hadeploy health-check
  hadeploy health-check --wait 10 --attempts 6
  hadeploy health-check --json`,
	Args: cobra.NoArgs,
	RunE: runHealthCheck,
}

var (
	healthWait     int
	healthAttempts int
	healthJSON     bool
)

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().IntVar(&healthWait, "wait", int(health.DefaultInterval/time.Second), "seconds to wait between attempts")
	healthCmd.Flags().IntVar(&healthAttempts, "attempts", health.DefaultAttempts, "maximum number of attempts")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "output as JSON")
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := newClient(cfg)
	checker := health.NewChecker(client, time.Duration(healthWait)*time.Second, healthAttempts)
	report := health.Inspect(ctx, client, checker.Wait(ctx))

	if healthJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else if report.Healthy {
		fmt.Printf("Healthy: %s (attempt %d)\n", report.Message, report.Attempts)
		if report.Version != "" {
			fmt.Printf("Home Assistant %s at %q, state %s\n", report.Version, report.LocationName, report.InstanceState)
		}
	} else {
		fmt.Printf("Unhealthy after %d attempt(s): %s\n", report.Attempts, report.LastError)
		if report.ErrorLogTail != "" {
			fmt.Println("Recent error log:")
			fmt.Println(report.ErrorLogTail)
		}
	}

	if !report.Healthy {
		return stageErr(exitDegraded, apperrors.ErrUnhealthy)
	}
	return nil
}

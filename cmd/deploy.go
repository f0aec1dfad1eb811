package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/notify"
	"github.com/hadeploy/hadeploy/internal/orchestrator"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the local config tree to production",
	Long: `Deploy runs the full pipeline: validate the local tree, push it to
staging, trigger a backup on the instance, sync staging into production
with the protected paths excluded, reload, and wait for the instance to
come back healthy.

Protected paths (.storage/, backups/, secrets.yaml, databases, logs and
caches) are never overwritten.

Examples:
  hadeploy deploy
  hadeploy deploy --dry-run
  hadeploy deploy --no-backup
  hadeploy deploy --json`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

var (
	deployLocalPath     string
	deployDryRun        bool
	deployNoBackup      bool
	deployJSON          bool
	deployBackupTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringVarP(&deployLocalPath, "local-path", "p", "", "path to the local config tree")
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "report what would change without backing up, writing or reloading")
	deployCmd.Flags().BoolVar(&deployNoBackup, "no-backup", false, "skip the backup before deployment (not recommended)")
	deployCmd.Flags().BoolVar(&deployJSON, "json", false, "output as JSON")
	deployCmd.Flags().DurationVar(&deployBackupTimeout, "backup-timeout", orchestrator.DefaultBackupTimeout, "how long to wait for the backup to complete")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Deploys are serialized: two concurrent runs against the same
	// production tree would race.
	lockMgr, err := initLockManager(cfg)
	if err != nil {
		return err
	}
	printVerbose("Acquiring deploy lock...")
	deployLock, err := lockMgr.Acquire(ctx)
	if err != nil {
		if errors.Is(err, apperrors.ErrDeployLocked) {
			return stageErr(exitUsage, err)
		}
		return err
	}
	defer deployLock.Release()

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	tr, shell := newRemote(cfg)
	client := newClient(cfg)

	deployer := orchestrator.NewDeployer(cfg, tr, shell, client).WithHistory(store)
	if webhook := notify.NewWebhook(cfg.WebhookURL); webhook != nil {
		deployer.WithNotifier(webhook)
	}

	onStatus := func(msg string) { fmt.Println(msg) }
	if deployJSON {
		onStatus = func(string) {}
	}

	result := deployer.Deploy(ctx, orchestrator.DeployOptions{
		LocalPath:     deployLocalPath,
		DryRun:        deployDryRun,
		NoBackup:      deployNoBackup,
		BackupTimeout: deployBackupTimeout,
		OnStatus:      onStatus,
		OnVerbose:     func(msg string) { printVerbose("%s", msg) },
	})

	if deployJSON {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printDeployResult(result)
	}

	if code := deployExitCode(result); code != exitOK {
		return stageErr(code, fmt.Errorf("deploy finished in state %s", result.State))
	}
	return nil
}

// printDeployResult renders the human-readable deployment summary.
func printDeployResult(result *orchestrator.DeployResult) {
	fmt.Println()
	fmt.Println("Deployment summary")
	fmt.Println("------------------")

	if result.Validation != nil {
		printStep("Validation", result.Validation.OK(), "")
		for _, f := range result.Validation.YAML.Errors() {
			fmt.Printf("    %s:%d: %s\n", f.File, f.Line, f.Error)
		}
	}

	switch {
	case result.BackupSkip:
		fmt.Println("  Backup:       skipped (--no-backup)")
	case result.BackupSlug != "":
		fmt.Printf("  Backup:       ok (%s)\n", result.BackupSlug)
	case result.DryRun:
		fmt.Println("  Backup:       skipped (dry run)")
	}

	if result.Transfer != nil {
		label := "Transfer"
		if result.DryRun {
			label = "Would transfer"
		}
		fmt.Printf("  %s: %d files, %d deletions\n", label, len(result.Transfer.Transferred), len(result.Transfer.Deleted))
		for _, f := range result.Transfer.Transferred {
			printVerbose("    + %s", f)
		}
		for _, f := range result.Transfer.Deleted {
			printVerbose("    - %s", f)
		}
	}
	if len(result.Excluded) > 0 {
		fmt.Printf("  Excluded:     %d protected paths\n", len(result.Excluded))
		for _, e := range result.Excluded {
			fmt.Printf("    %s (%s)\n", e.Path, e.Pattern)
		}
	}

	if result.CoreCheck != nil {
		switch {
		case result.CoreCheck.Skipped:
			fmt.Printf("  Core check:   skipped (%s)\n", result.CoreCheck.Note)
		default:
			printStep("Core check", result.CoreCheck.OK, result.CoreCheck.Message)
		}
	}

	if result.Reload != nil {
		printStep("Reload", result.Reload.OK(), "")
		for name, msg := range result.Reload.Failed {
			fmt.Printf("    %s: %s\n", name, msg)
		}
	}

	if result.Health != nil {
		detail := fmt.Sprintf("after %d attempt(s)", result.Health.Attempts)
		printStep("Health", result.Health.Healthy, detail)
	}

	fmt.Println()
	switch result.State {
	case orchestrator.StateSucceeded:
		if result.DryRun {
			fmt.Println("DRY RUN OK - no changes made")
		} else {
			fmt.Println("DEPLOYMENT SUCCESSFUL")
		}
	case orchestrator.StateDegraded:
		fmt.Println("DEPLOYMENT DEGRADED - transfer and reload succeeded, health unconfirmed")
	case orchestrator.StateAborted:
		fmt.Printf("DEPLOYMENT ABORTED - %s\n", result.AbortReason)
	default:
		fmt.Printf("DEPLOYMENT FAILED - %s\n", result.Error)
	}
}

func printStep(name string, ok bool, detail string) {
	status := "ok"
	if !ok {
		status = "FAILED"
	}
	if detail != "" {
		fmt.Printf("  %-13s %s (%s)\n", name+":", status, detail)
	} else {
		fmt.Printf("  %-13s %s\n", name+":", status)
	}
}

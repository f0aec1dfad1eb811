package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/orchestrator"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the local config tree",
	Long: `Validate parses every YAML file in the local config tree, tolerating
the Home Assistant custom tags (!include, !secret, !env_var), and reports
syntax errors with file and line. Unless --skip-push is given, the tree is
then pushed to the staging directory on the instance so a remote check sees
exactly what a deploy would ship.

Examples:
  hadeploy validate
  hadeploy validate --skip-push
  hadeploy validate --local-path ~/ha-config --json`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

var (
	validateLocalPath string
	validateSkipPush  bool
	validateJSON      bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateLocalPath, "local-path", "p", "", "path to the local config tree")
	validateCmd.Flags().BoolVar(&validateSkipPush, "skip-push", false, "validate locally only, skip the staging push")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "output as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tr, _ := newRemote(cfg)
	validator := orchestrator.NewValidator(cfg, tr)

	onStatus := func(msg string) { fmt.Println(msg) }
	if validateJSON {
		onStatus = func(string) {}
	}

	result, err := validator.Run(ctx, orchestrator.ValidateOptions{
		LocalPath: validateLocalPath,
		SkipPush:  validateSkipPush,
		OnStatus:  onStatus,
		OnVerbose: func(msg string) { printVerbose("%s", msg) },
	})
	if err != nil && result == nil {
		return err
	}

	if validateJSON {
		if err := printJSON(result); err != nil {
			return err
		}
	} else if result.OK() {
		fmt.Printf("Validation passed (%d files checked)\n", result.YAML.Checked)
	}

	switch {
	case !result.YAML.Valid:
		return stageErr(exitValidation, apperrors.ErrYAMLSyntax)
	case result.PushErr != "":
		return stageErr(exitConnectivity, apperrors.ErrStagingPushFailed)
	}
	return nil
}

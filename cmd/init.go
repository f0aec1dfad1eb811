package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hadeploy/hadeploy/internal/bootstrap"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the local config tree from the instance",
	Long: `Init pulls the current production configuration into the local tree
(excluding protected paths), writes a Home-Assistant-aware .gitignore and
creates an initial git commit.

Examples:
  hadeploy init
  hadeploy init --path ~/my-ha-config
  hadeploy init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initPath  string
	initForce bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initPath, "path", "", "where to create the local config tree")
	initCmd.Flags().BoolVar(&initForce, "force", false, "bootstrap into a non-empty directory")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	localPath := initPath
	if localPath == "" {
		localPath = cfg.LocalPath
	}

	tr, shell := newRemote(cfg)
	err = bootstrap.Run(ctx, tr, shell, bootstrap.Options{
		LocalPath: localPath,
		Force:     initForce,
		OnStatus:  func(msg string) { fmt.Println(msg) },
	})
	if err != nil {
		return err
	}

	fmt.Printf("Local config tree ready at %s\n", localPath)
	fmt.Println("Edit, then run: hadeploy validate && hadeploy deploy")
	return nil
}

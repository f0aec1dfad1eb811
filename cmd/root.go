// Package cmd provides the hadeploy CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hadeploy/hadeploy/internal/config"
	"github.com/hadeploy/hadeploy/internal/hass"
	"github.com/hadeploy/hadeploy/internal/lock"
	"github.com/hadeploy/hadeploy/internal/logging"
	"github.com/hadeploy/hadeploy/internal/state"
	"github.com/hadeploy/hadeploy/internal/transfer"
)

// Version is the current version of hadeploy.
// Can be overridden at build time: go build -ldflags "-X github.com/hadeploy/hadeploy/cmd.Version=v1.0.0"
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hadeploy",
	Short: "Safe config deployment for Home Assistant",
	Long: `hadeploy manages a locally edited Home Assistant configuration tree:
bootstrap it from the running instance, validate it, and deploy it with a
backup-first, protected-file-aware pipeline (validate, backup, transfer,
reload, health check).

Device registries, auth storage, secrets and databases are never
overwritten by a deploy.`,
	Version: Version,
}

// Execute runs the root command with signal-driven cancellation and maps
// stage errors to their exit codes.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, shutting down...\n", sig)
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var stageErr *stageError
		if errors.As(err, &stageErr) {
			os.Exit(stageErr.code)
		}
		os.Exit(exitUsage)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hadeploy/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default is $HOME/.hadeploy)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		configDir := filepath.Join(home, ".hadeploy")
		viper.AddConfigPath(configDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("HADEPLOY")
	viper.AutomaticEnv()
	config.BindLegacyEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	logging.SetVerbose(isVerbose())
}

// loadConfig resolves and validates the full configuration once; every
// component receives the resulting struct instead of reading the
// environment itself.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRemote builds the transfer and shell capabilities for cfg.
func newRemote(cfg *config.Config) (transfer.Transfer, transfer.RemoteShell) {
	shell := transfer.NewSSH(cfg.SSHHost)
	return transfer.NewRsync(cfg.SSHHost, cfg.StagingPath, cfg.ProductionPath, shell), shell
}

// newClient builds the API client for cfg.
func newClient(cfg *config.Config) *hass.Client {
	return hass.New(cfg.APIURL, cfg.APIToken, cfg.APITimeout)
}

// initStore opens the deployment history store.
func initStore(cfg *config.Config) (*state.Store, error) {
	store, err := state.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return store, nil
}

// initLockManager returns the deploy lock manager.
func initLockManager(cfg *config.Config) (*lock.Manager, error) {
	manager, err := lock.NewManager(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lock manager: %w", err)
	}
	return manager, nil
}

// isVerbose returns true if verbose output is enabled.
func isVerbose() bool {
	return verbose || viper.GetBool("verbose")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if isVerbose() {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

// printJSON writes v as indented JSON on stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

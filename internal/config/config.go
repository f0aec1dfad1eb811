// Package config loads and validates hadeploy configuration.
//
// Configuration is resolved once at process start into a Config value that
// is passed into each component; nothing else reads the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
)

// Defaults for optional settings.
const (
	DefaultProductionPath = "/homeassistant"
	DefaultStagingPath    = "/homeassistant/config_staging"
	DefaultLocalPath      = "~/ha-config"
	DefaultAPITimeout     = 120 * time.Second
)

// Config holds every setting the workflow needs.
type Config struct {
	// APIURL is the base URL of the Home Assistant instance,
	// e.g. http://homeassistant.local:8123.
	APIURL string

	// APIToken is a long-lived access token for the REST API.
	APIToken string

	// SSHHost is the ssh destination for transfers, e.g. root@homeassistant.local.
	SSHHost string

	// ProductionPath is the live config directory on the remote host.
	ProductionPath string

	// StagingPath is the remote scratch directory used for validation.
	StagingPath string

	// LocalPath is the local config tree (tilde-expanded).
	LocalPath string

	// DataDir holds the lock files and the deployment history database.
	DataDir string

	// WebhookURL, when set, receives a JSON notification after each deploy.
	WebhookURL string

	// APITimeout bounds every REST call.
	APITimeout time.Duration
}

// legacy environment names recognized alongside the HADEPLOY_ prefix,
// matching the variables the shell tooling historically used.
var legacyEnvBindings = map[string]string{
	"api-url":         "HOMEASSISTANT_URL",
	"api-token":       "HOMEASSISTANT_TOKEN",
	"ssh-host":        "HA_SSH_HOST",
	"production-path": "HA_CONFIG_PATH",
	"staging-path":    "HA_STAGING_PATH",
	"local-path":      "HA_LOCAL_CONFIG",
}

// BindLegacyEnv registers the legacy environment variable names on v.
func BindLegacyEnv(v *viper.Viper) {
	for key, env := range legacyEnvBindings {
		v.BindEnv(key, env) //nolint:errcheck // only errors on empty key
	}
}

// Load resolves a Config from the given viper instance and validates it.
// Every missing required field is reported in a single error.
func Load(v *viper.Viper) (*Config, error) {
	v.SetDefault("production-path", DefaultProductionPath)
	v.SetDefault("staging-path", DefaultStagingPath)
	v.SetDefault("local-path", DefaultLocalPath)
	v.SetDefault("api-timeout", DefaultAPITimeout)

	cfg := &Config{
		APIURL:         strings.TrimRight(v.GetString("api-url"), "/"),
		APIToken:       v.GetString("api-token"),
		SSHHost:        v.GetString("ssh-host"),
		ProductionPath: v.GetString("production-path"),
		StagingPath:    v.GetString("staging-path"),
		LocalPath:      v.GetString("local-path"),
		DataDir:        v.GetString("data-dir"),
		WebhookURL:     v.GetString("webhook-url"),
		APITimeout:     v.GetDuration("api-timeout"),
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "~/.hadeploy"
	}

	var err error
	if cfg.LocalPath, err = homedir.Expand(cfg.LocalPath); err != nil {
		return nil, fmt.Errorf("failed to expand local path: %w", err)
	}
	if cfg.DataDir, err = homedir.Expand(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("failed to expand data dir: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and reports every missing one at once.
func (c *Config) Validate() error {
	var missing []string

	if c.APIURL == "" {
		missing = append(missing, "api-url (HOMEASSISTANT_URL)")
	}
	if c.APIToken == "" {
		missing = append(missing, "api-token (HOMEASSISTANT_TOKEN)")
	}
	if c.SSHHost == "" {
		missing = append(missing, "ssh-host (HA_SSH_HOST)")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrMissingConfig, strings.Join(missing, ", "))
	}

	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return errors.New("api-url must start with http:// or https://")
	}

	return nil
}

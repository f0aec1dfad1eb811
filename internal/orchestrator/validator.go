// Package orchestrator sequences the config deployment workflow:
// validate, backup, transfer, reload, health check.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/hadeploy/hadeploy/internal/config"
	"github.com/hadeploy/hadeploy/internal/transfer"
	"github.com/hadeploy/hadeploy/internal/validate"
)

// ValidateOptions controls a validation run.
type ValidateOptions struct {
	LocalPath string
	SkipPush  bool

	OnStatus  func(msg string)
	OnVerbose func(msg string)
}

// ValidationResult is the outcome of a validation run.
type ValidationResult struct {
	YAML    validate.TreeResult `json:"yaml"`
	Pushed  bool                `json:"pushed"`
	PushErr string              `json:"push_error,omitempty"`
}

// OK reports whether validation passed end to end.
func (r ValidationResult) OK() bool {
	return r.YAML.Valid && (r.PushErr == "")
}

// Validator checks a local tree and pushes it to staging.
type Validator struct {
	cfg      *config.Config
	transfer transfer.Transfer
}

// NewValidator creates a Validator.
func NewValidator(cfg *config.Config, tr transfer.Transfer) *Validator {
	return &Validator{cfg: cfg, transfer: tr}
}

// Run parses every YAML file in the tree and, unless SkipPush is set,
// pushes the tree to staging and copies secrets alongside it. A local
// syntax error stops the run before any remote write.
func (v *Validator) Run(ctx context.Context, opts ValidateOptions) (*ValidationResult, error) {
	onStatus := opts.OnStatus
	if onStatus == nil {
		onStatus = func(string) {}
	}
	onVerbose := opts.OnVerbose
	if onVerbose == nil {
		onVerbose = func(string) {}
	}

	localPath := opts.LocalPath
	if localPath == "" {
		localPath = v.cfg.LocalPath
	}

	onStatus(fmt.Sprintf("Validating YAML in %s...", localPath))
	tree, err := validate.Tree(localPath)
	if err != nil {
		return nil, err
	}

	result := &ValidationResult{YAML: tree}
	onVerbose(fmt.Sprintf("Checked %d files", tree.Checked))

	if !tree.Valid {
		for _, f := range tree.Errors() {
			onStatus(fmt.Sprintf("  %s:%d: %s", f.File, f.Line, f.Error))
		}
		return result, nil
	}

	if opts.SkipPush {
		onVerbose("Skipping staging push")
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	onStatus(fmt.Sprintf("Pushing config to staging on %s...", v.cfg.SSHHost))
	if err := v.transfer.PushStaging(ctx, localPath); err != nil {
		result.PushErr = err.Error()
		return result, err
	}
	result.Pushed = true

	// Staging wants a complete tree for remote validation, so the
	// production secrets file is copied next to it.
	onVerbose("Copying secrets.yaml from production to staging...")
	if err := v.transfer.CopySecrets(ctx); err != nil {
		onVerbose(fmt.Sprintf("Warning: failed to copy secrets to staging: %v", err))
	}

	return result, nil
}

package cmd

import (
	"github.com/hadeploy/hadeploy/internal/orchestrator"
)

// Exit codes identify the stage that failed so scripts can react without
// parsing output.
const (
	exitOK           = 0
	exitUsage        = 1 // usage, configuration or internal error
	exitValidation   = 2 // local YAML or remote core check failed
	exitConnectivity = 3 // staging push or remote host unreachable
	exitBackup       = 4 // backup refused or timed out
	exitTransfer     = 5 // production transfer failed
	exitReload       = 6 // reload reported errors
	exitDegraded     = 7 // transfer and reload succeeded, health unconfirmed
)

// stageError carries an exit code through cobra's error return.
type stageError struct {
	code int
	err  error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func stageErr(code int, err error) error {
	return &stageError{code: code, err: err}
}

// deployExitCode maps a terminal deploy result to its exit code.
func deployExitCode(result *orchestrator.DeployResult) int {
	switch result.State {
	case orchestrator.StateSucceeded:
		return exitOK
	case orchestrator.StateDegraded:
		return exitDegraded
	case orchestrator.StateAborted:
		switch {
		case result.Validation == nil || !result.Validation.YAML.Valid:
			return exitValidation
		case result.Validation.PushErr != "":
			return exitConnectivity
		case result.Error != "":
			return exitBackup
		default:
			// Validation passed and no stage recorded an error: the run
			// was interrupted (signal) before any production write.
			return exitUsage
		}
	case orchestrator.StateFailed:
		switch {
		case result.Transfer == nil:
			return exitTransfer
		case result.Reload != nil && !result.Reload.OK():
			return exitReload
		case result.CoreCheck != nil && !result.CoreCheck.Skipped && !result.CoreCheck.OK:
			return exitValidation
		default:
			return exitTransfer
		}
	}
	return exitUsage
}

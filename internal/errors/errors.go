// Package errors provides sentinel errors for hadeploy operations.
package errors

import "errors"

// Configuration errors
var (
	// ErrMissingConfig indicates one or more required configuration values are not set.
	ErrMissingConfig = errors.New("missing required configuration")

	// ErrConfigPathNotFound indicates the local config tree does not exist.
	ErrConfigPathNotFound = errors.New("local config path does not exist")
)

// Validation errors
var (
	// ErrYAMLSyntax indicates at least one YAML file failed to parse.
	ErrYAMLSyntax = errors.New("yaml syntax errors found")
)

// Remote errors
var (
	// ErrRsyncNotFound indicates the rsync CLI is not available.
	ErrRsyncNotFound = errors.New("rsync command not found")

	// ErrSSHNotFound indicates the ssh CLI is not available.
	ErrSSHNotFound = errors.New("ssh command not found")

	// ErrStagingPushFailed indicates the push to the staging tree failed.
	ErrStagingPushFailed = errors.New("failed to push config to staging")

	// ErrTransferFailed indicates the staging to production transfer failed.
	ErrTransferFailed = errors.New("failed to transfer config to production")

	// ErrRemoteUnreachable indicates the remote host could not be reached.
	ErrRemoteUnreachable = errors.New("remote host unreachable")
)

// Backup errors
var (
	// ErrBackupFailed indicates the backup service call failed.
	ErrBackupFailed = errors.New("backup request failed")

	// ErrBackupTimeout indicates no new backup appeared within the wait bound.
	ErrBackupTimeout = errors.New("backup did not complete in time")
)

// Reload and health errors
var (
	// ErrReloadFailed indicates one or more reload services returned an error.
	ErrReloadFailed = errors.New("reload failed")

	// ErrUnhealthy indicates the health check bound was exhausted.
	ErrUnhealthy = errors.New("service did not become healthy")
)

// Deployment errors
var (
	// ErrDeployLocked indicates another deploy is in progress.
	ErrDeployLocked = errors.New("deploy is locked by another operation")

	// ErrDeploymentNotFound indicates the requested deployment record does not exist.
	ErrDeploymentNotFound = errors.New("deployment not found")
)

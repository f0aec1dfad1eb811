// Package health confirms the remote service is responsive after a reload.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/hadeploy/hadeploy/internal/errors"
	"github.com/hadeploy/hadeploy/internal/hass"
	"github.com/hadeploy/hadeploy/internal/logging"
)

// Defaults for the bounded poll. There is deliberately no backoff curve:
// the service either comes back within a few fixed intervals or the deploy
// is reported Degraded for the operator to inspect.
const (
	DefaultInterval = 5 * time.Second
	DefaultAttempts = 5
)

// Pinger is the probe the checker polls. *hass.Client satisfies it.
type Pinger interface {
	CheckAPI(ctx context.Context) (*hass.APIStatus, error)
}

// Inspector supplies the instance details a Report is enriched with.
// *hass.Client satisfies it.
type Inspector interface {
	GetConfig(ctx context.Context) (*hass.InstanceConfig, error)
	GetErrorLog(ctx context.Context) (string, error)
}

// Result is the outcome of a health check.
type Result struct {
	Healthy   bool   `json:"healthy"`
	Attempts  int    `json:"attempts"`
	Message   string `json:"message,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// Report is a Result enriched with instance details: configuration facts
// when healthy, the tail of the error log when not.
type Report struct {
	Result
	Version       string `json:"version,omitempty"`
	LocationName  string `json:"location_name,omitempty"`
	InstanceState string `json:"instance_state,omitempty"`
	ErrorLogTail  string `json:"error_log_tail,omitempty"`
}

// errorLogTailLines bounds how much of the error log a Report carries.
const errorLogTailLines = 20

// Inspect enriches result with instance details. Inspection failures are
// swallowed: they never change the health verdict.
func Inspect(ctx context.Context, insp Inspector, result Result) Report {
	report := Report{Result: result}

	if result.Healthy {
		cfg, err := insp.GetConfig(ctx)
		if err != nil {
			logging.Debug("health").Err(err).Msg("instance config unavailable")
			return report
		}
		report.Version = cfg.Version
		report.LocationName = cfg.LocationName
		report.InstanceState = cfg.State
		return report
	}

	log, err := insp.GetErrorLog(ctx)
	if err != nil {
		logging.Debug("health").Err(err).Msg("error log unavailable")
		return report
	}
	report.ErrorLogTail = tail(log, errorLogTailLines)
	return report
}

// tail returns the last n non-empty-trimmed lines of s.
func tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// Checker polls a Pinger a bounded number of times.
type Checker struct {
	pinger   Pinger
	interval time.Duration
	attempts int
}

// NewChecker creates a Checker. Non-positive interval or attempts select
// the defaults.
func NewChecker(pinger Pinger, interval time.Duration, attempts int) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Checker{pinger: pinger, interval: interval, attempts: attempts}
}

// Wait polls until the service answers well-formed, the attempt bound is
// exhausted, or ctx is cancelled. The first attempt runs immediately.
func (c *Checker) Wait(ctx context.Context) Result {
	result := Result{}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		result.Attempts = attempt

		status, err := c.pinger.CheckAPI(ctx)
		if err == nil {
			result.Healthy = true
			result.Message = status.Message
			return result
		}
		result.LastError = err.Error()
		logging.Debug("health").Int("attempt", attempt).Err(err).Msg("health probe failed")

		if ctx.Err() != nil {
			result.LastError = fmt.Sprintf("cancelled: %v", ctx.Err())
			return result
		}
		if attempt == c.attempts {
			break
		}

		select {
		case <-ctx.Done():
			result.LastError = fmt.Sprintf("cancelled: %v", ctx.Err())
			return result
		case <-time.After(c.interval):
		}
	}

	if result.LastError == "" {
		result.LastError = apperrors.ErrUnhealthy.Error()
	}
	return result
}

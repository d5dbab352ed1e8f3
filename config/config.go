// Package config defines the workflow configuration and its loaders. The
// admission threshold, confidence band, and severity thresholds are
// data-derived constants and must be supplied explicitly; the package refuses
// to invent defaults for them.
package config

import (
	"fmt"
	"time"

	"github.com/deepnoodle-ai/triage"
)

// TraceBackend selects where trace events and checkpoints are persisted.
type TraceBackend string

const (
	TraceBackendFile   TraceBackend = "file"
	TraceBackendSQLite TraceBackend = "sqlite"
	TraceBackendNone   TraceBackend = "none"
)

// Config holds every tunable of a workflow run.
type Config struct {
	// AdmissionThreshold is T: fused probability at or above it means admit.
	AdmissionThreshold *float64 `json:"admission_threshold" yaml:"admission_threshold"`

	// ConfidenceBand is the symmetric tolerance around the threshold within
	// which the fused probability is too uncertain to decide unaided.
	ConfidenceBand *float64 `json:"confidence_band" yaml:"confidence_band"`

	// RiskAdjustedBand widens the band by up to 50% for high-risk patients.
	RiskAdjustedBand bool `json:"risk_adjusted_band,omitempty" yaml:"risk_adjusted_band,omitempty"`

	// MaxAttempts bounds retries of transient predictor failures per node.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`

	// RetryBaseWait is the initial backoff wait between attempts.
	RetryBaseWait time.Duration `json:"retry_base_wait,omitempty" yaml:"retry_base_wait,omitempty"`

	// ReviewTimeout bounds the wait for human input when a review channel is
	// configured. Zero means the channel decides.
	ReviewTimeout time.Duration `json:"review_timeout,omitempty" yaml:"review_timeout,omitempty"`

	Severity triage.SeverityThresholds `json:"severity" yaml:"severity"`

	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	Trace TraceConfig `json:"trace,omitempty" yaml:"trace,omitempty"`
}

// TraceConfig selects the trace store backend.
type TraceConfig struct {
	Backend TraceBackend `json:"backend,omitempty" yaml:"backend,omitempty"`
	Path    string       `json:"path,omitempty" yaml:"path,omitempty"`
}

// Validate checks the configuration contract. Violations are fatal: a run
// never starts with a malformed configuration.
func (c *Config) Validate() error {
	if c.AdmissionThreshold == nil {
		return triage.NewFatalError(fmt.Errorf("admission_threshold is required"))
	}
	if *c.AdmissionThreshold <= 0 || *c.AdmissionThreshold >= 1 {
		return triage.NewFatalError(fmt.Errorf("admission_threshold must be in (0, 1), got %v", *c.AdmissionThreshold))
	}
	if c.ConfidenceBand == nil {
		return triage.NewFatalError(fmt.Errorf("confidence_band is required"))
	}
	if *c.ConfidenceBand <= 0 || *c.ConfidenceBand >= 0.5 {
		return triage.NewFatalError(fmt.Errorf("confidence_band must be in (0, 0.5), got %v", *c.ConfidenceBand))
	}
	if c.MaxAttempts < 0 {
		return triage.NewFatalError(fmt.Errorf("max_attempts cannot be negative"))
	}
	if err := c.Severity.Validate(); err != nil {
		return triage.NewFatalError(err)
	}
	switch c.Trace.Backend {
	case "", TraceBackendNone:
	case TraceBackendFile, TraceBackendSQLite:
		if c.Trace.Path == "" {
			return triage.NewFatalError(fmt.Errorf("trace backend %q requires a path", c.Trace.Backend))
		}
	default:
		return triage.NewFatalError(fmt.Errorf("unknown trace backend %q", c.Trace.Backend))
	}
	return nil
}

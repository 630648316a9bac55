package domain

import (
	"context"
	"errors"
	"time"
)

// RunErrorKind is a high-level classification of runtime errors.
type RunErrorKind string

const (
	RunErrorUnknown  RunErrorKind = "unknown"
	RunErrorTimeout  RunErrorKind = "timeout"
	RunErrorNotFound RunErrorKind = "not_found"
	RunErrorExit     RunErrorKind = "exit"
	RunErrorCanceled RunErrorKind = "canceled"
)

// RunError represents a structured error produced by a command runner.
type RunError struct {
	Kind    RunErrorKind
	Message string
}

// NewRunError classifies err into a RunError. Runners that know better
// (exit status, missing binary) construct RunError directly.
func NewRunError(err error) *RunError {
	if err == nil {
		return nil
	}

	kind := RunErrorUnknown
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = RunErrorTimeout
	case errors.Is(err, context.Canceled):
		kind = RunErrorCanceled
	}

	return &RunError{Kind: kind, Message: err.Error()}
}

// JobStatus is the terminal state of a matrix job.
type JobStatus string

const (
	JobPassed   JobStatus = "passed"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// CommandResult is the outcome of a single shell command.
type CommandResult struct {
	Command    Command
	ExitCode   int
	DurationMS int64

	// Output is combined stdout+stderr, bounded by the runner.
	Output    []byte
	Truncated bool

	Error *RunError
}

// Failed reports whether the command ended in error or non-zero exit.
func (c CommandResult) Failed() bool {
	return c.Error != nil || c.ExitCode != 0
}

// PhaseResult groups the command results of one phase.
type PhaseResult struct {
	Phase    PhaseName
	Commands []CommandResult
}

// Failed reports whether any command in the phase failed.
func (p PhaseResult) Failed() bool {
	for _, c := range p.Commands {
		if c.Failed() {
			return true
		}
	}
	return false
}

// CheckResult is the output of a single report check.
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
}

// ExtractResult reports whether a report extraction rule succeeded.
type ExtractResult struct {
	Name    string
	Success bool
	Message string
}

// UploadResult records one artifact upload attempt (image or coverage).
type UploadResult struct {
	Path    string
	URL     string
	Success bool
	Message string
}

// JobResult represents the outcome of one expanded matrix job.
type JobResult struct {
	Name    string
	Runtime string
	Env     Vars

	Status     JobStatus
	StartedAt  time.Time
	FinishedAt time.Time

	Phases   []PhaseResult
	Checks   []CheckResult
	Extracts []ExtractResult

	// Extracted holds values pulled from report files (e.g. coverage percent).
	Extracted Vars

	Uploads []UploadResult
}

// RunArtifact represents a persisted run for reproducibility.
type RunArtifact struct {
	ID string

	PipelineName    string
	PipelinePath    string
	EnvironmentName string

	StartedAt  time.Time
	FinishedAt time.Time

	Jobs []JobResult
}

// FailedJobs counts the jobs that did not pass.
func (r RunArtifact) FailedJobs() int {
	n := 0
	for _, j := range r.Jobs {
		if j.Status != JobPassed {
			n++
		}
	}
	return n
}

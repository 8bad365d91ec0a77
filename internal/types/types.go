// Package types holds the data model shared across the execution engine:
// the request/result shapes that cross component boundaries.
package types

import "time"

// ExecutionStatus classifies the outcome of one execution.
type ExecutionStatus string

const (
	StatusSuccess             ExecutionStatus = "Success"
	StatusRuntimeError        ExecutionStatus = "RuntimeError"
	StatusCompilationError    ExecutionStatus = "CompilationError"
	StatusTimeout             ExecutionStatus = "Timeout"
	StatusMemoryLimitExceeded ExecutionStatus = "MemoryLimitExceeded"
	StatusValidationRejected  ExecutionStatus = "ValidationRejected"
	StatusInternalError       ExecutionStatus = "InternalError"
)

// Size and timing bounds from the request/response contract.
const (
	MaxSourceBytes = 50_000
	MaxStdinBytes  = 10_000
	MaxOutputBytes = 100_000

	MinWallTimeoutMs = 1_000
	MaxWallTimeoutMs = 60_000

	TeardownGraceMs = 5_000
)

// Limits is the fully-resolved set of resource caps for one run, after
// merging language defaults with any caller override.
type Limits struct {
	MemoryBytes    int64
	CPUFraction    float64
	PidsLimit      int64
	WallTimeoutMs  int64
	MaxOutputBytes int64
}

// LimitsOverride is the caller-supplied subset of limits. Only bounded
// overrides are honored; zero values mean "use the language default".
type LimitsOverride struct {
	WallTimeoutMs int64   `json:"wallTimeoutMs,omitempty" validate:"omitempty,min=1000,max=60000"`
	MemoryBytes   int64   `json:"memoryBytes,omitempty" validate:"omitempty,min=1"`
	CPUFraction   float64 `json:"cpuFraction,omitempty" validate:"omitempty,gt=0"`
}

// ExecutionRequest is the input to Execute.
type ExecutionRequest struct {
	Language string          `json:"language" validate:"required"`
	Source   string          `json:"source" validate:"required,max=50000"`
	Stdin    string          `json:"stdin" validate:"max=10000"`
	Limits   *LimitsOverride `json:"limits,omitempty" validate:"omitempty"`
}

// ExecutionResult is the output of Execute.
type ExecutionResult struct {
	ExecutionID     string          `json:"executionId"`
	Status          ExecutionStatus `json:"status"`
	Stdout          string          `json:"stdout"`
	Stderr          string          `json:"stderr"`
	ExitCode        int             `json:"exitCode"`
	WallTimeMs      int64           `json:"wallTimeMs"`
	PeakMemoryBytes *int64          `json:"peakMemoryBytes,omitempty"`
	Violations      []string        `json:"violations,omitempty"`
}

// InvocationContext carries caller identity/address for the metadata sink.
// It has no bearing on execution semantics; it is passed through verbatim.
type InvocationContext struct {
	CallerID   string
	RemoteAddr string
}

// MetadataSink is called once per execution with the final result. A sink
// failure must never fail the execution it describes.
type MetadataSink func(ctx InvocationContext, result *ExecutionResult)

// TerminationCause explains why a sandbox stopped.
type TerminationCause string

const (
	CauseExited          TerminationCause = "exited"
	CauseKilledByTimeout TerminationCause = "killedByTimeout"
	CauseKilledByMemory  TerminationCause = "killedByMemory"
	CauseInternalFailure TerminationCause = "internalFailure"
)

// RawOutcome is what the Sandbox Supervisor hands back to the Result
// Normalizer, before status classification and redaction.
type RawOutcome struct {
	Stdout           string
	Stderr           string
	ExitCode         int
	WallTime         time.Duration
	PeakMemoryBytes  *int64
	TerminationCause TerminationCause
	InternalErr      error
}

// SandboxState tracks the lifecycle of one live container.
type SandboxState string

const (
	SandboxCreating   SandboxState = "creating"
	SandboxRunning    SandboxState = "running"
	SandboxTerminated SandboxState = "terminated"
	SandboxReaped     SandboxState = "reaped"
)

// Package orchestrator implements the Execution Orchestrator: the engine's
// single public entry point. It wires Screener -> Workspace Manager ->
// Sandbox Supervisor -> Result Normalizer, generates execution IDs, and
// enforces MAX_CONCURRENT_EXECUTIONS via a weighted semaphore.
//
// Concurrency limiting is grounded on other_examples'
// backend-internal-sandbox-runtime_manager.go (RuntimeSandboxManager using
// golang.org/x/sync/semaphore.Weighted directly around Acquire/Release).
// Execution-ID generation combines a monotonic timestamp with a uuid-backed
// random suffix ("exec_" + monotonic_ts + "_" + 16 hex), so IDs sort
// roughly in issue order for log correlation while still drawing their
// entropy from the same source the rest of the codebase would for any
// other generated identifier.
package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"execengine/internal/logging"
	"execengine/internal/normalizer"
	"execengine/internal/registry"
	"execengine/internal/screener"
	"execengine/internal/types"
	"execengine/internal/workspace"
)

// Supervisor is the subset of sandbox.Supervisor the orchestrator depends
// on. Defined here so tests can substitute a fake in-process runner instead
// of a live Docker daemon.
type Supervisor interface {
	Run(ctx context.Context, executionID string, spec registry.LanguageSpec, ws *workspace.Workspace, lim types.Limits) (types.RawOutcome, error)
	Kill(ctx context.Context, executionID string) error
	ActiveCount() int
}

// Orchestrator is the engine's public entry point.
type Orchestrator struct {
	registry   *registry.Registry
	screener   *screener.Screener
	workspaces *workspace.Manager
	supervisor Supervisor

	sem *semaphore.Weighted

	metadataSink types.MetadataSink

	monotonic int64 // last-issued timestamp, for execution-ID uniqueness
}

// New wires the six components into one Orchestrator.
func New(reg *registry.Registry, scr *screener.Screener, wsMgr *workspace.Manager, sup Supervisor, maxConcurrent int64, sink types.MetadataSink) *Orchestrator {
	return &Orchestrator{
		registry:     reg,
		screener:     scr,
		workspaces:   wsMgr,
		supervisor:   sup,
		sem:          semaphore.NewWeighted(maxConcurrent),
		metadataSink: sink,
	}
}

// Execute runs one request end to end, guaranteeing workspace and sandbox
// cleanup on every exit path, including the validation-rejected and
// internal-error paths.
func (o *Orchestrator) Execute(ctx context.Context, req types.ExecutionRequest, invocation types.InvocationContext) types.ExecutionResult {
	executionID := o.newExecutionID()
	log := logging.ForExecution(executionID)
	start := time.Now()

	result := o.execute(ctx, executionID, req, log, start)

	if o.metadataSink != nil {
		o.safeSink(invocation, &result)
	}
	return result
}

func (o *Orchestrator) execute(ctx context.Context, executionID string, req types.ExecutionRequest, log *zap.Logger, start time.Time) types.ExecutionResult {
	if v := validateBounds(req); v != nil {
		return types.ExecutionResult{ExecutionID: executionID, Status: types.StatusValidationRejected, Violations: v}
	}

	verdict := o.screener.Screen(req.Language, req.Source)
	if !verdict.Accepted {
		return types.ExecutionResult{ExecutionID: executionID, Status: types.StatusValidationRejected, Violations: verdict.Violations}
	}

	spec, err := o.registry.Lookup(req.Language)
	if err != nil {
		return types.ExecutionResult{ExecutionID: executionID, Status: types.StatusValidationRejected, Violations: []string{"unsupported-language:" + req.Language}}
	}

	lim := resolveLimits(spec, req.Limits)

	if err := o.sem.Acquire(ctx, 1); err != nil {
		log.Warn("semaphore acquire failed", zap.Error(err))
		return types.ExecutionResult{ExecutionID: executionID, Status: types.StatusInternalError, Stderr: "executor at capacity"}
	}
	defer o.sem.Release(1)

	filename := spec.SourceFilename(verdict.SanitizedSource)
	ws, err := o.workspaces.Create(executionID, filename, verdict.SanitizedSource)
	if err != nil {
		log.Error("workspace create failed", zap.Error(err))
		return types.ExecutionResult{ExecutionID: executionID, Status: types.StatusInternalError, Stderr: "workspace allocation failed"}
	}
	defer func() {
		if destroyErr := o.workspaces.Destroy(ws); destroyErr != nil {
			log.Warn("workspace destroy failed", zap.Error(destroyErr))
		}
	}()

	if err := o.workspaces.WriteStdin(ws, req.Stdin); err != nil {
		log.Error("workspace stdin write failed", zap.Error(err))
		return types.ExecutionResult{ExecutionID: executionID, Status: types.StatusInternalError, Stderr: "workspace allocation failed"}
	}

	outcome, err := o.supervisor.Run(ctx, executionID, spec, ws, lim)
	if err != nil {
		log.Error("sandbox run failed", zap.Error(err))
		return types.ExecutionResult{ExecutionID: executionID, Status: types.StatusInternalError, Stderr: "sandbox execution failed"}
	}

	norm := normalizer.New(int(lim.MaxOutputBytes), filename, spec.SupportsCompile)
	result := norm.Normalize(executionID, outcome)
	result.WallTimeMs = time.Since(start).Milliseconds()
	return result
}

// Kill force-terminates a live execution's container. It reports false only
// when the supervisor's Kill call errors; killing an execution that has
// already finished (or never existed) is a supervisor no-op and is reported
// as true.
func (o *Orchestrator) Kill(ctx context.Context, executionID string) (terminated bool) {
	if err := o.supervisor.Kill(ctx, executionID); err != nil {
		return false
	}
	return true
}

// Health reports how many sandboxes are currently live. RuntimeReachable is
// always true: the orchestrator does not probe the container runtime.
type Health struct {
	RuntimeReachable   bool
	ActiveSandboxCount int
}

func (o *Orchestrator) Health(ctx context.Context) Health {
	return Health{
		RuntimeReachable:   true,
		ActiveSandboxCount: o.supervisor.ActiveCount(),
	}
}

func (o *Orchestrator) safeSink(invocation types.InvocationContext, result *types.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.ForExecution(result.ExecutionID).Error("metadata sink panicked", zap.Any("recover", r))
		}
	}()
	o.metadataSink(invocation, result)
}

// newExecutionID renders "exec_<monotonic_ts>_<16 hex random>". The
// timestamp is forced monotonic within this process by never issuing one
// earlier than the last, even if the wall clock moves backward.
func (o *Orchestrator) newExecutionID() string {
	var ts int64
	for {
		last := atomic.LoadInt64(&o.monotonic)
		ts = time.Now().UnixNano()
		if ts <= last {
			ts = last + 1
		}
		if atomic.CompareAndSwapInt64(&o.monotonic, last, ts) {
			break
		}
	}

	id := uuid.New()
	return fmt.Sprintf("exec_%d_%s", ts, hex.EncodeToString(id[:8]))
}

// validateBounds runs the struct-tag bounds through validator.v10 first
// (required fields, max lengths, range checks) and then layers on the
// checks the tag system can't express: NUL bytes anywhere in source/stdin,
// and a timeout override outside the allowed range.
func validateBounds(req types.ExecutionRequest) []string {
	var violations []string
	if err := req.Validate(); err != nil {
		for _, tag := range fieldErrorTags(err) {
			violations = append(violations, tag)
		}
	}
	if containsNUL(req.Source) || containsNUL(req.Stdin) {
		violations = append(violations, "nul-byte-in-input")
	}
	if req.Limits != nil && req.Limits.WallTimeoutMs != 0 {
		if req.Limits.WallTimeoutMs < types.MinWallTimeoutMs || req.Limits.WallTimeoutMs > types.MaxWallTimeoutMs {
			violations = append(violations, "timeout-out-of-range")
		}
	}
	return violations
}

// fieldErrorTags renders each validator.FieldError as "field-tag", e.g.
// "Source-max", matching the plain-string violation convention used
// elsewhere in this package (the screener, the registry lookup).
func fieldErrorTags(err error) []string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{"request-invalid"}
	}
	tags := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		tags = append(tags, fmt.Sprintf("%s-%s", fe.Field(), fe.Tag()))
	}
	return tags
}

func containsNUL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return true
		}
	}
	return false
}

// resolveLimits merges the language default with any caller override,
// clipping to the allowed range rather than rejecting.
func resolveLimits(spec registry.LanguageSpec, override *types.LimitsOverride) types.Limits {
	lim := types.Limits{
		MemoryBytes:    spec.DefaultMemoryBytes,
		CPUFraction:    spec.DefaultCPUFraction,
		PidsLimit:      spec.DefaultPidsLimit,
		WallTimeoutMs:  spec.DefaultTimeoutMs(),
		MaxOutputBytes: types.MaxOutputBytes,
	}
	if override == nil {
		return lim
	}
	if override.MemoryBytes > 0 {
		lim.MemoryBytes = override.MemoryBytes
	}
	if override.CPUFraction > 0 {
		lim.CPUFraction = override.CPUFraction
	}
	if override.WallTimeoutMs > 0 {
		lim.WallTimeoutMs = override.WallTimeoutMs
		if lim.WallTimeoutMs < types.MinWallTimeoutMs {
			lim.WallTimeoutMs = types.MinWallTimeoutMs
		}
		if lim.WallTimeoutMs > types.MaxWallTimeoutMs {
			lim.WallTimeoutMs = types.MaxWallTimeoutMs
		}
	}
	return lim
}

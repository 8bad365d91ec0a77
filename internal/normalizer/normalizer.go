// Package normalizer implements the Result Normalizer: classifies a raw
// sandbox outcome into one of the closed ExecutionStatus values, redacts
// host-specific paths from stdout/stderr, and truncates oversized output
// with a single marker.
//
// Grounded on the teacher's container_sandbox.go output-truncation habit in
// logExecution; the redaction rules themselves are authored fresh (the
// teacher has no equivalent), in its terse, table-driven idiom.
package normalizer

import (
	"regexp"
	"strings"

	"execengine/internal/types"
)

const truncationMarker = "\n...[output truncated]"

// tempPathRe matches host temp-file paths under /tmp (e.g.
// /tmp/execengine-seccomp-123.json). Workspace paths such as /work/main.py
// are handled by the source-filename rule in redact, not by this pattern.
var tempPathRe = regexp.MustCompile(`/tmp/[^\s'"]+`)

// Normalizer turns a RawOutcome into the caller-facing ExecutionResult.
type Normalizer struct {
	maxOutputBytes  int
	sourceFilename  string
	supportsCompile bool
}

// New builds a Normalizer. sourceFilename is redacted to "[script]" in any
// output that echoes it (e.g. a stack trace naming the submitted file).
// supportsCompile enables the compile-vs-run stderr heuristic for languages
// whose launch command compiles before running.
func New(maxOutputBytes int, sourceFilename string, supportsCompile bool) *Normalizer {
	return &Normalizer{maxOutputBytes: maxOutputBytes, sourceFilename: sourceFilename, supportsCompile: supportsCompile}
}

// Normalize builds the final ExecutionResult for one execution.
func (n *Normalizer) Normalize(executionID string, outcome types.RawOutcome) types.ExecutionResult {
	status := classify(outcome)
	if status == types.StatusRuntimeError && n.supportsCompile && looksLikeCompileFailure(outcome.Stderr) {
		status = types.StatusCompilationError
	}

	stdout := n.redact(outcome.Stdout)
	stderr := n.redact(outcome.Stderr)
	stdout, stdoutTruncated := truncate(stdout, n.maxOutputBytes)
	stderr, stderrTruncated := truncate(stderr, n.maxOutputBytes)
	if stdoutTruncated {
		stdout += truncationMarker
	}
	if stderrTruncated {
		stderr += truncationMarker
	}

	return types.ExecutionResult{
		ExecutionID:     executionID,
		Status:          status,
		Stdout:          stdout,
		Stderr:          stderr,
		ExitCode:        outcome.ExitCode,
		WallTimeMs:      outcome.WallTime.Milliseconds(),
		PeakMemoryBytes: outcome.PeakMemoryBytes,
	}
}

// classify maps a RawOutcome to the closed ExecutionStatus set.
func classify(outcome types.RawOutcome) types.ExecutionStatus {
	switch outcome.TerminationCause {
	case types.CauseKilledByTimeout:
		return types.StatusTimeout
	case types.CauseKilledByMemory:
		return types.StatusMemoryLimitExceeded
	case types.CauseInternalFailure:
		return types.StatusInternalError
	}
	if outcome.InternalErr != nil {
		return types.StatusInternalError
	}
	if outcome.ExitCode == 0 {
		return types.StatusSuccess
	}
	return types.StatusRuntimeError
}

// redact replaces host-specific paths and the submitted source's own
// filename with stable placeholders, so a result never leaks host
// filesystem layout or implementation details to the caller.
func (n *Normalizer) redact(s string) string {
	s = tempPathRe.ReplaceAllString(s, "[temp_file]")
	if n.sourceFilename != "" {
		s = strings.ReplaceAll(s, "/work/"+n.sourceFilename, "[script]")
		s = strings.ReplaceAll(s, n.sourceFilename, "[script]")
	}
	return s
}

// compilerDiagnosticMarkers are substrings emitted by the toolchains in our
// language table when the compile stage, not the run stage, fails. This is
// a heuristic, not a parse of the diagnostic itself: the supervisor only
// sees one exit code for a compile-then-run command.
var compilerDiagnosticMarkers = []string{
	"error:",
	"syntax error",
	".java:",
	".cpp:",
	"cannot find symbol",
	"expected ';'",
	"was not declared in this scope",
}

func looksLikeCompileFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, marker := range compilerDiagnosticMarkers {
		if strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

// truncate caps s at limit bytes, reporting whether it cut anything.
func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	return s[:limit], true
}

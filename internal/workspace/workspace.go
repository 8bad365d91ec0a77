// Package workspace implements the Workspace Manager: per-execution
// materialization of source/stdin onto disk, and guaranteed teardown.
//
// Grounded on the teacher's internal/sandbox/v2/executor.go
// writeWorkspaceFiles (path-traversal guard, permission choices) and
// internal/execution/container_sandbox.go's temp-dir-per-execution
// lifecycle. Stdin is materialized as a sibling "input.txt" the way the
// example pack's codecourt judging-service sandbox's writeInputToFile
// does, rather than piped over a separate Docker attach stream.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// stdinFilename is the sibling file a submission's stdin is written to,
// when present — the container reads it via shell redirection rather than
// over a Docker attach stream.
const stdinFilename = "input.txt"

// Workspace is one execution's isolated directory on the host, bind-mounted
// read-write into its container (read-write because compiled languages like
// Java write their build output alongside the source).
type Workspace struct {
	ExecutionID string
	Root        string
	sourceFile  string
	stdinFile   string
}

// Manager creates and destroys workspaces under a configured root.
type Manager struct {
	root string
}

// NewManager builds a Manager rooted at root, creating it if necessary.
func NewManager(root string) (*Manager, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("workspace: create root %q: %w", root, err)
	}
	return &Manager{root: root}, nil
}

// Create materializes a fresh directory for executionID and writes source
// under filename. The directory and its contents are not world-readable.
func (m *Manager) Create(executionID, filename, source string) (*Workspace, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return nil, fmt.Errorf("workspace: invalid filename %q", filename)
	}

	dir := filepath.Join(m.root, executionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("workspace: create dir: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(source), 0o640); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("workspace: write source: %w", err)
	}

	return &Workspace{
		ExecutionID: executionID,
		Root:        dir,
		sourceFile:  filename,
	}, nil
}

// SourceFile returns the basename of the written source file.
func (w *Workspace) SourceFile() string {
	return w.sourceFile
}

// WriteStdin writes stdin as a sibling file (input.txt) in the workspace.
// An empty stdin is a no-op: StdinFile then reports "" and the sandbox
// wires no redirection into the container.
func (m *Manager) WriteStdin(w *Workspace, stdin string) error {
	if stdin == "" {
		return nil
	}
	path := filepath.Join(w.Root, stdinFilename)
	if err := os.WriteFile(path, []byte(stdin), 0o640); err != nil {
		return fmt.Errorf("workspace: write stdin: %w", err)
	}
	w.stdinFile = stdinFilename
	return nil
}

// StdinFile returns the basename of the written stdin file, or "" if the
// execution had none.
func (w *Workspace) StdinFile() string {
	return w.stdinFile
}

// Destroy removes the workspace directory. It is idempotent and never
// returns an error upward as a fatal condition — teardown failures are
// logged by the caller, not propagated into the execution result.
func (m *Manager) Destroy(w *Workspace) error {
	if w == nil {
		return nil
	}
	if err := os.RemoveAll(w.Root); err != nil {
		return fmt.Errorf("workspace: destroy %q: %w", w.Root, err)
	}
	return nil
}

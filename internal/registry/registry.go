// Package registry implements the Language Registry: a read-only table
// mapping a language identifier to its image, source filename convention,
// launch command, and default resource limits.
//
// Grounded on the teacher's internal/sandbox/v2 LanguageTemplate/
// DefaultLanguageTemplates (image/workdir/command-template shape) and
// internal/execution/container_sandbox.go's per-language resource defaults
// and Java class-name extraction.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound is returned by Lookup for an unregistered language id.
var ErrNotFound = errors.New("registry: language not found")

// LanguageSpec is one immutable registry entry.
type LanguageSpec struct {
	ID    string
	Image string

	// SourceFilename derives the file the source must be written as. For
	// most languages this is a fixed name; for class-bound languages (Java)
	// it inspects the source text.
	SourceFilename func(source string) string

	// LaunchCmd renders the container command for a given entry filename.
	// For compiled languages this is a single shell invocation that
	// compiles then runs — the Sandbox Supervisor never sees two phases.
	LaunchCmd func(filename string) []string

	SupportsCompile bool

	CompileTimeoutMs int64
	RunTimeoutMs     int64

	DefaultMemoryBytes int64
	DefaultCPUFraction float64
	DefaultPidsLimit   int64
}

// DefaultTimeoutMs is CompileTimeoutMs+RunTimeoutMs for compiled languages
// (one wall clock covers the whole compile-then-run command), or
// RunTimeoutMs alone for interpreted ones.
func (s LanguageSpec) DefaultTimeoutMs() int64 {
	if s.SupportsCompile {
		return s.CompileTimeoutMs + s.RunTimeoutMs
	}
	return s.RunTimeoutMs
}

// Registry is the read-only steady-state lookup table.
type Registry struct {
	specs map[string]LanguageSpec
}

// New builds a Registry from the default language table.
func New() *Registry {
	r := &Registry{specs: make(map[string]LanguageSpec)}
	for _, s := range defaultSpecs() {
		r.specs[s.ID] = s
	}
	return r
}

// Lookup returns the LanguageSpec for id, or ErrNotFound.
func (r *Registry) Lookup(id string) (LanguageSpec, error) {
	spec, ok := r.specs[normalize(id)]
	if !ok {
		return LanguageSpec{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return spec, nil
}

// Languages returns the registered language ids, for health/introspection.
func (r *Registry) Languages() []string {
	ids := make([]string, 0, len(r.specs))
	for id := range r.specs {
		ids = append(ids, id)
	}
	return ids
}

func normalize(id string) string {
	switch strings.ToLower(strings.TrimSpace(id)) {
	case "js", "node", "nodejs":
		return "javascript"
	case "py", "python3":
		return "python"
	case "c++":
		return "cpp"
	default:
		return strings.ToLower(strings.TrimSpace(id))
	}
}

var publicClassRe = regexp.MustCompile(`public\s+class\s+([A-Za-z_][A-Za-z0-9_]*)`)
var anyClassRe = regexp.MustCompile(`\bclass\s+([A-Za-z_][A-Za-z0-9_]*)`)

// javaSourceFilename is lexical, not a parser: it scans for the first
// public-class declaration and uses its identifier; failing that, the first
// class declaration of any kind; failing that, a fixed default. This
// matches the real javac invocation contract (public class name must equal
// the file's basename) without embedding a Java grammar.
func javaSourceFilename(source string) string {
	if m := publicClassRe.FindStringSubmatch(source); len(m) > 1 {
		return m[1] + ".java"
	}
	if m := anyClassRe.FindStringSubmatch(source); len(m) > 1 {
		return m[1] + ".java"
	}
	return "Main.java"
}

func fixedFilename(name string) func(string) string {
	return func(string) string { return name }
}

func defaultSpecs() []LanguageSpec {
	return []LanguageSpec{
		{
			ID:                 "python",
			Image:              "python:3.9-alpine",
			SourceFilename:     fixedFilename("main.py"),
			LaunchCmd:          func(f string) []string { return []string{"python3", "-u", f} },
			SupportsCompile:    false,
			RunTimeoutMs:       int64(30 * time.Second / time.Millisecond),
			DefaultMemoryBytes: 256 * 1024 * 1024,
			DefaultCPUFraction: 0.5,
			DefaultPidsLimit:   50,
		},
		{
			ID:                 "javascript",
			Image:              "node:16-alpine",
			SourceFilename:     fixedFilename("main.js"),
			LaunchCmd:          func(f string) []string { return []string{"node", f} },
			SupportsCompile:    false,
			RunTimeoutMs:       int64(30 * time.Second / time.Millisecond),
			DefaultMemoryBytes: 256 * 1024 * 1024,
			DefaultCPUFraction: 0.5,
			DefaultPidsLimit:   50,
		},
		{
			ID:             "cpp",
			Image:          "gcc:9-alpine",
			SourceFilename: fixedFilename("main.cpp"),
			LaunchCmd: func(f string) []string {
				return []string{"sh", "-c", fmt.Sprintf("g++ -O2 -std=c++17 %s -o a.out && ./a.out", f)}
			},
			SupportsCompile:    true,
			CompileTimeoutMs:   int64(25 * time.Second / time.Millisecond),
			RunTimeoutMs:       int64(20 * time.Second / time.Millisecond),
			DefaultMemoryBytes: 256 * 1024 * 1024,
			DefaultCPUFraction: 0.5,
			DefaultPidsLimit:   50,
		},
		{
			ID:             "java",
			Image:          "openjdk:11-alpine",
			SourceFilename: javaSourceFilename,
			LaunchCmd: func(f string) []string {
				class := strings.TrimSuffix(f, ".java")
				return []string{"sh", "-c", fmt.Sprintf("javac %s && java -cp . %s", f, class)}
			},
			SupportsCompile:    true,
			CompileTimeoutMs:   int64(30 * time.Second / time.Millisecond),
			RunTimeoutMs:       int64(15 * time.Second / time.Millisecond),
			DefaultMemoryBytes: 512 * 1024 * 1024,
			DefaultCPUFraction: 1.0,
			DefaultPidsLimit:   200,
		},
	}
}

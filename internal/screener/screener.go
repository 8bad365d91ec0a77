// Package screener implements the Screener: a lexical (regex-based, not
// AST/parser-based) pre-execution check over submitted source. False
// positives on string literals or comments are an accepted tradeoff for a
// cheap, language-agnostic first line of defense — this is never meant to
// be a sound analysis, only a fast one.
//
// Grounded on other_examples' backend-internal-security-sandbox.go
// (RuntimeSandbox.validateCode / validateJavaScript / validatePython /
// validateShell dangerousPatterns tables) and the teacher's
// container_sandbox.go regex-based Java class extraction for the general
// "scan with a literal pattern list" idiom.
package screener

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of screening one source submission.
type Verdict struct {
	Accepted       bool
	Violations     []string
	SanitizedSource string
}

// genericPatterns apply to every language: filesystem escape attempts and
// the handful of host paths that have no legitimate use in a short
// submitted program.
var genericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./\.\.`),
	regexp.MustCompile(`/etc/passwd`),
	regexp.MustCompile(`/etc/shadow`),
	regexp.MustCompile(`/proc/self`),
	regexp.MustCompile(`/proc/\d`),
	regexp.MustCompile(`/sys/`),
}

type patternSet struct {
	name     string
	patterns []*regexp.Regexp
}

// Per-language forbidden constructs: process/filesystem/network escapes and
// reflection-style dynamic loading for each supported language. Patterns are
// intentionally broad: the Screener prefers false positives to false
// negatives.
var byLanguage = map[string][]patternSet{
	"python": {
		{"dangerous-import", reList(
			`\bimport\s+os\b`,
			`\bimport\s+subprocess\b`,
			`\bimport\s+socket\b`,
			`\bimport\s+ctypes\b`,
			`\bimport\s+sys\b`,
			`\bimport\s+urllib\b`,
			`\bimport\s+requests\b`,
			`\bimport\s+shutil\b`,
			`\bimport\s+glob\b`,
			`\bimport\s+tempfile\b`,
			`\bimport\s+pickle\b`,
			`\bimport\s+marshal\b`,
			`\bfrom\s+os\s+import\b`,
		)},
		{"dangerous-call", reList(
			`\bos\.system\s*\(`,
			`\bsubprocess\.`,
			`\b__import__\s*\(`,
			`\beval\s*\(`,
			`\bexec\s*\(`,
			`\bopen\s*\(`,
			`\bfile\s*\(`,
		)},
	},
	"javascript": {
		{"dangerous-require", reList(
			`require\s*\(\s*['"]child_process['"]\s*\)`,
			`require\s*\(\s*['"]fs['"]\s*\)`,
			`require\s*\(\s*['"]net['"]\s*\)`,
			`require\s*\(\s*['"]dgram['"]\s*\)`,
			`require\s*\(\s*['"]cluster['"]\s*\)`,
			`require\s*\(\s*['"]http['"]\s*\)`,
			`require\s*\(\s*['"]https['"]\s*\)`,
			`require\s*\(\s*['"]crypto['"]\s*\)`,
			`require\s*\(\s*['"]os['"]\s*\)`,
			`require\s*\(\s*['"]path['"]\s*\)`,
			`require\s*\(\s*['"]stream['"]\s*\)`,
			`require\s*\(\s*['"]util['"]\s*\)`,
			`require\s*\(\s*['"]vm['"]\s*\)`,
		)},
		{"dangerous-call", reList(
			`\beval\s*\(`,
			`new\s+Function\s*\(`,
			`\bprocess\.`,
			`\bglobal\.`,
			`__dirname`,
			`__filename`,
		)},
	},
	"cpp": {
		{"dangerous-include", reList(
			`#include\s*<sys/socket\.h>`,
			`#include\s*<sys/ptrace\.h>`,
			`#include\s*<unistd\.h>`,
			`#include\s*<cstdlib>`,
			`#include\s*<stdlib\.h>`,
			`#include\s*<windows\.h>`,
			`#include\s*<process\.h>`,
			`#include\s*<signal\.h>`,
			`#include\s*<fcntl\.h>`,
		)},
		{"dangerous-call", reList(
			`\bsystem\s*\(`,
			`\bfork\s*\(`,
			`\bexecve?\s*\(`,
			`\bptrace\s*\(`,
			`\bpopen\s*\(`,
			`\bkill\s*\(`,
			`\bexit\s*\(`,
		)},
	},
	"java": {
		{"dangerous-import", reList(
			`import\s+java\.lang\.reflect`,
			`import\s+java\.lang\.Runtime`,
			`import\s+java\.io\.File`,
			`import\s+java\.net\.`,
			`import\s+java\.nio\.file`,
			`import\s+java\.security`,
			`import\s+javax\.script`,
		)},
		{"dangerous-call", reList(
			`Runtime\.getRuntime\s*\(\s*\)\s*\.exec`,
			`ProcessBuilder`,
			`System\.exit`,
			`\bFile\.`,
			`\bFiles\.`,
		)},
	},
}

func reList(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// Screener evaluates source submissions before they reach a workspace.
type Screener struct{}

// New constructs a Screener. It holds no state; patterns are package-level.
func New() *Screener {
	return &Screener{}
}

// Screen canonicalizes source (CRLF/CR normalized to LF, NUL bytes
// stripped) and checks it against the generic and per-language forbidden
// pattern tables. An unknown language only gets the generic table.
func (s *Screener) Screen(language, source string) Verdict {
	clean := canonicalize(source)

	var violations []string
	for _, re := range genericPatterns {
		if re.MatchString(clean) {
			violations = append(violations, "forbidden-pattern:"+re.String())
		}
	}
	for _, set := range byLanguage[normalizeLang(language)] {
		for _, re := range set.patterns {
			if re.MatchString(clean) {
				violations = append(violations, set.name+":"+re.String())
			}
		}
	}

	return Verdict{
		Accepted:        len(violations) == 0,
		Violations:      violations,
		SanitizedSource: clean,
	}
}

func canonicalize(source string) string {
	s := strings.ReplaceAll(source, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

func normalizeLang(id string) string {
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

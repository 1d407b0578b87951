// Package preproc flattens header files into a single comment-free
// text stream: includes expanded, object-like macros substituted and
// only the active conditional branches kept. It is deliberately not a
// full C preprocessor; function-like macros are recorded but never
// expanded.
package preproc

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var blockCommentRe = regexp.MustCompile(`/\*[\s\S]*?\*/`)
var lineCommentRe = regexp.MustCompile(`//[^\n]*`)
var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
var definedRe = regexp.MustCompile(`^(!?)\s*defined\s*\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)$`)

// Macro is one #define entry. Function-like macros keep their raw
// value for the record but are exempt from substitution.
type Macro struct {
	Name     string
	Value    string
	FuncLike bool
}

// UnbalancedConditionalError reports an unmatched #else/#endif or a
// conditional still open at end of input.
type UnbalancedConditionalError struct {
	File      string
	Line      int
	Directive string
}

func (e *UnbalancedConditionalError) Error() string {
	return fmt.Sprintf("%s:%d: unbalanced conditional %q", e.File, e.Line, e.Directive)
}

// Diagnostic is a recoverable preprocessing warning.
type Diagnostic struct {
	File    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
}

// Preprocessor holds the per-run macro table, visited-include set and
// conditional stack. One instance serves one pipeline run.
type Preprocessor struct {
	includeDirs []string
	marker      string
	macros      map[string]Macro
	visited     map[string]bool
	diags       []Diagnostic
}

// New returns a preprocessor searching the given directories in order.
// The marker name is exempt from macro substitution so the scanner can
// match the export token itself.
func New(includeDirs []string, marker string) *Preprocessor {
	return &Preprocessor{
		includeDirs: includeDirs,
		marker:      marker,
		macros:      make(map[string]Macro),
		visited:     make(map[string]bool),
	}
}

// Define registers an object-like macro. Last write wins.
func (p *Preprocessor) Define(name, value string) {
	p.macros[name] = Macro{Name: name, Value: value}
}

// Defined reports whether name is in the macro table.
func (p *Preprocessor) Defined(name string) bool {
	_, ok := p.macros[name]
	return ok
}

// Diagnostics returns the recoverable warnings collected so far.
func (p *Preprocessor) Diagnostics() []Diagnostic {
	return p.diags
}

// ProcessFile resolves name against the include directories and
// returns its flattened text. Re-processing an already visited file
// yields an empty result rather than an error.
func (p *Preprocessor) ProcessFile(name string) (string, error) {
	path, err := p.resolve(name)
	if err != nil {
		return "", err
	}
	if p.visited[path] {
		return "", nil
	}
	p.visited[path] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	lines, err := p.process(stripComments(string(data)), path)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// resolve searches the include directories in order. A name that is
// already a readable path is used as-is.
func (p *Preprocessor) resolve(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return filepath.Clean(name), nil
	}
	for _, dir := range p.includeDirs {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return filepath.Clean(path), nil
		}
	}
	return "", fmt.Errorf("include %q not found in search path: %w", name, fs.ErrNotExist)
}

type condFrame struct {
	active  bool
	sawElse bool
}

func (p *Preprocessor) process(src, file string) ([]string, error) {
	var out []string
	var stack []condFrame
	active := func() bool {
		for _, f := range stack {
			if !f.active {
				return false
			}
		}
		return true
	}

	for n, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if active() {
				out = append(out, p.substitute(line))
			}
			continue
		}

		directive, rest := splitDirective(trimmed)
		switch directive {
		case "ifdef", "ifndef":
			name := firstField(rest)
			on := p.Defined(name)
			if directive == "ifndef" {
				on = !on
			}
			stack = append(stack, condFrame{active: on})

		case "if":
			on, ok := p.evalCondition(rest)
			if !ok {
				p.warnf(file, n+1, "unsupported #if expression %q, branch disabled", rest)
			}
			stack = append(stack, condFrame{active: on})

		case "else":
			if len(stack) == 0 || stack[len(stack)-1].sawElse {
				return nil, &UnbalancedConditionalError{File: file, Line: n + 1, Directive: "#else"}
			}
			top := &stack[len(stack)-1]
			top.active = !top.active
			top.sawElse = true

		case "endif":
			if len(stack) == 0 {
				return nil, &UnbalancedConditionalError{File: file, Line: n + 1, Directive: "#endif"}
			}
			stack = stack[:len(stack)-1]

		case "include":
			if !active() {
				continue
			}
			name, ok := includeName(rest)
			if !ok {
				p.warnf(file, n+1, "malformed #include %q", rest)
				continue
			}
			text, err := p.ProcessFile(name)
			if err != nil {
				return nil, err
			}
			if text != "" {
				out = append(out, text)
			}

		case "define":
			if !active() {
				continue
			}
			p.define(rest)

		case "undef":
			if !active() {
				continue
			}
			delete(p.macros, firstField(rest))

		case "pragma", "error", "warning", "line":
			// Not interpreted; dropped from the output stream.

		default:
			if active() {
				p.warnf(file, n+1, "unknown directive #%s dropped", directive)
			}
		}
	}

	if len(stack) > 0 {
		return nil, &UnbalancedConditionalError{File: file, Line: len(strings.Split(src, "\n")), Directive: "#if"}
	}
	return out, nil
}

// define parses the tail of a #define line. A '(' immediately after
// the name marks a function-like macro, which is recorded but never
// substituted.
func (p *Preprocessor) define(rest string) {
	m := identRe.FindStringIndex(rest)
	if m == nil || m[0] != 0 {
		return
	}
	name := rest[:m[1]]
	tail := rest[m[1]:]
	if strings.HasPrefix(tail, "(") {
		p.macros[name] = Macro{Name: name, Value: strings.TrimSpace(tail), FuncLike: true}
		return
	}
	p.macros[name] = Macro{Name: name, Value: strings.TrimSpace(tail)}
}

// evalCondition handles the restricted #if forms: defined(NAME) and
// !defined(NAME).
func (p *Preprocessor) evalCondition(expr string) (value, supported bool) {
	m := definedRe.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return false, false
	}
	on := p.Defined(m[2])
	if m[1] == "!" {
		on = !on
	}
	return on, true
}

// substitute performs one round of token-boundary-respecting macro
// replacement on a line. Function-like and empty-valued macros are
// left alone, as is the export marker.
func (p *Preprocessor) substitute(line string) string {
	return identRe.ReplaceAllStringFunc(line, func(ident string) string {
		if ident == p.marker {
			return ident
		}
		m, ok := p.macros[ident]
		if !ok || m.FuncLike || m.Value == "" {
			return ident
		}
		return m.Value
	})
}

func (p *Preprocessor) warnf(file string, line int, format string, args ...any) {
	p.diags = append(p.diags, Diagnostic{File: file, Line: line, Message: fmt.Sprintf(format, args...)})
}

func stripComments(s string) string {
	// A block comment keeps its newlines so line numbers in later
	// diagnostics still match the source file.
	s = blockCommentRe.ReplaceAllStringFunc(s, func(m string) string {
		if n := strings.Count(m, "\n"); n > 0 {
			return strings.Repeat("\n", n)
		}
		return " "
	})
	s = lineCommentRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func splitDirective(trimmed string) (directive, rest string) {
	body := strings.TrimSpace(trimmed[1:])
	if i := strings.IndexAny(body, " \t"); i != -1 {
		return body[:i], strings.TrimSpace(body[i+1:])
	}
	return body, ""
}

func firstField(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// includeName extracts the file name from `"name"` or `<name>`.
func includeName(rest string) (string, bool) {
	rest = strings.TrimSpace(rest)
	if len(rest) < 2 {
		return "", false
	}
	if rest[0] == '"' {
		if end := strings.IndexByte(rest[1:], '"'); end != -1 {
			return rest[1 : 1+end], true
		}
		return "", false
	}
	if rest[0] == '<' {
		if end := strings.IndexByte(rest, '>'); end != -1 {
			return rest[1:end], true
		}
	}
	return "", false
}

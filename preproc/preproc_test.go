package preproc

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeHeader(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}
}

func processSource(t *testing.T, source string, defines map[string]string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	writeHeader(t, dir, "test.h", source)
	p := New([]string{dir}, "EXPORT")
	for name, value := range defines {
		p.Define(name, value)
	}
	return p.ProcessFile("test.h")
}

func TestConditionalBranchSelection(t *testing.T) {
	source := `#ifdef FLAG
typedef int T;
#else
typedef long T;
#endif
`
	tests := []struct {
		name    string
		defines map[string]string
		want    string
		exclude string
	}{
		{"flag defined selects if branch", map[string]string{"FLAG": ""}, "typedef int T;", "typedef long T;"},
		{"flag omitted selects else branch", nil, "typedef long T;", "typedef int T;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := processSource(t, source, tt.defines)
			if err != nil {
				t.Fatalf("ProcessFile failed: %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
			if strings.Contains(out, tt.exclude) {
				t.Errorf("output contains inactive branch %q:\n%s", tt.exclude, out)
			}
		})
	}
}

func TestNestedConditionals(t *testing.T) {
	source := `#ifdef OUTER
#ifdef INNER
int both;
#else
int outer_only;
#endif
#endif
`
	out, err := processSource(t, source, map[string]string{"OUTER": ""})
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "outer_only") {
		t.Errorf("expected outer_only in output:\n%s", out)
	}
	if strings.Contains(out, "both") {
		t.Errorf("inner branch leaked into output:\n%s", out)
	}
}

func TestIfDefined(t *testing.T) {
	source := `#if defined(FLAG)
int yes;
#endif
#if !defined(FLAG)
int no;
#endif
`
	out, err := processSource(t, source, map[string]string{"FLAG": ""})
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "yes") || strings.Contains(out, "no;") {
		t.Errorf("defined() evaluation wrong:\n%s", out)
	}
}

func TestUnbalancedConditional(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"unmatched endif", "int a;\n#endif\n"},
		{"unmatched else", "int a;\n#else\n"},
		{"double else", "#ifdef X\n#else\n#else\n#endif\n"},
		{"unclosed ifdef", "#ifdef X\nint a;\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processSource(t, tt.source, nil)
			var ucErr *UnbalancedConditionalError
			if !errors.As(err, &ucErr) {
				t.Fatalf("expected UnbalancedConditionalError, got %v", err)
			}
		})
	}
}

func TestBoundaryRespectingSubstitution(t *testing.T) {
	out, err := processSource(t, "int a = FOO; int b = FOOBAR;\n", map[string]string{"FOO": "1"})
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "int a = 1;") {
		t.Errorf("FOO not substituted:\n%s", out)
	}
	if !strings.Contains(out, "int b = FOOBAR;") {
		t.Errorf("FOOBAR must stay unsubstituted:\n%s", out)
	}
}

func TestMacroRedefinitionLastWins(t *testing.T) {
	source := "#define N 1\n#define N 2\nint a[N];\n"
	out, err := processSource(t, source, nil)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "int a[2];") {
		t.Errorf("expected last definition to win:\n%s", out)
	}
}

func TestFunctionLikeMacroNotExpanded(t *testing.T) {
	source := "#define SQR(x) ((x)*(x))\nint a = SQR;\n"
	out, err := processSource(t, source, nil)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "int a = SQR;") {
		t.Errorf("function-like macro must not expand:\n%s", out)
	}
}

func TestExportMarkerExemptFromSubstitution(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, "test.h", "EXPORT int f(void);\n")
	p := New([]string{dir}, "EXPORT")
	p.Define("EXPORT", "__declspec(dllexport)")
	out, err := p.ProcessFile("test.h")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "EXPORT int f(void);") {
		t.Errorf("marker token must survive substitution:\n%s", out)
	}
}

func TestIncludeExpansion(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, "types.h", "typedef int my_int;\n")
	writeHeader(t, dir, "main.h", "#include \"types.h\"\nmy_int x;\n")

	p := New([]string{dir}, "EXPORT")
	out, err := p.ProcessFile("main.h")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "typedef int my_int;") {
		t.Errorf("include not expanded:\n%s", out)
	}
}

func TestIncludeSearchOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeHeader(t, first, "dup.h", "int from_first;\n")
	writeHeader(t, second, "dup.h", "int from_second;\n")

	p := New([]string{first, second}, "EXPORT")
	out, err := p.ProcessFile("dup.h")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "from_first") {
		t.Errorf("expected first search directory to win:\n%s", out)
	}
}

func TestDoubleIncludeSkipped(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, "once.h", "typedef int once_t;\n")
	writeHeader(t, dir, "main.h", "#include \"once.h\"\n#include \"once.h\"\nonce_t x;\n")

	p := New([]string{dir}, "EXPORT")
	out, err := p.ProcessFile("main.h")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if got := strings.Count(out, "typedef int once_t;"); got != 1 {
		t.Errorf("expected exactly one inclusion, got %d:\n%s", got, out)
	}
}

func TestRecursiveIncludeTerminates(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, "a.h", "#include \"b.h\"\nint a;\n")
	writeHeader(t, dir, "b.h", "#include \"a.h\"\nint b;\n")

	p := New([]string{dir}, "EXPORT")
	out, err := p.ProcessFile("a.h")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "int a;") || !strings.Contains(out, "int b;") {
		t.Errorf("mutual includes mishandled:\n%s", out)
	}
}

func TestIncludeNotFound(t *testing.T) {
	_, err := processSource(t, "#include \"missing.h\"\n", nil)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestCommentStripping(t *testing.T) {
	source := "int a; // trailing\n/* block\nspanning lines */ int b;\n"
	out, err := processSource(t, source, nil)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if strings.Contains(out, "trailing") || strings.Contains(out, "spanning") {
		t.Errorf("comments not stripped:\n%s", out)
	}
	if !strings.Contains(out, "int a;") || !strings.Contains(out, "int b;") {
		t.Errorf("code lost during comment stripping:\n%s", out)
	}
}

func TestLineNumbersSurviveBlockComments(t *testing.T) {
	source := "/* banner\nline two\nline three */\n#bogus directive\n"
	dir := t.TempDir()
	writeHeader(t, dir, "test.h", source)
	p := New([]string{dir}, "EXPORT")
	if _, err := p.ProcessFile("test.h"); err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	diags := p.Diagnostics()
	if len(diags) != 1 {
		t.Fatalf("expected one diagnostic, got %v", diags)
	}
	if diags[0].Line != 4 {
		t.Errorf("diagnostic line = %d, want 4 (source line of the directive)", diags[0].Line)
	}
}

func TestDefineInInactiveBranchIgnored(t *testing.T) {
	source := "#ifdef MISSING\n#define N 9\n#endif\nint a[N];\n"
	out, err := processSource(t, source, nil)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "int a[N];") {
		t.Errorf("define inside inactive branch must not register:\n%s", out)
	}
}

func TestUndef(t *testing.T) {
	source := "#define N 4\n#undef N\nint a[N];\n"
	out, err := processSource(t, source, nil)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if !strings.Contains(out, "int a[N];") {
		t.Errorf("undefined macro must not substitute:\n%s", out)
	}
}

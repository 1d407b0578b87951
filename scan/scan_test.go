package scan

import (
	"errors"
	"os"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// declSpec mirrors one expected declaration in scan.yaml. Struct and
// union bodies are compared after top-level field splitting, enum
// bodies after member splitting.
type declSpec struct {
	Kind       string   `yaml:"kind"`
	Name       string   `yaml:"name"`
	Opaque     bool     `yaml:"opaque,omitempty"`
	Fields     []string `yaml:"fields,omitempty"`
	Members    []string `yaml:"members,omitempty"`
	Underlying string   `yaml:"underlying,omitempty"`
	Ret        string   `yaml:"ret,omitempty"`
	Params     []string `yaml:"params,omitempty"`
}

type testSpec struct {
	Name  string     `yaml:"name"`
	Input string     `yaml:"input"`
	Decls []declSpec `yaml:"decls"`
}

type testFile struct {
	Tests []testSpec `yaml:"tests"`
}

var kindNames = map[DeclKind]string{
	DeclStruct:  "struct",
	DeclUnion:   "union",
	DeclEnum:    "enum",
	DeclTypedef: "typedef",
	DeclFunc:    "func",
}

func TestScanYAML(t *testing.T) {
	data, err := os.ReadFile("testdata/scan.yaml")
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	var tf testFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		t.Fatalf("failed to parse fixture: %v", err)
	}

	for _, tc := range tf.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			f, err := Scan("test.h", tc.Input, "EXPORT")
			if err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if len(f.Decls) != len(tc.Decls) {
				t.Fatalf("expected %d decls, got %d: %+v", len(tc.Decls), len(f.Decls), f.Decls)
			}
			for i, want := range tc.Decls {
				got := f.Decls[i]
				if kindNames[got.Kind] != want.Kind {
					t.Errorf("decl %d: expected kind %s, got %s", i, want.Kind, kindNames[got.Kind])
				}
				if got.Name != want.Name {
					t.Errorf("decl %d: expected name %q, got %q", i, want.Name, got.Name)
				}
				if got.Opaque != want.Opaque {
					t.Errorf("decl %d: opaque = %v, want %v", i, got.Opaque, want.Opaque)
				}
				if want.Underlying != "" && got.Underlying != want.Underlying {
					t.Errorf("decl %d: underlying = %q, want %q", i, got.Underlying, want.Underlying)
				}
				if want.Ret != "" && got.Ret != want.Ret {
					t.Errorf("decl %d: ret = %q, want %q", i, got.Ret, want.Ret)
				}
				if want.Fields != nil {
					checkStrings(t, "field", SplitFields(got.Body), want.Fields)
				}
				if want.Members != nil {
					checkStrings(t, "member", SplitMembers(got.Body), want.Members)
				}
				if want.Params != nil {
					checkStrings(t, "param", got.Params, want.Params)
				}
			}
		})
	}
}

func checkStrings(t *testing.T, what string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("expected %d %ss, got %d: %v", len(want), what, len(got), got)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s %d: expected %q, got %q", what, i, want[i], got[i])
		}
	}
}

func TestUnterminatedBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unclosed struct brace", "struct Broken { int a;\n"},
		{"unclosed function paren", "EXPORT int f(int a;\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Scan("test.h", tt.input, "EXPORT")
			var utErr *UnterminatedBlockError
			if !errors.As(err, &utErr) {
				t.Fatalf("expected UnterminatedBlockError, got %v", err)
			}
			if utErr.File != "test.h" {
				t.Errorf("error missing file context: %+v", utErr)
			}
		})
	}
}

func TestUnrecognizedSpanIsWarning(t *testing.T) {
	input := "extern int counter;\nstruct Ok { int a; };\n"
	f, err := Scan("test.h", input, "EXPORT")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(f.Decls) != 1 || f.Decls[0].Name != "Ok" {
		t.Fatalf("malformed span must not block later declarations: %+v", f.Decls)
	}
	if len(f.Diags) == 0 {
		t.Error("expected a diagnostic for the skipped span")
	}
}

func TestMarkerFiltering(t *testing.T) {
	input := "int internal(void);\nAPI int visible(void);\nEXPORT int ignored(void);\n"
	f, err := Scan("test.h", input, "API")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	var funcs []string
	for _, d := range f.Decls {
		if d.Kind == DeclFunc {
			funcs = append(funcs, d.Name)
		}
	}
	if len(funcs) != 1 || funcs[0] != "visible" {
		t.Errorf("expected only marked function, got %v", funcs)
	}
}

func TestSplitFieldsDepth(t *testing.T) {
	body := "int a[2]; void (*cb)(int, char); struct { int x; } nested; int z"
	got := SplitFields(body)
	want := []string{"int a[2]", "void (*cb)(int, char)", "struct { int x; } nested", "int z"}
	checkStrings(t, "field", got, want)
}

func TestScanLineNumbers(t *testing.T) {
	input := "\n\nstruct Late { int a; };\n"
	f, err := Scan("test.h", input, "EXPORT")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(f.Decls) != 1 || f.Decls[0].Line != 3 {
		t.Errorf("expected declaration on line 3, got %+v", f.Decls)
	}
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{File: "a.h", Line: 7, Message: "skipped"}
	if !strings.Contains(d.String(), "a.h:7") {
		t.Errorf("diagnostic missing position context: %s", d.String())
	}
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Zoophish/auto-ctypes/generator"
	"github.com/Zoophish/auto-ctypes/model"
	"github.com/Zoophish/auto-ctypes/preproc"
	"github.com/Zoophish/auto-ctypes/resolve"
	"github.com/Zoophish/auto-ctypes/scan"
)

func main() {
	includes := flag.String("include", ".", "comma-separated header search directories")
	headers := flag.String("headers", "", "comma-separated header files to process")
	libPath := flag.String("lib", "", "path to the native library loaded by the generated module")
	export := flag.String("export", "EXPORT", "marker token tagging functions to wrap")
	defines := flag.String("define", "", "comma-separated NAME[=VALUE] macro definitions")
	outputDir := flag.String("output", ".", "output directory for the generated module")
	moduleName := flag.String("module", "", "generated module name (default: first header base name)")
	single := flag.Bool("single", false, "emit a single file instead of a package directory")
	flag.Parse()

	if *headers == "" {
		fmt.Fprintln(os.Stderr, "error: -headers flag is required")
		flag.Usage()
		os.Exit(1)
	}
	if *libPath == "" {
		fmt.Fprintln(os.Stderr, "error: -lib flag is required")
		flag.Usage()
		os.Exit(1)
	}

	headerList := splitList(*headers)
	if len(headerList) == 0 {
		fmt.Fprintln(os.Stderr, "error: -headers lists no header files")
		flag.Usage()
		os.Exit(1)
	}
	if *moduleName == "" {
		base := filepath.Base(headerList[0])
		ext := filepath.Ext(base)
		*moduleName = base[:len(base)-len(ext)]
	}

	files, warnings, err := run(splitList(*includes), headerList, splitList(*defines), *export, *libPath, *moduleName, *single)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Nothing is written until the whole pipeline has succeeded.
	for name, content := range files {
		path := filepath.Join(*outputDir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			fmt.Fprintf(os.Stderr, "error creating output directory: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("Generated: %s\n", path)
	}
}

// run executes the full pipeline for one invocation and returns the
// output files keyed by relative path, plus the recoverable warnings
// collected along the way.
func run(includeDirs, headers, defines []string, export, libPath, moduleName string, single bool) (map[string]string, []string, error) {
	pp := preproc.New(includeDirs, export)
	for _, d := range defines {
		if name, value, ok := strings.Cut(d, "="); ok {
			pp.Define(strings.TrimSpace(name), strings.TrimSpace(value))
		} else {
			pp.Define(strings.TrimSpace(d), "")
		}
	}

	var scanned []*scan.File
	for _, h := range headers {
		text, err := pp.ProcessFile(h)
		if err != nil {
			return nil, nil, err
		}
		f, err := scan.Scan(h, text, export)
		if err != nil {
			return nil, nil, err
		}
		scanned = append(scanned, f)
	}

	table, diags := model.Build(scanned)

	var warnings []string
	for _, d := range pp.Diagnostics() {
		warnings = append(warnings, d.String())
	}
	for _, d := range diags {
		warnings = append(warnings, d.String())
	}

	order, err := resolve.Resolve(table)
	if err != nil {
		return nil, warnings, err
	}

	files, err := generator.New(moduleName, libPath, table, order).Generate(single)
	if err != nil {
		return nil, warnings, err
	}
	return files, warnings, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

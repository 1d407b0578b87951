package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Zoophish/auto-ctypes/scan"
)

var arraySuffixRe = regexp.MustCompile(`\[\s*([0-9]+)\s*\]`)
var funcPtrRe = regexp.MustCompile(`^(.+?)\(\s*\*\s*([A-Za-z_][A-Za-z0-9_]*)?\s*\)\s*\((.*)\)$`)

// Build converts scanned declaration spans into a symbol table.
// Field and parameter order is preserved exactly as declared. Spans
// whose type expressions cannot be parsed are dropped with a
// diagnostic; unresolved names are left pending for the resolver.
func Build(files []*scan.File) (*Table, []scan.Diagnostic) {
	b := &builder{table: NewTable()}
	for _, f := range files {
		b.diags = append(b.diags, f.Diags...)
		for _, d := range f.Decls {
			switch d.Kind {
			case scan.DeclStruct:
				b.buildRecord(f.Name, d, KindStruct)
			case scan.DeclUnion:
				b.buildRecord(f.Name, d, KindUnion)
			case scan.DeclEnum:
				b.buildEnum(f.Name, d)
			case scan.DeclTypedef:
				b.buildTypedef(f.Name, d)
			case scan.DeclFunc:
				b.buildFunc(f.Name, d)
			}
		}
	}
	return b.table, b.diags
}

type builder struct {
	table *Table
	diags []scan.Diagnostic
}

func (b *builder) warnf(file string, line int, format string, args ...any) {
	b.diags = append(b.diags, scan.Diagnostic{
		File:    file,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	})
}

func (b *builder) buildRecord(file string, d scan.Decl, kind Kind) {
	if d.Opaque {
		// A forward declaration never clobbers a full definition.
		if _, ok := b.table.Lookup(d.Name); !ok {
			b.table.Add(TypeEntry{Kind: KindOpaque, Name: d.Name})
		}
		return
	}

	entry := TypeEntry{Kind: kind, Name: d.Name}
	for _, raw := range scan.SplitFields(d.Body) {
		name, ref, err := b.parseDecl(raw)
		if err != nil {
			b.warnf(file, d.Line, "%s %s: %v", kind, d.Name, err)
			continue
		}
		if !isIdent(name) {
			b.warnf(file, d.Line, "%s %s: field %q has no usable name", kind, d.Name, raw)
			continue
		}
		entry.Fields = append(entry.Fields, Field{Name: name, Ref: ref})
	}
	b.table.Add(entry)
}

func (b *builder) buildEnum(file string, d scan.Decl) {
	entry := TypeEntry{Kind: KindEnum, Name: d.Name, Width: 32, Signed: true}
	if d.Underlying != "" {
		if p, ok := LookupPrimitive(normalizeBase(d.Underlying)); ok && p.Width > 0 && !p.Float {
			entry.Width = p.Width
			entry.Signed = p.Signed
		} else {
			b.warnf(file, d.Line, "enum %s: unrecognized underlying type %q", d.Name, d.Underlying)
		}
	}

	next := int64(0)
	for _, raw := range scan.SplitMembers(d.Body) {
		name := raw
		value := next
		explicit := false
		if eq := strings.IndexByte(raw, '='); eq != -1 {
			name = strings.TrimSpace(raw[:eq])
			v, err := strconv.ParseInt(strings.TrimSpace(raw[eq+1:]), 0, 64)
			if err != nil {
				b.warnf(file, d.Line, "enum %s: member %q has a non-literal value", d.Name, name)
				continue
			}
			value = v
			explicit = true
		}
		if !isIdent(name) {
			b.warnf(file, d.Line, "enum %s: skipping member %q", d.Name, raw)
			continue
		}
		entry.Members = append(entry.Members, EnumMember{Name: name, Value: value, Explicit: explicit})
		next = value + 1
	}
	b.table.Add(entry)
}

func (b *builder) buildTypedef(file string, d scan.Decl) {
	var ref FieldRef
	var err error
	if strings.Contains(d.Underlying, "(*") {
		_, ref, err = b.parseFuncPtr(d.Underlying)
	} else {
		ref, err = b.parseTypeExpr(d.Underlying)
	}
	if err != nil {
		b.warnf(file, d.Line, "typedef %s: %v", d.Name, err)
		return
	}
	// `typedef struct Foo Foo;` aliases a tag to the same name; in the
	// single-namespace table that is a no-op.
	if ref.Kind == RefNamed && ref.Name == d.Name {
		return
	}
	if i, ok := b.table.Lookup(d.Name); ok {
		if k := b.table.Entries[i].Kind; k != KindTypedef && k != KindOpaque {
			b.warnf(file, d.Line, "typedef %s collides with a %s definition, keeping the definition", d.Name, k)
			return
		}
	}
	b.table.Add(TypeEntry{Kind: KindTypedef, Name: d.Name, Ref: &ref})
}

func (b *builder) buildFunc(file string, d scan.Decl) {
	ret, err := b.parseTypeExpr(d.Ret)
	if err != nil {
		b.warnf(file, d.Line, "function %s: return type: %v", d.Name, err)
		return
	}
	fn := FunctionEntry{Name: d.Name, Ret: ret, Exported: true}
	for _, raw := range d.Params {
		name, ref, err := b.parseDecl(raw)
		if err != nil {
			b.warnf(file, d.Line, "function %s: parameter %q: %v", d.Name, raw, err)
			return
		}
		fn.Params = append(fn.Params, Param{Name: name, Ref: ref})
	}
	b.table.AddFunc(fn)
}

// parseDecl splits one field or parameter declaration into its name
// and type reference. The name may be empty for unnamed parameters.
func (b *builder) parseDecl(raw string) (string, FieldRef, error) {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "(*") {
		name, ref, err := b.parseFuncPtr(raw)
		return name, ref, err
	}
	expr, name := splitDeclarator(raw)
	ref, err := b.parseTypeExpr(expr)
	return name, ref, err
}

// parseTypeExpr converts a bare type expression such as
// "struct Node**" or "float[16]" into a FieldRef. Unknown identifier
// bases become pending named references for the resolver.
func (b *builder) parseTypeExpr(expr string) (FieldRef, error) {
	var dims []int
	for _, m := range arraySuffixRe.FindAllStringSubmatch(expr, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return FieldRef{}, fmt.Errorf("bad array length %q", m[1])
		}
		dims = append(dims, n)
	}
	expr = arraySuffixRe.ReplaceAllString(expr, "")

	ptr := strings.Count(expr, "*")
	expr = strings.ReplaceAll(expr, "*", " ")

	base := normalizeBase(expr)
	if base == "" {
		return FieldRef{}, fmt.Errorf("empty type expression")
	}

	var ref FieldRef
	if p, ok := LookupPrimitive(base); ok {
		ref = FieldRef{Kind: RefPrimitive, Prim: p}
	} else if isIdent(base) {
		ref = FieldRef{Kind: RefNamed, Name: base, Index: Pending}
		if i, ok := b.table.Lookup(base); ok {
			ref.Index = i
		}
	} else {
		return FieldRef{}, fmt.Errorf("unparseable type expression %q", base)
	}

	for i := 0; i < ptr; i++ {
		elem := ref
		ref = FieldRef{Kind: RefPointer, Elem: &elem}
	}
	for i := len(dims) - 1; i >= 0; i-- {
		elem := ref
		ref = FieldRef{Kind: RefArray, Elem: &elem, Len: dims[i]}
	}
	return ref, nil
}

// parseFuncPtr parses a function-pointer declarator such as
// "void (*cb)(int, void*)" into a Func reference plus the declared
// name, if any.
func (b *builder) parseFuncPtr(raw string) (string, FieldRef, error) {
	m := funcPtrRe.FindStringSubmatch(raw)
	if m == nil {
		return "", FieldRef{}, fmt.Errorf("unparseable function pointer %q", raw)
	}
	ret, err := b.parseTypeExpr(m[1])
	if err != nil {
		return "", FieldRef{}, err
	}
	fref := FieldRef{Kind: RefFunc, Ret: &ret}
	args := strings.TrimSpace(m[3])
	if args != "" && args != "void" {
		for _, a := range scan.SplitMembers(args) {
			expr, _ := splitDeclarator(a)
			pref, err := b.parseTypeExpr(expr)
			if err != nil {
				return "", FieldRef{}, err
			}
			fref.Params = append(fref.Params, pref)
		}
	}
	return m[2], fref, nil
}

// splitDeclarator separates a declaration like "struct Node *next[4]"
// into a type expression ("struct Node*[4]") and the declared name.
// Pointer and array sigils attached to the name move onto the type,
// the same trick the original binding loader used to keep parsing
// uniform.
func splitDeclarator(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	toks := strings.Fields(raw)
	if len(toks) < 2 {
		return raw, ""
	}

	last := toks[len(toks)-1]
	rest := strings.Join(toks[:len(toks)-1], " ")

	var dims strings.Builder
	for _, m := range arraySuffixRe.FindAllString(last, -1) {
		dims.WriteString(m)
	}
	last = arraySuffixRe.ReplaceAllString(last, "")

	ptr := 0
	for strings.HasPrefix(last, "*") {
		last = last[1:]
		ptr++
	}

	// "unsigned int" or "struct Node": the trailing word is part of
	// the type, not a declared name.
	if isTypeWord(last) || endsWithTagKeyword(rest) {
		if last != "" {
			rest += " " + last
		}
		last = ""
	}
	return rest + strings.Repeat("*", ptr) + dims.String(), last
}

func isTypeWord(w string) bool {
	_, ok := primitives[w]
	return ok
}

func endsWithTagKeyword(rest string) bool {
	toks := strings.Fields(rest)
	if len(toks) == 0 {
		return false
	}
	switch toks[len(toks)-1] {
	case "struct", "union", "enum":
		return true
	}
	return false
}

// normalizeBase strips qualifiers and tag keywords and collapses the
// remaining words into a canonical base spelling.
func normalizeBase(expr string) string {
	var kept []string
	for _, w := range strings.Fields(expr) {
		switch w {
		case "const", "volatile", "struct", "union", "enum":
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Package scan extracts struct, union, enum, typedef and exported
// function declarations from preprocessed header text. It is not a C
// grammar: constructs are located by structural pattern matching with
// brace and paren depth tracking, and spans that match no pattern are
// skipped with a recoverable diagnostic.
package scan

import (
	"fmt"
	"strings"
)

type DeclKind int

const (
	DeclStruct DeclKind = iota
	DeclUnion
	DeclEnum
	DeclTypedef
	DeclFunc
)

// Decl is one raw declaration span. Body holds the brace block content
// for struct/union/enum kinds, Underlying the typedef target text or
// the enum width annotation, Ret and Params the function signature
// fragments.
type Decl struct {
	Kind       DeclKind
	Name       string
	Body       string
	Underlying string
	Opaque     bool
	Ret        string
	Params     []string
	Line       int
}

// Diagnostic is a recoverable scan mismatch.
type Diagnostic struct {
	File    string
	Line    int
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d: %s", d.File, d.Line, d.Message)
}

// UnterminatedBlockError reports a brace or paren block still open at
// end of input.
type UnterminatedBlockError struct {
	File string
	Line int
	Open string
}

func (e *UnterminatedBlockError) Error() string {
	return fmt.Sprintf("%s:%d: unterminated %q block", e.File, e.Line, e.Open)
}

// File is the scan result for one preprocessed input, declarations in
// source order.
type File struct {
	Name  string
	Decls []Decl
	Diags []Diagnostic
}

type scanner struct {
	src    string
	pos    int
	line   int
	marker string
	out    *File
}

// Scan walks preprocessed source text and collects declaration spans.
// Only function spans carrying the marker token are extracted.
func Scan(name, src, marker string) (*File, error) {
	s := &scanner{src: src, line: 1, marker: marker, out: &File{Name: name}}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.out, nil
}

func (s *scanner) run() error {
	for {
		s.skipSpace()
		if s.pos >= len(s.src) {
			return nil
		}
		c := s.src[s.pos]
		if c == ';' {
			s.advance(1)
			continue
		}
		if !isIdentStart(c) {
			line := s.line
			if _, err := s.readSpan(); err != nil {
				return err
			}
			s.warnf(line, "unrecognized declaration")
			continue
		}
		line := s.line
		word := s.readWord()
		var err error
		switch word {
		case "struct":
			err = s.scanRecord(DeclStruct, line)
		case "union":
			err = s.scanRecord(DeclUnion, line)
		case "enum":
			err = s.scanEnum(line)
		case "typedef":
			err = s.scanTypedef(line)
		case s.marker:
			err = s.scanFunc(line)
		default:
			span, serr := s.readSpan()
			if serr != nil {
				return serr
			}
			if strings.TrimSpace(word+span) != "" {
				s.warnf(line, "skipping unrecognized declaration starting with %q", word)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (s *scanner) scanRecord(kind DeclKind, line int) error {
	s.skipSpace()
	name := s.readWord()
	if name == "" {
		if _, err := s.readSpan(); err != nil {
			return err
		}
		s.warnf(line, "record declaration without a tag name")
		return nil
	}
	s.skipSpace()
	if s.pos < len(s.src) && s.src[s.pos] == ';' {
		s.advance(1)
		s.out.Decls = append(s.out.Decls, Decl{Kind: kind, Name: name, Opaque: true, Line: line})
		return nil
	}
	if s.pos < len(s.src) && s.src[s.pos] == '{' {
		body, err := s.readBlock('{', '}')
		if err != nil {
			return err
		}
		s.skipSpace()
		if s.pos < len(s.src) && s.src[s.pos] == ';' {
			s.advance(1)
		}
		s.out.Decls = append(s.out.Decls, Decl{Kind: kind, Name: name, Body: body, Line: line})
		return nil
	}
	// Something like an unmarked prototype returning a struct. Skip it.
	if _, err := s.readSpan(); err != nil {
		return err
	}
	s.warnf(line, "skipping unrecognized declaration after tag %q", name)
	return nil
}

func (s *scanner) scanEnum(line int) error {
	s.skipSpace()
	name := s.readWord()
	if name == "" {
		if _, err := s.readSpan(); err != nil {
			return err
		}
		s.warnf(line, "enum declaration without a name")
		return nil
	}
	s.skipSpace()

	// Localized "name : type" underlying-width annotation.
	var underlying string
	if s.pos < len(s.src) && s.src[s.pos] == ':' {
		s.advance(1)
		start := s.pos
		for s.pos < len(s.src) && s.src[s.pos] != '{' && s.src[s.pos] != ';' {
			s.advance(1)
		}
		underlying = strings.TrimSpace(s.src[start:s.pos])
	}

	if s.pos >= len(s.src) || s.src[s.pos] != '{' {
		if _, err := s.readSpan(); err != nil {
			return err
		}
		s.warnf(line, "enum %q without a member block", name)
		return nil
	}
	body, err := s.readBlock('{', '}')
	if err != nil {
		return err
	}
	s.skipSpace()
	if s.pos < len(s.src) && s.src[s.pos] == ';' {
		s.advance(1)
	}
	s.out.Decls = append(s.out.Decls, Decl{Kind: DeclEnum, Name: name, Body: body, Underlying: underlying, Line: line})
	return nil
}

func (s *scanner) scanTypedef(line int) error {
	raw, err := s.readSpan()
	if err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		s.warnf(line, "empty typedef")
		return nil
	}

	if open := strings.IndexByte(raw, '{'); open != -1 {
		// Inline anonymous struct/union/enum body with the alias name
		// after the closing brace.
		close := matchingByte(raw, open, '{', '}')
		if close == -1 {
			return &UnterminatedBlockError{File: s.out.Name, Line: line, Open: "{"}
		}
		head := strings.Fields(raw[:open])
		alias := strings.TrimSpace(raw[close+1:])
		if len(head) == 0 || !isIdent(alias) {
			s.warnf(line, "skipping unrecognized typedef form")
			return nil
		}
		var kind DeclKind
		var underlying string
		switch head[0] {
		case "struct":
			kind = DeclStruct
		case "union":
			kind = DeclUnion
		case "enum":
			kind = DeclEnum
			if colon := strings.IndexByte(raw[:open], ':'); colon != -1 {
				underlying = strings.TrimSpace(raw[colon+1 : open])
			}
		default:
			s.warnf(line, "skipping typedef of unrecognized block kind %q", head[0])
			return nil
		}
		s.out.Decls = append(s.out.Decls, Decl{Kind: kind, Name: alias, Body: raw[open+1 : close], Underlying: underlying, Line: line})
		return nil
	}

	if i := strings.Index(raw, "(*"); i != -1 {
		// Function-pointer typedef: the alias sits inside (*name).
		rest := raw[i+2:]
		j := strings.IndexByte(rest, ')')
		if j == -1 {
			return &UnterminatedBlockError{File: s.out.Name, Line: line, Open: "("}
		}
		alias := strings.TrimSpace(rest[:j])
		if !isIdent(alias) {
			s.warnf(line, "skipping function-pointer typedef with alias %q", alias)
			return nil
		}
		s.out.Decls = append(s.out.Decls, Decl{Kind: DeclTypedef, Name: alias, Underlying: raw, Line: line})
		return nil
	}

	fields := strings.Fields(raw)
	if len(fields) < 2 {
		s.warnf(line, "skipping unrecognized typedef %q", raw)
		return nil
	}
	alias := fields[len(fields)-1]
	underlying := strings.Join(fields[:len(fields)-1], " ")
	for strings.HasPrefix(alias, "*") {
		alias = alias[1:]
		underlying += "*"
	}
	if !isIdent(alias) {
		s.warnf(line, "skipping typedef with non-identifier alias %q", alias)
		return nil
	}
	s.out.Decls = append(s.out.Decls, Decl{Kind: DeclTypedef, Name: alias, Underlying: underlying, Line: line})
	return nil
}

func (s *scanner) scanFunc(line int) error {
	raw, err := s.readSpan()
	if err != nil {
		return err
	}
	open := strings.IndexByte(raw, '(')
	if open == -1 {
		s.warnf(line, "marked declaration without a parameter list")
		return nil
	}
	close := matchingByte(raw, open, '(', ')')
	if close == -1 {
		return &UnterminatedBlockError{File: s.out.Name, Line: line, Open: "("}
	}

	head := strings.Fields(raw[:open])
	if len(head) < 2 {
		s.warnf(line, "marked declaration without a return type")
		return nil
	}
	name := head[len(head)-1]
	ret := strings.Join(head[:len(head)-1], " ")
	for strings.HasPrefix(name, "*") {
		name = name[1:]
		ret += "*"
	}
	if !isIdent(name) {
		s.warnf(line, "skipping marked declaration with non-identifier name %q", name)
		return nil
	}

	var params []string
	for _, p := range splitTop(raw[open+1:close], ',') {
		p = strings.TrimSpace(p)
		if p == "" || p == "void" || p == "..." {
			continue
		}
		params = append(params, p)
	}
	s.out.Decls = append(s.out.Decls, Decl{Kind: DeclFunc, Name: name, Ret: ret, Params: params, Line: line})
	return nil
}

// readSpan consumes text up to the next top-level semicolon, tracking
// brace, paren and bracket depth so nested semicolons are skipped. The
// semicolon itself is consumed and not returned.
func (s *scanner) readSpan() (string, error) {
	start := s.pos
	startLine := s.line
	depth := 0
	var lastOpen byte
	for s.pos < len(s.src) {
		switch c := s.src[s.pos]; c {
		case '{', '(', '[':
			depth++
			lastOpen = c
		case '}', ')', ']':
			depth--
		case ';':
			if depth == 0 {
				span := s.src[start:s.pos]
				s.advance(1)
				return span, nil
			}
		}
		s.advance(1)
	}
	if depth > 0 {
		return "", &UnterminatedBlockError{File: s.out.Name, Line: startLine, Open: string(lastOpen)}
	}
	return s.src[start:s.pos], nil
}

// readBlock consumes a balanced block starting at the open byte and
// returns its inner content.
func (s *scanner) readBlock(open, close byte) (string, error) {
	startLine := s.line
	depth := 0
	start := s.pos + 1
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				body := s.src[start:s.pos]
				s.advance(1)
				return body, nil
			}
		}
		s.advance(1)
	}
	return "", &UnterminatedBlockError{File: s.out.Name, Line: startLine, Open: string(open)}
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.advance(1)
	}
}

func (s *scanner) readWord() string {
	start := s.pos
	for s.pos < len(s.src) && isIdentByte(s.src[s.pos]) {
		s.advance(1)
	}
	return s.src[start:s.pos]
}

func (s *scanner) advance(n int) {
	for i := 0; i < n && s.pos < len(s.src); i++ {
		if s.src[s.pos] == '\n' {
			s.line++
		}
		s.pos++
	}
}

func (s *scanner) warnf(line int, format string, args ...any) {
	s.out.Diags = append(s.out.Diags, Diagnostic{
		File:    s.out.Name,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	})
}

// matchingByte returns the index of the close byte matching the open
// byte at start, or -1.
func matchingByte(s string, start int, open, close byte) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTop splits s on sep at zero paren/brace/bracket depth, so
// function-pointer parameters and array sizes stay intact.
func splitTop(s string, sep byte) []string {
	var parts []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{', '[':
			depth++
		case ')', '}', ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, s[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, s[last:])
	return parts
}

// SplitFields splits a struct/union body on top-level semicolons.
func SplitFields(body string) []string {
	var fields []string
	for _, f := range splitTop(body, ';') {
		f = strings.TrimSpace(f)
		if f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

// SplitMembers splits an enum body on top-level commas.
func SplitMembers(body string) []string {
	var members []string
	for _, m := range splitTop(body, ',') {
		m = strings.TrimSpace(m)
		if m != "" {
			members = append(members, m)
		}
	}
	return members
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}

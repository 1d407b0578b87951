// Package model holds the symbol model built from scanned declarations:
// type entries, field references and exported function signatures.
package model

import "fmt"

type Kind int

const (
	KindStruct Kind = iota
	KindUnion
	KindEnum
	KindTypedef
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindTypedef:
		return "typedef"
	case KindOpaque:
		return "opaque"
	}
	return "unknown"
}

type RefKind int

const (
	RefPrimitive RefKind = iota
	RefNamed
	RefPointer
	RefArray
	RefFunc
)

// Pending marks a named reference whose arena index is not resolved yet.
const Pending = -1

// Primitive describes a C builtin with its canonical spelling, width in
// bits and signedness. Width 0 means void.
type Primitive struct {
	Name   string
	Width  int
	Signed bool
	Float  bool
}

// FieldRef is a tagged reference to a type used inside a declaration.
// Exactly one variant is meaningful per Kind: Prim for RefPrimitive,
// Name/Index for RefNamed, Elem for RefPointer, Elem/Len for RefArray,
// Ret/Params for RefFunc.
type FieldRef struct {
	Kind   RefKind
	Prim   Primitive
	Name   string
	Index  int
	Elem   *FieldRef
	Len    int
	Ret    *FieldRef
	Params []FieldRef
}

func (r FieldRef) String() string {
	switch r.Kind {
	case RefPrimitive:
		return r.Prim.Name
	case RefNamed:
		return r.Name
	case RefPointer:
		return r.Elem.String() + "*"
	case RefArray:
		return fmt.Sprintf("%s[%d]", r.Elem.String(), r.Len)
	case RefFunc:
		return "function pointer"
	}
	return "unknown"
}

type Field struct {
	Name string
	Ref  FieldRef
}

type EnumMember struct {
	Name     string
	Value    int64
	Explicit bool
}

// TypeEntry is one named type in the table. Fields is populated for
// struct/union kinds, Members and Width for enums, Ref for typedefs.
// Opaque entries carry only a name.
type TypeEntry struct {
	Kind      Kind
	Name      string
	Fields    []Field
	Members   []EnumMember
	Width     int
	Signed    bool
	Ref       *FieldRef
	DeclIndex int
}

type Param struct {
	Name string
	Ref  FieldRef
}

type FunctionEntry struct {
	Name     string
	Ret      FieldRef
	Params   []Param
	Exported bool
}

// Table is the symbol table for one run. Entries is an arena indexed by
// interned name; named references hold indexes into it once resolved.
type Table struct {
	Entries []TypeEntry
	Funcs   []FunctionEntry
	byName  map[string]int
}

func NewTable() *Table {
	return &Table{byName: make(map[string]int)}
}

// Lookup returns the arena index for name.
func (t *Table) Lookup(name string) (int, bool) {
	i, ok := t.byName[name]
	return i, ok
}

// Add appends e to the arena and returns its index. If an entry with
// the same name already exists it is overwritten in place, keeping its
// original position and declaration index.
func (t *Table) Add(e TypeEntry) int {
	if i, ok := t.byName[e.Name]; ok {
		e.DeclIndex = t.Entries[i].DeclIndex
		t.Entries[i] = e
		return i
	}
	e.DeclIndex = len(t.Entries)
	t.Entries = append(t.Entries, e)
	t.byName[e.Name] = len(t.Entries) - 1
	return len(t.Entries) - 1
}

// AddFunc appends a function entry. Redeclaring a name overwrites the
// earlier entry.
func (t *Table) AddFunc(f FunctionEntry) {
	for i := range t.Funcs {
		if t.Funcs[i].Name == f.Name {
			t.Funcs[i] = f
			return
		}
	}
	t.Funcs = append(t.Funcs, f)
}

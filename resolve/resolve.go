// Package resolve completes the symbol table built from scanned
// declarations: pending named references get their arena indexes,
// names used only behind pointers become opaque entries, and a
// topological emission order is computed over by-value dependencies.
// Semantic failures are deferred and joined so one run surfaces every
// unresolved name and cycle at once.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Zoophish/auto-ctypes/model"
)

// UnresolvedTypeError reports a by-value use of a type that is never
// fully defined.
type UnresolvedTypeError struct {
	Name   string
	Within string
}

func (e *UnresolvedTypeError) Error() string {
	return fmt.Sprintf("type %q used by value in %s is never defined", e.Name, e.Within)
}

// CyclicValueDependencyError reports types embedding each other by
// value; no layout order exists for them.
type CyclicValueDependencyError struct {
	Cycle []string
}

func (e *CyclicValueDependencyError) Error() string {
	return fmt.Sprintf("cyclic by-value dependency: %s", strings.Join(e.Cycle, " -> "))
}

// Resolve annotates the table in place and returns the emission order
// as arena indexes. After a nil-error return the table is complete:
// every named reference carries a valid index.
func Resolve(t *model.Table) ([]int, error) {
	r := &resolver{table: t, seen: make(map[string]bool)}

	// First pass: classify referenced-but-undefined names. Pointer-only
	// uses become opaque entries; by-value uses are fatal. Names are
	// kept in first-reference order so arena positions, and with them
	// the emission order, are identical across runs.
	valueUse := make(map[string]string)
	var valueOrder []string
	ptrUse := make(map[string]bool)
	var ptrOrder []string
	r.walk(func(ref *model.FieldRef, byValue bool, within string) {
		if ref.Kind != model.RefNamed {
			return
		}
		if _, ok := t.Lookup(ref.Name); ok {
			return
		}
		if byValue {
			if _, dup := valueUse[ref.Name]; !dup {
				valueUse[ref.Name] = within
				valueOrder = append(valueOrder, ref.Name)
			}
		} else if !ptrUse[ref.Name] {
			ptrUse[ref.Name] = true
			ptrOrder = append(ptrOrder, ref.Name)
		}
	})
	for _, name := range ptrOrder {
		if _, fatal := valueUse[name]; !fatal {
			t.Add(model.TypeEntry{Kind: model.KindOpaque, Name: name})
		}
	}

	var errs []error
	for _, name := range valueOrder {
		errs = append(errs, &UnresolvedTypeError{Name: name, Within: valueUse[name]})
	}

	// Second pass: bind indexes and reject by-value uses of opaque
	// entries, which are declared but have no known layout. Typedef
	// chains are followed so an alias of an opaque type is still
	// rejected when embedded by value.
	r.walk(func(ref *model.FieldRef, byValue bool, within string) {
		if ref.Kind != model.RefNamed {
			return
		}
		i, ok := t.Lookup(ref.Name)
		if !ok {
			return // already reported above
		}
		ref.Index = i
		if !byValue {
			return
		}
		if leaf := r.chase(i); leaf >= 0 && t.Entries[leaf].Kind == model.KindOpaque {
			name := t.Entries[leaf].Name
			if !r.seen[name+"\x00"+within] {
				r.seen[name+"\x00"+within] = true
				errs = append(errs, &UnresolvedTypeError{Name: name, Within: within})
			}
		}
	})

	order, err := r.emissionOrder()
	if err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return order, nil
}

type resolver struct {
	table *model.Table
	seen  map[string]bool
}

// walk visits every field reference in the table, flagging whether the
// use embeds the target's storage by value. Pointer and function
// references cut the by-value context; arrays preserve it.
func (r *resolver) walk(fn func(ref *model.FieldRef, byValue bool, within string)) {
	var visit func(ref *model.FieldRef, byValue bool, within string)
	visit = func(ref *model.FieldRef, byValue bool, within string) {
		fn(ref, byValue, within)
		switch ref.Kind {
		case model.RefPointer:
			visit(ref.Elem, false, within)
		case model.RefArray:
			visit(ref.Elem, byValue, within)
		case model.RefFunc:
			visit(ref.Ret, false, within)
			for i := range ref.Params {
				visit(&ref.Params[i], false, within)
			}
		}
	}

	for i := range r.table.Entries {
		e := &r.table.Entries[i]
		within := fmt.Sprintf("%s %s", e.Kind, e.Name)
		for j := range e.Fields {
			visit(&e.Fields[j].Ref, true, within)
		}
		if e.Ref != nil {
			// An alias alone embeds nothing; `typedef struct Foo Foo;`
			// over a never-defined tag is the ordinary opaque-handle
			// idiom and must stay legal.
			visit(e.Ref, false, within)
		}
	}
	for i := range r.table.Funcs {
		f := &r.table.Funcs[i]
		within := fmt.Sprintf("function %s", f.Name)
		visit(&f.Ret, true, within)
		for j := range f.Params {
			visit(&f.Params[j].Ref, true, within)
		}
	}
}

// chase follows by-value typedef chains from entry i to the entry
// whose storage would actually be embedded. It returns -1 when the
// chain ends in a primitive, pointer or function reference, or does
// not terminate.
func (r *resolver) chase(i int) int {
	for hops := 0; hops <= len(r.table.Entries); hops++ {
		e := &r.table.Entries[i]
		if e.Kind != model.KindTypedef {
			return i
		}
		ref := e.Ref
		for ref != nil && ref.Kind == model.RefArray {
			ref = ref.Elem
		}
		if ref == nil || ref.Kind != model.RefNamed {
			return -1
		}
		next, ok := r.table.Lookup(ref.Name)
		if !ok {
			return -1
		}
		i = next
	}
	return -1
}

// valueDeps returns the arena indexes entry i depends on by value.
func (r *resolver) valueDeps(i int) []int {
	var deps []int
	add := func(idx int) {
		for _, d := range deps {
			if d == idx {
				return
			}
		}
		deps = append(deps, idx)
	}
	var visit func(ref *model.FieldRef, byValue bool)
	visit = func(ref *model.FieldRef, byValue bool) {
		switch ref.Kind {
		case model.RefNamed:
			if byValue && ref.Index >= 0 {
				add(ref.Index)
			}
		case model.RefPointer:
			visit(ref.Elem, false)
		case model.RefArray:
			visit(ref.Elem, byValue)
		case model.RefFunc:
			// Signature references never force layout ordering.
		}
	}
	e := &r.table.Entries[i]
	for j := range e.Fields {
		visit(&e.Fields[j].Ref, true)
	}
	if e.Ref != nil {
		visit(e.Ref, true)
	}
	return deps
}

// emissionOrder is a Kahn sort over by-value edges with declaration
// order as the tie-break, so identical input always yields identical
// output.
func (r *resolver) emissionOrder() ([]int, error) {
	n := len(r.table.Entries)
	deps := make([][]int, n)
	for i := 0; i < n; i++ {
		deps[i] = r.valueDeps(i)
	}

	done := make([]bool, n)
	var order []int
	for len(order) < n {
		progressed := false
		for i := 0; i < n; i++ {
			if done[i] {
				continue
			}
			ready := true
			for _, d := range deps[i] {
				if !done[d] {
					ready = false
					break
				}
			}
			if ready {
				done[i] = true
				order = append(order, i)
				progressed = true
			}
		}
		if !progressed {
			return nil, r.findCycle(deps, done)
		}
	}
	return order, nil
}

// findCycle walks the unfinished nodes to name one by-value cycle.
func (r *resolver) findCycle(deps [][]int, done []bool) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(deps))
	var stack []int
	var cycle []string

	var dfs func(i int) bool
	dfs = func(i int) bool {
		color[i] = gray
		stack = append(stack, i)
		for _, d := range deps[i] {
			if done[d] {
				continue
			}
			if color[d] == gray {
				start := 0
				for k, s := range stack {
					if s == d {
						start = k
						break
					}
				}
				for _, s := range stack[start:] {
					cycle = append(cycle, r.table.Entries[s].Name)
				}
				cycle = append(cycle, r.table.Entries[d].Name)
				return true
			}
			if color[d] == white && dfs(d) {
				return true
			}
		}
		stack = stack[:len(stack)-1]
		color[i] = black
		return false
	}

	for i := range deps {
		if !done[i] && color[i] == white && dfs(i) {
			return &CyclicValueDependencyError{Cycle: cycle}
		}
	}
	return &CyclicValueDependencyError{Cycle: nil}
}

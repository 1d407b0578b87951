// Package generator renders a resolved symbol table into a Python
// ctypes module. Classes for structs and unions are declared first and
// their _fields_ assigned afterwards in emission order, so pointer-only
// reference cycles render legally while by-value dependencies are
// always defined before use.
package generator

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Zoophish/auto-ctypes/model"
)

type Generator struct {
	moduleName string
	libPath    string
	table      *model.Table
	order      []int
}

// New builds a generator for one resolved table. order is the emission
// order produced by the resolver.
func New(moduleName, libPath string, table *model.Table, order []int) *Generator {
	return &Generator{
		moduleName: moduleName,
		libPath:    libPath,
		table:      table,
		order:      order,
	}
}

// Generate returns the output files keyed by path relative to the
// output directory. With single set, one flat module file is produced;
// otherwise a package directory with an initializer.
func (g *Generator) Generate(single bool) (map[string]string, error) {
	content, err := g.generateModule()
	if err != nil {
		return nil, err
	}
	if single {
		return map[string]string{g.moduleName + ".py": content}, nil
	}
	return map[string]string{
		g.moduleName + "/" + g.moduleName + ".py": content,
		g.moduleName + "/__init__.py":             "",
	}, nil
}

var headerTmpl = template.Must(template.New("header").Parse(`# generated by auto-ctypes
import ctypes
import os.path

__bin_path = os.path.normpath(r'{{.LibPath}}')
__clib = ctypes.CDLL(__bin_path)
`))

func (g *Generator) generateModule() (string, error) {
	var buf bytes.Buffer

	err := headerTmpl.Execute(&buf, map[string]string{"LibPath": g.libPath})
	if err != nil {
		return "", err
	}

	for _, i := range g.order {
		if g.table.Entries[i].Kind == model.KindEnum {
			g.writeEnum(&buf, &g.table.Entries[i])
		}
	}

	for _, i := range g.order {
		e := &g.table.Entries[i]
		switch e.Kind {
		case model.KindStruct, model.KindOpaque:
			fmt.Fprintf(&buf, "\n\nclass %s(ctypes.Structure):\n    pass\n", e.Name)
		case model.KindUnion:
			fmt.Fprintf(&buf, "\n\nclass %s(ctypes.Union):\n    pass\n", e.Name)
		}
	}

	// Typedef aliases before any _fields_ assignment: a pointer field
	// may reference an alias declared later in the header, and pointers
	// create no ordering edge. Alias targets are only primitives, enum
	// ctypes, other aliases or the classes already declared above.
	for _, i := range g.order {
		e := &g.table.Entries[i]
		if e.Kind == model.KindTypedef {
			fmt.Fprintf(&buf, "\n%s = %s\n", e.Name, g.ctypeStr(*e.Ref))
		}
	}

	for _, i := range g.order {
		e := &g.table.Entries[i]
		if e.Kind == model.KindStruct || e.Kind == model.KindUnion {
			g.writeFields(&buf, e)
		}
	}

	for _, fn := range g.table.Funcs {
		g.writeFunc(&buf, fn)
	}

	return buf.String(), nil
}

func (g *Generator) writeEnum(buf *bytes.Buffer, e *model.TypeEntry) {
	fmt.Fprintf(buf, "\n\nclass %s:\n", e.Name)
	if len(e.Members) == 0 {
		fmt.Fprintf(buf, "    pass\n")
		return
	}
	for _, m := range e.Members {
		fmt.Fprintf(buf, "    %s = %d\n", m.Name, m.Value)
	}
}

func (g *Generator) writeFields(buf *bytes.Buffer, e *model.TypeEntry) {
	if len(e.Fields) == 0 {
		return
	}
	fmt.Fprintf(buf, "\n%s._fields_ = [\n", e.Name)
	for _, f := range e.Fields {
		fmt.Fprintf(buf, "    (\"%s\", %s),\n", f.Name, g.ctypeStr(f.Ref))
	}
	fmt.Fprintf(buf, "]\n")
}

func (g *Generator) writeFunc(buf *bytes.Buffer, fn model.FunctionEntry) {
	ret := g.ctypeStr(fn.Ret)

	var sig, args, types bytes.Buffer
	for i, p := range fn.Params {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		t := g.ctypeStr(p.Ref)
		if i > 0 {
			sig.WriteString(", ")
			args.WriteString(", ")
			types.WriteString(", ")
		}
		fmt.Fprintf(&sig, "%s: %s", name, t)
		args.WriteString(name)
		types.WriteString(t)
	}

	fmt.Fprintf(buf, "\n\n__clib.%s.restype = %s\n", fn.Name, ret)
	fmt.Fprintf(buf, "__clib.%s.argtypes = [%s]\n", fn.Name, types.String())
	if ret == "None" {
		fmt.Fprintf(buf, "def %s(%s):\n", fn.Name, sig.String())
		fmt.Fprintf(buf, "    __clib.%s(%s)\n", fn.Name, args.String())
		return
	}
	fmt.Fprintf(buf, "def %s(%s) -> %s:\n", fn.Name, sig.String(), ret)
	fmt.Fprintf(buf, "    return __clib.%s(%s)\n", fn.Name, args.String())
}

// ctypeStr renders one resolved reference as a Python ctypes
// expression.
func (g *Generator) ctypeStr(ref model.FieldRef) string {
	switch ref.Kind {
	case model.RefPrimitive:
		return primitiveCtype(ref.Prim)

	case model.RefNamed:
		e := &g.table.Entries[ref.Index]
		if e.Kind == model.KindEnum {
			return enumCtype(e)
		}
		return e.Name

	case model.RefPointer:
		if ref.Elem.Kind == model.RefPrimitive {
			switch ref.Elem.Prim.Name {
			case "char":
				return "ctypes.c_char_p"
			case "void":
				return "ctypes.c_void_p"
			case "wchar":
				return "ctypes.c_wchar_p"
			}
		}
		return fmt.Sprintf("ctypes.POINTER(%s)", g.ctypeStr(*ref.Elem))

	case model.RefArray:
		return fmt.Sprintf("(%s * %d)", g.ctypeStr(*ref.Elem), ref.Len)

	case model.RefFunc:
		s := fmt.Sprintf("ctypes.CFUNCTYPE(%s", g.ctypeStr(*ref.Ret))
		for _, p := range ref.Params {
			s += ", " + g.ctypeStr(p)
		}
		return s + ")"
	}
	return "None"
}

func primitiveCtype(p model.Primitive) string {
	switch p.Name {
	case "void":
		return "None"
	case "bool":
		return "ctypes.c_bool"
	case "char":
		return "ctypes.c_char"
	case "unsigned char":
		return "ctypes.c_ubyte"
	case "wchar":
		return "ctypes.c_wchar"
	case "short":
		return "ctypes.c_short"
	case "unsigned short":
		return "ctypes.c_ushort"
	case "int":
		return "ctypes.c_int"
	case "unsigned int":
		return "ctypes.c_uint"
	case "long":
		return "ctypes.c_long"
	case "unsigned long":
		return "ctypes.c_ulong"
	case "long long":
		return "ctypes.c_longlong"
	case "unsigned long long":
		return "ctypes.c_ulonglong"
	case "float":
		return "ctypes.c_float"
	case "double":
		return "ctypes.c_double"
	case "size_t":
		return "ctypes.c_size_t"
	case "int8_t":
		return "ctypes.c_int8"
	case "uint8_t":
		return "ctypes.c_uint8"
	case "int16_t":
		return "ctypes.c_int16"
	case "uint16_t":
		return "ctypes.c_uint16"
	case "int32_t":
		return "ctypes.c_int32"
	case "uint32_t":
		return "ctypes.c_uint32"
	case "int64_t":
		return "ctypes.c_int64"
	case "uint64_t":
		return "ctypes.c_uint64"
	}
	return "ctypes.c_int"
}

// enumCtype picks the integer ctype for an enum per its resolved
// underlying width. The plain C enum maps to c_int.
func enumCtype(e *model.TypeEntry) string {
	if e.Width == 32 && e.Signed {
		return "ctypes.c_int"
	}
	switch {
	case e.Width == 8 && e.Signed:
		return "ctypes.c_int8"
	case e.Width == 8:
		return "ctypes.c_uint8"
	case e.Width == 16 && e.Signed:
		return "ctypes.c_int16"
	case e.Width == 16:
		return "ctypes.c_uint16"
	case e.Width == 32:
		return "ctypes.c_uint32"
	case e.Width == 64 && e.Signed:
		return "ctypes.c_int64"
	case e.Width == 64:
		return "ctypes.c_uint64"
	}
	return "ctypes.c_int"
}

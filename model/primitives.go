package model

// primitives maps canonical C spellings to their width and signedness.
// Multi-word spellings are normalized before lookup, so "unsigned int"
// and "unsigned" both land on the same row.
var primitives = map[string]Primitive{
	"void":               {Name: "void"},
	"bool":               {Name: "bool", Width: 8},
	"char":               {Name: "char", Width: 8, Signed: true},
	"signed char":        {Name: "char", Width: 8, Signed: true},
	"unsigned char":      {Name: "unsigned char", Width: 8},
	"wchar":              {Name: "wchar", Width: 16},
	"wchar_t":            {Name: "wchar", Width: 16},
	"short":              {Name: "short", Width: 16, Signed: true},
	"unsigned short":     {Name: "unsigned short", Width: 16},
	"int":                {Name: "int", Width: 32, Signed: true},
	"signed":             {Name: "int", Width: 32, Signed: true},
	"unsigned":           {Name: "unsigned int", Width: 32},
	"unsigned int":       {Name: "unsigned int", Width: 32},
	"long":               {Name: "long", Width: 64, Signed: true},
	"unsigned long":      {Name: "unsigned long", Width: 64},
	"long long":          {Name: "long long", Width: 64, Signed: true},
	"unsigned long long": {Name: "unsigned long long", Width: 64},
	"float":              {Name: "float", Width: 32, Signed: true, Float: true},
	"double":             {Name: "double", Width: 64, Signed: true, Float: true},
	"size_t":             {Name: "size_t", Width: 64},
	"int8_t":             {Name: "int8_t", Width: 8, Signed: true},
	"uint8_t":            {Name: "uint8_t", Width: 8},
	"int16_t":            {Name: "int16_t", Width: 16, Signed: true},
	"uint16_t":           {Name: "uint16_t", Width: 16},
	"int32_t":            {Name: "int32_t", Width: 32, Signed: true},
	"uint32_t":           {Name: "uint32_t", Width: 32},
	"int64_t":            {Name: "int64_t", Width: 64, Signed: true},
	"uint64_t":           {Name: "uint64_t", Width: 64},
}

// LookupPrimitive resolves a normalized base-type spelling against the
// fixed primitive table.
func LookupPrimitive(name string) (Primitive, bool) {
	p, ok := primitives[name]
	return p, ok
}

package types

import (
	"strconv"
	"strings"
)

// Scalar describes a C arithmetic type on an LP64 target.
type Scalar struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Signed bool   `json:"signed"`
	Float  bool   `json:"float,omitempty"`
	Bool   bool   `json:"bool,omitempty"`
	// Min and Max are decimal strings so that uint64 fits.
	Min string `json:"min"`
	Max string `json:"max"`
}

func intScalar(name string, size int, signed bool) Scalar {
	bits := uint(size * 8)
	if signed {
		hi := int64(uint64(1)<<(bits-1) - 1)
		lo := -hi - 1
		return Scalar{Name: name, Size: size, Signed: true, Min: strconv.FormatInt(lo, 10), Max: strconv.FormatInt(hi, 10)}
	}
	hi := ^uint64(0)
	if bits < 64 {
		hi = uint64(1)<<bits - 1
	}
	return Scalar{Name: name, Size: size, Min: "0", Max: strconv.FormatUint(hi, 10)}
}

var scalars = map[string]Scalar{
	"char":               intScalar("char", 1, true),
	"signed char":        intScalar("signed char", 1, true),
	"unsigned char":      intScalar("unsigned char", 1, false),
	"short":              intScalar("short", 2, true),
	"unsigned short":     intScalar("unsigned short", 2, false),
	"int":                intScalar("int", 4, true),
	"unsigned int":       intScalar("unsigned int", 4, false),
	"long":               intScalar("long", 8, true),
	"unsigned long":      intScalar("unsigned long", 8, false),
	"long long":          intScalar("long long", 8, true),
	"unsigned long long": intScalar("unsigned long long", 8, false),
	"int8_t":             intScalar("int8_t", 1, true),
	"uint8_t":            intScalar("uint8_t", 1, false),
	"int16_t":            intScalar("int16_t", 2, true),
	"uint16_t":           intScalar("uint16_t", 2, false),
	"int32_t":            intScalar("int32_t", 4, true),
	"uint32_t":           intScalar("uint32_t", 4, false),
	"int64_t":            intScalar("int64_t", 8, true),
	"uint64_t":           intScalar("uint64_t", 8, false),
	"size_t":             intScalar("size_t", 8, false),
	"ssize_t":            intScalar("ssize_t", 8, true),
	"ptrdiff_t":          intScalar("ptrdiff_t", 8, true),
	"intptr_t":           intScalar("intptr_t", 8, true),
	"uintptr_t":          intScalar("uintptr_t", 8, false),
	"bool":               {Name: "bool", Size: 1, Bool: true, Min: "0", Max: "1"},
	"_Bool":              {Name: "_Bool", Size: 1, Bool: true, Min: "0", Max: "1"},
	"float":              {Name: "float", Size: 4, Signed: true, Float: true, Min: "-3.402823e+38", Max: "3.402823e+38"},
	"double":             {Name: "double", Size: 8, Signed: true, Float: true, Min: "-1.797693e+308", Max: "1.797693e+308"},
	"long double":        {Name: "long double", Size: 16, Signed: true, Float: true, Min: "-1.797693e+308", Max: "1.797693e+308"},
}

var typeAliases = map[string]string{
	"signed":                 "int",
	"signed int":             "int",
	"unsigned":               "unsigned int",
	"short int":              "short",
	"signed short":           "short",
	"signed short int":       "short",
	"short signed":           "short",
	"unsigned short int":     "unsigned short",
	"short unsigned":         "unsigned short",
	"long int":               "long",
	"signed long":            "long",
	"signed long int":        "long",
	"unsigned long int":      "unsigned long",
	"long unsigned":          "unsigned long",
	"long long int":          "long long",
	"signed long long":       "long long",
	"signed long long int":   "long long",
	"unsigned long long int": "unsigned long long",
	"char signed":            "signed char",
	"char unsigned":          "unsigned char",
}

// NormalizeTypeName strips qualifiers and storage classes from a written
// type and maps spelling variants to one canonical name.
func NormalizeTypeName(t string) string {
	var words []string
	for _, w := range strings.Fields(strings.ReplaceAll(t, "*", " ")) {
		switch w {
		case "const", "volatile", "static", "extern", "register", "auto", "restrict", "inline":
			continue
		}
		words = append(words, w)
	}
	name := strings.Join(words, " ")
	if alias, ok := typeAliases[name]; ok {
		return alias
	}
	return name
}

// LookupScalar returns the arithmetic type information for a written type.
func LookupScalar(t string) (Scalar, bool) {
	s, ok := scalars[NormalizeTypeName(t)]
	return s, ok
}

// PointerSize is the size of a data pointer.
const PointerSize = 8

// TypeSize returns the size in bytes of a written type, or 0 when unknown.
func TypeSize(t string) int {
	name := NormalizeTypeName(t)
	if s, ok := scalars[name]; ok {
		return s.Size
	}
	if strings.HasPrefix(name, "enum ") {
		return 4
	}
	return 0
}

// ResolveTypedefs follows typedef aliases in typedefs until a type that is
// not an alias is reached. Chains longer than 16 stop where they are.
func ResolveTypedefs(t string, typedefs map[string]string) string {
	for i := 0; i < 16; i++ {
		next, ok := typedefs[NormalizeTypeName(t)]
		if !ok {
			return t
		}
		t = next
	}
	return t
}

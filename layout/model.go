package layout

import (
	"runtime"
	"strings"
	"unsafe"

	"github.com/wippyai/nativebind/errors"
)

// Model is a C data model. It fixes the sizes of pointers and of long;
// every other C type has the same size across supported models.
type Model struct {
	Name        string
	PointerSize uint64
	LongSize    uint64
}

var (
	LP64  = Model{Name: "LP64", PointerSize: 8, LongSize: 8}
	ILP32 = Model{Name: "ILP32", PointerSize: 4, LongSize: 4}
	LLP64 = Model{Name: "LLP64", PointerSize: 8, LongSize: 4}
)

// Host returns the data model of the running process.
func Host() Model {
	if unsafe.Sizeof(uintptr(0)) == 4 {
		return ILP32
	}
	if runtime.GOOS == "windows" {
		return LLP64
	}
	return LP64
}

// Pointer returns an untyped pointer layout.
func (m Model) Pointer() Layout {
	return Layout{Kind: KindPointer, Class: ClassAddress, size: m.PointerSize, align: m.PointerSize}
}

// PointerTo returns a pointer layout that records its pointee.
func (m Model) PointerTo(target Layout) Layout {
	p := m.Pointer()
	p.target = &target
	return p
}

func (m Model) long(signed bool) Layout {
	if m.LongSize == 4 {
		if signed {
			return Int32
		}
		return Uint32
	}
	if signed {
		return Int64
	}
	return Uint64
}

func (m Model) sizeT() Layout {
	if m.PointerSize == 4 {
		return Uint32
	}
	return Uint64
}

func (m Model) ssizeT() Layout {
	if m.PointerSize == 4 {
		return Int32
	}
	return Int64
}

// CType returns the layout of a C scalar type name such as "int",
// "unsigned long", "size_t", "double" or "pointer". Names are
// whitespace-normalized; "void*" and "T*" are accepted as pointers.
func (m Model) CType(name string) (Layout, error) {
	n := strings.Join(strings.Fields(name), " ")
	if strings.HasSuffix(n, "*") {
		return m.Pointer(), nil
	}

	var l Layout
	switch n {
	case "char", "signed char", "int8_t", "int8":
		l = Int8
	case "unsigned char", "uint8_t", "uint8", "byte":
		l = Uint8
	case "short", "short int", "signed short", "int16_t", "int16":
		l = Int16
	case "unsigned short", "unsigned short int", "uint16_t", "uint16":
		l = Uint16
	case "int", "signed", "signed int", "int32_t", "int32":
		l = Int32
	case "unsigned", "unsigned int", "uint32_t", "uint32":
		l = Uint32
	case "long", "long int", "signed long":
		l = m.long(true)
	case "unsigned long", "unsigned long int":
		l = m.long(false)
	case "long long", "long long int", "signed long long", "int64_t", "int64":
		l = Int64
	case "unsigned long long", "unsigned long long int", "uint64_t", "uint64":
		l = Uint64
	case "size_t", "uintptr_t":
		l = m.sizeT()
	case "ssize_t", "ptrdiff_t", "intptr_t":
		l = m.ssizeT()
	case "float", "float32":
		l = Float32
	case "double", "float64":
		l = Float64
	case "bool", "_Bool":
		l = Bool
	case "pointer", "void*":
		return m.Pointer(), nil
	default:
		return Layout{}, errors.NotFound(errors.PhaseLayout, "C type", name)
	}
	l.label = n
	return l, nil
}

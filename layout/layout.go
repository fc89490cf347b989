package layout

import (
	"fmt"
	"strings"

	"github.com/wippyai/nativebind/errors"
)

// Kind identifies the variant of a Layout.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindPointer
	KindArray
	KindStruct
	KindPadding
)

var kindNames = [...]string{
	KindPrimitive: "primitive",
	KindPointer:   "pointer",
	KindArray:     "array",
	KindStruct:    "struct",
	KindPadding:   "padding",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Class is the machine value class of a scalar layout. It decides how a
// value is carried in a register word.
type Class uint8

const (
	ClassNone Class = iota
	ClassSigned
	ClassUnsigned
	ClassFloat
	ClassBool
	ClassAddress
)

var classNames = [...]string{
	ClassNone:     "none",
	ClassSigned:   "signed",
	ClassUnsigned: "unsigned",
	ClassFloat:    "float",
	ClassBool:     "bool",
	ClassAddress:  "address",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// Layout describes the memory shape of a value. The zero value is not a
// valid layout; use the predeclared primitives and the constructors.
type Layout struct {
	elem    *Layout
	target  *Layout
	Name    string
	label   string
	members []Member
	size    uint64
	align   uint64
	count   uint64
	Kind    Kind
	Class   Class
}

// Member is a layout placed at a byte offset inside a structure.
type Member struct {
	Layout
	Offset uint64
}

// Predeclared primitives. Sizes equal alignments.
var (
	Int8    = primitive("int8", ClassSigned, 1)
	Uint8   = primitive("uint8", ClassUnsigned, 1)
	Int16   = primitive("int16", ClassSigned, 2)
	Uint16  = primitive("uint16", ClassUnsigned, 2)
	Int32   = primitive("int32", ClassSigned, 4)
	Uint32  = primitive("uint32", ClassUnsigned, 4)
	Int64   = primitive("int64", ClassSigned, 8)
	Uint64  = primitive("uint64", ClassUnsigned, 8)
	Float32 = primitive("float32", ClassFloat, 4)
	Float64 = primitive("float64", ClassFloat, 8)
	Bool    = primitive("bool", ClassBool, 1)
)

func primitive(label string, class Class, size uint64) Layout {
	return Layout{Kind: KindPrimitive, Class: class, label: label, size: size, align: size}
}

// Primitive creates a scalar layout with an explicit size and alignment.
func Primitive(label string, class Class, size, align uint64) (Layout, error) {
	if size == 0 || align == 0 || align&(align-1) != 0 {
		return Layout{}, errors.InvalidInput(errors.PhaseLayout,
			fmt.Sprintf("primitive %s: invalid size %d / alignment %d", label, size, align))
	}
	return Layout{Kind: KindPrimitive, Class: class, label: label, size: size, align: align}, nil
}

// Padding creates a synthetic padding layout of n bytes.
func Padding(n uint64) Layout {
	return Layout{Kind: KindPadding, label: "pad", size: n, align: 1}
}

// Array creates a layout of count consecutive elements.
func Array(elem Layout, count uint64) (Layout, error) {
	l := Layout{Kind: KindArray, elem: &elem, count: count}
	size, align, err := Measure(l)
	if err != nil {
		return Layout{}, err
	}
	l.size, l.align = size, align
	return l, nil
}

// Size returns the size in bytes.
func (l Layout) Size() uint64 { return l.size }

// Align returns the alignment in bytes.
func (l Layout) Align() uint64 { return l.align }

// Elem returns the element layout of an array.
func (l Layout) Elem() (Layout, bool) {
	if l.elem == nil {
		return Layout{}, false
	}
	return *l.elem, true
}

// Count returns the element count of an array.
func (l Layout) Count() uint64 { return l.count }

// Target returns the pointee layout of a pointer, if one was declared.
func (l Layout) Target() (Layout, bool) {
	if l.target == nil {
		return Layout{}, false
	}
	return *l.target, true
}

// Members returns the structure members including padding.
func (l Layout) Members() []Member {
	out := make([]Member, len(l.members))
	copy(out, l.members)
	return out
}

// Fields returns the structure members excluding padding.
func (l Layout) Fields() []Member {
	out := make([]Member, 0, len(l.members))
	for _, m := range l.members {
		if m.Kind != KindPadding {
			out = append(out, m)
		}
	}
	return out
}

// Offset returns the byte offset of the named field.
func (l Layout) Offset(name string) (uint64, bool) {
	for _, m := range l.members {
		if m.Kind != KindPadding && m.Name == name {
			return m.Offset, true
		}
	}
	return 0, false
}

// Field returns the named field.
func (l Layout) Field(name string) (Member, bool) {
	for _, m := range l.members {
		if m.Kind != KindPadding && m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// WithName returns a copy of l carrying the given field name.
func (l Layout) WithName(name string) Layout {
	l.Name = name
	return l
}

// IsScalar reports whether the layout fits in a single register word.
func (l Layout) IsScalar() bool {
	return (l.Kind == KindPrimitive || l.Kind == KindPointer) && l.size <= 8
}

// TypeName returns the type of the layout without its field name.
func (l Layout) TypeName() string {
	switch l.Kind {
	case KindPrimitive:
		return l.label
	case KindPadding:
		return fmt.Sprintf("pad%d", l.size)
	case KindPointer:
		if l.target != nil {
			return "*" + l.target.TypeName()
		}
		return "pointer"
	case KindArray:
		return fmt.Sprintf("[%d]%s", l.count, l.elem.TypeName())
	case KindStruct:
		if l.label != "" {
			return "struct " + l.label
		}
		parts := make([]string, 0, len(l.members))
		for _, m := range l.members {
			if m.Kind == KindPadding {
				parts = append(parts, m.TypeName())
				continue
			}
			parts = append(parts, m.Name+" "+m.TypeName())
		}
		return "struct{" + strings.Join(parts, "; ") + "}"
	}
	return "invalid"
}

func (l Layout) String() string {
	if l.Name != "" {
		return l.Name + " " + l.TypeName()
	}
	return l.TypeName()
}

// Measure recomputes the size and alignment of l from its parts.
// It is the single source of truth for aggregate sizes and checks every
// structural invariant on the way: member offsets are aligned and in order,
// and a structure's size is a multiple of its alignment.
func Measure(l Layout) (size, align uint64, err error) {
	switch l.Kind {
	case KindPrimitive, KindPointer:
		if l.align == 0 || l.size == 0 {
			return 0, 0, errors.InvalidInput(errors.PhaseLayout, "scalar layout with zero size or alignment")
		}
		return l.size, l.align, nil

	case KindPadding:
		return l.size, 1, nil

	case KindArray:
		if l.elem == nil {
			return 0, 0, errors.InvalidInput(errors.PhaseLayout, "array without element layout")
		}
		es, ea, err := Measure(*l.elem)
		if err != nil {
			return 0, 0, err
		}
		total, ok := safeMul(es, l.count)
		if !ok {
			return 0, 0, errors.LayoutOverflow(nameOf(l),
				fmt.Sprintf("array of %d x %d bytes overflows", l.count, es))
		}
		return total, ea, nil

	case KindStruct:
		if len(l.members) == 0 {
			return 0, 0, errors.InvalidInput(errors.PhaseLayout, "struct has no fields")
		}
		var offset uint64
		maxAlign := uint64(1)
		for _, m := range l.members {
			ms, ma, err := Measure(m.Layout)
			if err != nil {
				return 0, 0, err
			}
			if m.Offset != offset {
				return 0, 0, errors.InvalidInput(errors.PhaseLayout,
					fmt.Sprintf("member %q at offset %d, expected %d", m.Name, m.Offset, offset))
			}
			if m.Offset%ma != 0 {
				return 0, 0, errors.InvalidInput(errors.PhaseLayout,
					fmt.Sprintf("member %q at offset %d violates alignment %d", m.Name, m.Offset, ma))
			}
			next, ok := safeAdd(offset, ms)
			if !ok {
				return 0, 0, errors.LayoutOverflow(append(nameOf(l), m.Name), "struct size overflows")
			}
			offset = next
			if ma > maxAlign {
				maxAlign = ma
			}
		}
		if offset%maxAlign != 0 {
			return 0, 0, errors.InvalidInput(errors.PhaseLayout,
				fmt.Sprintf("struct size %d is not a multiple of alignment %d", offset, maxAlign))
		}
		return offset, maxAlign, nil
	}
	return 0, 0, errors.InvalidInput(errors.PhaseLayout, "unknown layout kind "+l.Kind.String())
}

func nameOf(l Layout) []string {
	if l.Name == "" {
		return nil
	}
	return []string{l.Name}
}

package layout

import (
	"fmt"

	"github.com/wippyai/nativebind/errors"
)

// Field is a named layout to be placed in a structure.
type Field struct {
	Name   string
	Layout Layout
}

// F is shorthand for Field{Name: name, Layout: l}.
func F(name string, l Layout) Field {
	return Field{Name: name, Layout: l}
}

// Struct lays out fields in order with C alignment rules.
func Struct(fields ...Field) (Layout, error) {
	return NamedStruct("", fields...)
}

// NamedStruct is Struct with a type name used when printing the layout.
func NamedStruct(typeName string, fields ...Field) (Layout, error) {
	b := NewBuilder(typeName)
	for _, f := range fields {
		b.Add(f.Name, f.Layout)
	}
	return b.Build()
}

// Builder accumulates structure fields.
type Builder struct {
	typeName string
	fields   []Field
}

// NewBuilder creates a structure builder. typeName may be empty.
func NewBuilder(typeName string) *Builder {
	return &Builder{typeName: typeName}
}

// Add appends a field.
func (b *Builder) Add(name string, l Layout) *Builder {
	b.fields = append(b.fields, Field{Name: name, Layout: l})
	return b
}

// Build places the fields and returns the structure layout.
//
// For each field, padding = offset % align; a non-zero remainder inserts
// align-padding bytes of padding before the field. Trailing padding makes
// the size a multiple of the largest field alignment.
func (b *Builder) Build() (Layout, error) {
	if len(b.fields) == 0 {
		return Layout{}, errors.New(errors.PhaseLayout, errors.KindInvalidInput).
			Path(b.path()...).
			Detail("struct has no fields").
			Build()
	}

	members := make([]Member, 0, len(b.fields)*2)
	seen := make(map[string]struct{}, len(b.fields))
	var offset uint64
	maxAlign := uint64(0)

	for _, f := range b.fields {
		if f.Layout.Kind == KindPadding {
			return Layout{}, errors.InvalidInput(errors.PhaseLayout, "padding is inserted by the builder, not declared")
		}
		if f.Name != "" {
			if _, dup := seen[f.Name]; dup {
				return Layout{}, errors.New(errors.PhaseLayout, errors.KindDuplicate).
					Path(append(b.path(), f.Name)...).
					Detail("duplicate field").
					Build()
			}
			seen[f.Name] = struct{}{}
		}

		align := f.Layout.Align()
		if align == 0 {
			return Layout{}, errors.New(errors.PhaseLayout, errors.KindInvalidInput).
				Path(append(b.path(), f.Name)...).
				Detail("field layout has zero alignment").
				Build()
		}

		if padding := offset % align; padding != 0 {
			pad := align - padding
			members = append(members, Member{Layout: Padding(pad), Offset: offset})
			next, ok := safeAdd(offset, pad)
			if !ok {
				return Layout{}, errors.LayoutOverflow(append(b.path(), f.Name), "padding overflows struct size")
			}
			offset = next
		}

		members = append(members, Member{Layout: f.Layout.WithName(f.Name), Offset: offset})
		next, ok := safeAdd(offset, f.Layout.Size())
		if !ok {
			return Layout{}, errors.LayoutOverflow(append(b.path(), f.Name),
				fmt.Sprintf("field of %d bytes at offset %d overflows struct size", f.Layout.Size(), offset))
		}
		offset = next

		if align > maxAlign {
			maxAlign = align
		}
	}

	if trailing := offset % maxAlign; trailing != 0 {
		pad := maxAlign - trailing
		members = append(members, Member{Layout: Padding(pad), Offset: offset})
		if _, ok := safeAdd(offset, pad); !ok {
			return Layout{}, errors.LayoutOverflow(b.path(), "trailing padding overflows struct size")
		}
	}

	l := Layout{Kind: KindStruct, label: b.typeName, members: members}
	size, align, err := Measure(l)
	if err != nil {
		return Layout{}, err
	}
	l.size, l.align = size, align
	return l, nil
}

func (b *Builder) path() []string {
	if b.typeName == "" {
		return nil
	}
	return []string{b.typeName}
}

package layout

import (
	"fmt"
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/nativebind/errors"
)

// WITConverter turns WIT types into layouts using the Canonical ABI memory
// representation on wasm32 (ILP32). Converted type definitions are cached.
type WITConverter struct {
	cache map[*wit.TypeDef]Layout
}

// NewWITConverter creates a converter with an empty cache.
func NewWITConverter() *WITConverter {
	return &WITConverter{
		cache: make(map[*wit.TypeDef]Layout),
	}
}

// FromWIT converts a single WIT type with a fresh converter.
func FromWIT(t wit.Type) (Layout, error) {
	return NewWITConverter().Convert(t)
}

// Convert returns the layout of t. Variants, options and results are not
// representable as plain structures and are rejected.
func (c *WITConverter) Convert(t wit.Type) (Layout, error) {
	switch typ := t.(type) {
	case wit.Bool:
		return Bool, nil
	case wit.U8:
		return Uint8, nil
	case wit.S8:
		return Int8, nil
	case wit.U16:
		return Uint16, nil
	case wit.S16:
		return Int16, nil
	case wit.U32:
		return Uint32, nil
	case wit.S32:
		return Int32, nil
	case wit.Char:
		l := Uint32
		l.label = "char"
		return l, nil
	case wit.U64:
		return Uint64, nil
	case wit.S64:
		return Int64, nil
	case wit.F32:
		return Float32, nil
	case wit.F64:
		return Float64, nil
	case wit.String:
		return c.slice("string", Uint8)
	case *wit.TypeDef:
		return c.convertTypeDef(typ)
	}
	return Layout{}, errors.Unsupported(errors.PhaseLayout, fmt.Sprintf("WIT type %T", t))
}

func (c *WITConverter) convertTypeDef(t *wit.TypeDef) (Layout, error) {
	if cached, ok := c.cache[t]; ok {
		return cached, nil
	}

	var (
		l   Layout
		err error
	)

	switch kind := t.Kind.(type) {
	case *wit.Record:
		l, err = c.convertRecord(typeDefName(t), kind)
	case *wit.Tuple:
		l, err = c.convertTuple(kind)
	case *wit.List:
		var elem Layout
		elem, err = c.Convert(kind.Type)
		if err == nil {
			l, err = c.slice("list<"+elem.TypeName()+">", elem)
		}
	case *wit.Enum:
		l = discriminant(len(kind.Cases))
	case *wit.Flags:
		l, err = flags(len(kind.Flags))
	case wit.Type:
		l, err = c.Convert(kind)
	default:
		err = errors.Unsupported(errors.PhaseLayout, fmt.Sprintf("WIT type kind %T", t.Kind))
	}
	if err != nil {
		return Layout{}, err
	}

	c.cache[t] = l
	return l, nil
}

func (c *WITConverter) convertRecord(name string, r *wit.Record) (Layout, error) {
	b := NewBuilder(name)
	for _, field := range r.Fields {
		fl, err := c.Convert(field.Type)
		if err != nil {
			return Layout{}, err
		}
		b.Add(field.Name, fl)
	}
	return b.Build()
}

func (c *WITConverter) convertTuple(t *wit.Tuple) (Layout, error) {
	b := NewBuilder("")
	for i, typ := range t.Types {
		el, err := c.Convert(typ)
		if err != nil {
			return Layout{}, err
		}
		b.Add(strconv.Itoa(i), el)
	}
	return b.Build()
}

// slice is the (ptr, len) pair strings and lists lower to.
func (c *WITConverter) slice(label string, elem Layout) (Layout, error) {
	return NamedStruct(label,
		F("ptr", ILP32.PointerTo(elem)),
		F("len", Uint32),
	)
}

// discriminant: 1 byte for <=256 cases, 2 for <=65536, else 4.
func discriminant(numCases int) Layout {
	if numCases <= 256 {
		return Uint8
	} else if numCases <= 65536 {
		return Uint16
	}
	return Uint32
}

func flags(numFlags int) (Layout, error) {
	switch {
	case numFlags == 0:
		return Layout{}, errors.InvalidInput(errors.PhaseLayout, "flags with no members")
	case numFlags <= 8:
		return Uint8, nil
	case numFlags <= 16:
		return Uint16, nil
	case numFlags <= 32:
		return Uint32, nil
	}
	// more than 32 flags: one u32 per 32 flags
	return Array(Uint32, uint64((numFlags+31)/32))
}

func typeDefName(t *wit.TypeDef) string {
	if t.Name != nil {
		return *t.Name
	}
	return ""
}

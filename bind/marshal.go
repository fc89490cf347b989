package bind

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/config"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/layout"
)

type paramKind uint8

const (
	paramScalar paramKind = iota
	paramArray
	paramBlob
)

// nativeParam is a parameter normalized for marshaling.
type nativeParam struct {
	name  string
	value layout.Layout // scalar layout, or the struct layout of a blob
	array ArraySpec
	kind  paramKind
}

// integerOf extracts a Go integer. signed reports which of i and u is set.
func integerOf(v any) (i int64, u uint64, signed, ok bool) {
	switch x := v.(type) {
	case int:
		return int64(x), 0, true, true
	case int8:
		return int64(x), 0, true, true
	case int16:
		return int64(x), 0, true, true
	case int32:
		return int64(x), 0, true, true
	case int64:
		return x, 0, true, true
	case uint:
		return 0, uint64(x), false, true
	case uint8:
		return 0, uint64(x), false, true
	case uint16:
		return 0, uint64(x), false, true
	case uint32:
		return 0, uint64(x), false, true
	case uint64:
		return 0, x, false, true
	case uintptr:
		return 0, uint64(x), false, true
	}
	return 0, 0, false, false
}

func mask(w, size uint64) uint64 {
	if size >= 8 {
		return w
	}
	return w & (1<<(size*8) - 1)
}

// fits reports whether the integer is representable in size bytes of the
// given class.
func fits(class layout.Class, size uint64, i int64, u uint64, signed bool) bool {
	bits := size * 8
	if class == layout.ClassSigned {
		if bits >= 64 {
			return signed || u <= math.MaxInt64
		}
		lo, hi := -int64(1)<<(bits-1), int64(1)<<(bits-1)-1
		if signed {
			return i >= lo && i <= hi
		}
		return u <= uint64(hi)
	}
	if signed {
		if i < 0 {
			return false
		}
		u = uint64(i)
	}
	return bits >= 64 || u < 1<<bits
}

// encodeScalar converts a Go value to a machine word for a scalar layout.
func encodeScalar(phase errors.Phase, l layout.Layout, v any, path []string) (uint64, error) {
	size := l.Size()
	switch l.Class {
	case layout.ClassBool:
		b, ok := v.(bool)
		if !ok {
			return 0, errors.TypeMismatch(phase, path, fmt.Sprintf("%T", v), l.TypeName())
		}
		if b {
			return 1, nil
		}
		return 0, nil

	case layout.ClassFloat:
		var f float64
		switch x := v.(type) {
		case float32:
			f = float64(x)
		case float64:
			f = x
		default:
			return 0, errors.TypeMismatch(phase, path, fmt.Sprintf("%T", v), l.TypeName())
		}
		if size == 4 {
			return uint64(math.Float32bits(float32(f))), nil
		}
		return math.Float64bits(f), nil

	case layout.ClassSigned, layout.ClassUnsigned, layout.ClassAddress:
		if v == nil && l.Class == layout.ClassAddress {
			return 0, nil
		}
		i, u, signed, ok := integerOf(v)
		if !ok {
			return 0, errors.TypeMismatch(phase, path, fmt.Sprintf("%T", v), l.TypeName())
		}
		if !fits(l.Class, size, i, u, signed) {
			return 0, errors.Overflow(phase, path, v, l.TypeName())
		}
		if signed {
			return mask(uint64(i), size), nil
		}
		return mask(u, size), nil
	}
	return 0, errors.Unsupported(phase, "layout class "+l.Class.String())
}

// decodeScalar converts a machine word to the Go value matching l.
func decodeScalar(l layout.Layout, w uint64) any {
	switch l.Class {
	case layout.ClassBool:
		return mask(w, l.Size()) != 0
	case layout.ClassFloat:
		if l.Size() == 4 {
			return math.Float32frombits(uint32(w))
		}
		return math.Float64frombits(w)
	case layout.ClassAddress:
		return uintptr(mask(w, l.Size()))
	case layout.ClassSigned:
		switch l.Size() {
		case 1:
			return int8(w)
		case 2:
			return int16(w)
		case 4:
			return int32(w)
		}
		return int64(w)
	}
	switch l.Size() {
	case 1:
		return uint8(w)
	case 2:
		return uint16(w)
	case 4:
		return uint32(w)
	}
	return w
}

func putWord(buf []byte, size, w uint64) {
	switch size {
	case 1:
		buf[0] = byte(w)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(w))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(w))
	default:
		binary.LittleEndian.PutUint64(buf, w)
	}
}

func getWord(buf []byte, size uint64) uint64 {
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	}
	return binary.LittleEndian.Uint64(buf)
}

type copyBack struct {
	slice reflect.Value
	elem  layout.Layout
	addr  uint64
	n     int
}

// frame holds the per-call marshaling state.
type frame struct {
	mem       nativebind.Memory
	alloc     nativebind.Allocator
	allocs    *allocationList
	cfg       *config.Config
	symbol    string
	copyBacks []copyBack
}

func (f *frame) reserve(size, align uint64) (uint64, error) {
	if f.mem == nil {
		return 0, errors.Unsupported(errors.PhaseCall, "backend has no memory for indirect arguments")
	}
	if f.alloc == nil {
		return 0, errors.New(errors.PhaseCall, errors.KindAllocation).
			Symbol(f.symbol).
			Detail("no allocator available").
			Build()
	}
	if size == 0 {
		size = 1
	}
	addr, err := f.alloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseCall, size, align, err)
	}
	f.allocs.add(addr, size, align)
	return addr, nil
}

func (f *frame) place(data []byte, align uint64) (uint64, error) {
	addr, err := f.reserve(uint64(len(data)), align)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return addr, nil
	}
	if err := f.mem.Write(addr, data); err != nil {
		return 0, errors.Wrap(errors.PhaseCall, errors.KindOutOfBounds, err, "write argument")
	}
	return addr, nil
}

func (f *frame) marshal(p nativeParam, v any) (uint64, error) {
	path := []string{p.name}
	switch p.kind {
	case paramArray:
		return f.array(p.array, v, path)
	case paramBlob:
		return f.blob(p.value, v, path)
	}
	return encodeScalar(errors.PhaseCall, p.value, v, path)
}

func (f *frame) array(spec ArraySpec, v any, path []string) (uint64, error) {
	if v == nil {
		if spec.Nullable {
			return 0, nil
		}
		return 0, errors.NilPointer(errors.PhaseValidate, path)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return 0, errors.TypeMismatch(errors.PhaseCall, path, rv.Type().String(), "[]"+spec.Elem.TypeName())
	}
	if rv.IsNil() {
		if spec.Nullable {
			return 0, nil
		}
		return 0, errors.NilPointer(errors.PhaseValidate, path)
	}

	n := rv.Len()
	if spec.Size > 0 {
		if err := f.cfg.CheckArraySize(spec.Size, int64(n)); err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Symbol = f.symbol
				e.Path = path
			}
			return 0, err
		}
	}

	// native code may read the declared size even when checks are off
	count := uint64(n)
	if spec.Size > int64(n) {
		count = uint64(spec.Size)
	}
	es := spec.Elem.Size()
	if count > 0 && es > math.MaxInt/count {
		return 0, errors.Overflow(errors.PhaseCall, path, count, "array buffer")
	}
	buf := make([]byte, count*es)
	for i := 0; i < n; i++ {
		w, err := encodeScalar(errors.PhaseCall, spec.Elem, rv.Index(i).Interface(), append(path, strconv.Itoa(i)))
		if err != nil {
			return 0, err
		}
		putWord(buf[uint64(i)*es:], es, w)
	}

	addr, err := f.place(buf, spec.Elem.Align())
	if err != nil {
		return 0, err
	}
	if spec.InOut && n > 0 {
		f.copyBacks = append(f.copyBacks, copyBack{slice: rv, elem: spec.Elem, addr: addr, n: n})
	}
	return addr, nil
}

func (f *frame) blob(l layout.Layout, v any, path []string) (uint64, error) {
	data, ok := v.([]byte)
	if !ok {
		if v == nil {
			return 0, errors.NilPointer(errors.PhaseValidate, path)
		}
		return 0, errors.TypeMismatch(errors.PhaseCall, path, fmt.Sprintf("%T", v), l.TypeName())
	}
	if data == nil {
		return 0, errors.NilPointer(errors.PhaseValidate, path)
	}
	if uint64(len(data)) != l.Size() {
		return 0, errors.New(errors.PhaseValidate, errors.KindSizeMismatch).
			Symbol(f.symbol).
			Path(path...).
			Value(len(data)).
			Detail("%s needs %d bytes, got %d", l.TypeName(), l.Size(), len(data)).
			Build()
	}
	return f.place(data, l.Align())
}

// finish copies in/out arrays back to the caller's slices.
func (f *frame) finish() error {
	for _, cb := range f.copyBacks {
		es := cb.elem.Size()
		data, err := f.mem.Read(cb.addr, uint64(cb.n)*es)
		if err != nil {
			return errors.Wrap(errors.PhaseCall, errors.KindOutOfBounds, err, "read in/out array")
		}
		elemType := cb.slice.Type().Elem()
		for i := 0; i < cb.n; i++ {
			v := decodeScalar(cb.elem, getWord(data[uint64(i)*es:], es))
			cb.slice.Index(i).Set(reflect.ValueOf(v).Convert(elemType))
		}
	}
	return nil
}

func (f *frame) readResult(addr, size uint64) ([]byte, error) {
	data, err := f.mem.Read(addr, size)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCall, errors.KindOutOfBounds, err, "read result")
	}
	out := make([]byte, size)
	copy(out, data)
	return out, nil
}

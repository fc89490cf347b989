package engine

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/config"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/layout"
)

// testWasm is a hand-assembled module equivalent to:
//
//	(module
//	  (memory (export "memory") 1)
//	  (global $heap (mut i32) (i32.const 1024))
//	  (func (export "alloc") (param i32) (result i32)
//	    global.get $heap
//	    (global.set $heap (i32.and (i32.add (i32.add (global.get $heap) (local.get 0)) (i32.const 7)) (i32.const -8))))
//	  (func (export "load32") (param i32) (result i32) (i32.load (local.get 0)))
//	  (func (export "add") (param i32 i32) (result i32) (i32.add (local.get 0) (local.get 1)))
//	  (func (export "double_first") (param i32)
//	    (i32.store (local.get 0) (i32.shl (i32.load (local.get 0)) (i32.const 1))))
//	  (func (export "fadd") (param f64 f64) (result f64) (f64.add (local.get 0) (local.get 1))))
var testWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section
	0x01, 0x16, 0x04,
	0x60, 0x01, 0x7f, 0x01, 0x7f, // (i32) -> i32
	0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f, // (i32, i32) -> i32
	0x60, 0x01, 0x7f, 0x00, // (i32) -> ()
	0x60, 0x02, 0x7c, 0x7c, 0x01, 0x7c, // (f64, f64) -> f64
	// function section
	0x03, 0x06, 0x05, 0x00, 0x00, 0x01, 0x02, 0x03,
	// memory section: one memory, min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// global section: mut i32 = 1024
	0x06, 0x07, 0x01, 0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b,
	// export section
	0x07, 0x37, 0x06,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x05, 'a', 'l', 'l', 'o', 'c', 0x00, 0x00,
	0x06, 'l', 'o', 'a', 'd', '3', '2', 0x00, 0x01,
	0x03, 'a', 'd', 'd', 0x00, 0x02,
	0x0c, 'd', 'o', 'u', 'b', 'l', 'e', '_', 'f', 'i', 'r', 's', 't', 0x00, 0x03,
	0x04, 'f', 'a', 'd', 'd', 0x00, 0x04,
	// code section
	0x0a, 0x3b, 0x05,
	// alloc
	0x11, 0x00,
	0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x41, 0x07, 0x6a, 0x41, 0x78, 0x71, 0x24, 0x00,
	0x0b,
	// load32
	0x07, 0x00, 0x20, 0x00, 0x28, 0x02, 0x00, 0x0b,
	// add
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0x6a, 0x0b,
	// double_first
	0x0f, 0x00, 0x20, 0x00, 0x20, 0x00, 0x28, 0x02, 0x00, 0x41, 0x01, 0x74, 0x36, 0x02, 0x00, 0x0b,
	// fadd
	0x07, 0x00, 0x20, 0x00, 0x20, 0x01, 0xa0, 0x0b,
}

func openTestLibrary(t *testing.T) (*Engine, *Library) {
	t.Helper()
	ctx := context.Background()
	e := New(ctx, &Config{MemoryLimitPages: 16})
	t.Cleanup(func() { _ = e.Close(ctx) })

	lib, err := e.Open(ctx, testWasm, "testlib")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e, lib
}

func TestOpen(t *testing.T) {
	_, lib := openTestLibrary(t)

	if lib.Name() != "testlib" {
		t.Errorf("name: got %q", lib.Name())
	}
	want := []string{"add", "alloc", "double_first", "fadd", "load32"}
	got := lib.Exports()
	if len(got) != len(want) {
		t.Fatalf("exports: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("export %d: got %s, want %s", i, got[i], want[i])
		}
	}

	if _, ok := lib.Find("add"); !ok {
		t.Error("Find(add) failed")
	}
	if _, ok := lib.Find("memory"); ok {
		t.Error("memory is not a function symbol")
	}
	if lib.Memory() == nil || lib.Allocator() == nil {
		t.Fatal("memory and allocator should be detected")
	}
	if lib.Model() != layout.ILP32 {
		t.Errorf("model: got %s", lib.Model().Name)
	}
}

func TestOpenInvalid(t *testing.T) {
	ctx := context.Background()
	e := New(ctx, nil)
	defer e.Close(ctx)

	_, err := e.Open(ctx, []byte{0x00, 0x61, 0x73, 0x6d}, "")
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindInvalidInput}) {
		t.Errorf("got %v", err)
	}
}

func TestMemoryAndAllocator(t *testing.T) {
	_, lib := openTestLibrary(t)
	alloc := lib.Allocator()
	mem := lib.Memory()

	a, err := alloc.Alloc(10, 8)
	if err != nil {
		t.Fatal(err)
	}
	b, err := alloc.Alloc(4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if a != 1024 || b != 1040 {
		t.Errorf("allocations: got %d, %d, want 1024, 1040", a, b)
	}
	alloc.Free(a, 10, 8)

	if err := mem.Write(b, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	data, err := mem.Read(b, 4)
	if err != nil {
		t.Fatal(err)
	}
	if binary.LittleEndian.Uint32(data) != 0x04030201 {
		t.Errorf("read back %x", data)
	}

	if v, err := lib.mem.ReadU32(b); err != nil || v != 0x04030201 {
		t.Errorf("ReadU32: got %x, %v", v, err)
	}

	tests := []struct {
		name   string
		addr   uint64
		length uint64
	}{
		{"past_end", 65536, 1},
		{"beyond_32bit", 1 << 33, 1},
		{"straddle", 65534, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := mem.Read(tt.addr, tt.length); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindOutOfBounds}) {
				t.Errorf("Read: got %v", err)
			}
			if err := mem.Write(tt.addr, make([]byte, tt.length)); err == nil {
				t.Error("Write: expected error")
			}
		})
	}
}

func TestBindAndCall(t *testing.T) {
	_, lib := openTestLibrary(t)
	ctx := context.Background()

	i32 := func(n string) bind.Param { return bind.Param{Name: n, Layout: layout.Int32} }
	f64 := func(n string) bind.Param { return bind.Param{Name: n, Layout: layout.Float64} }
	res32, resF64 := layout.Int32, layout.Float64

	bound, err := bind.Load(lib, lib, config.New(),
		bind.Declaration{Name: "add", Params: []bind.Param{i32("a"), i32("b")}, Result: &res32},
		bind.Declaration{Name: "fadd", Params: []bind.Param{f64("a"), f64("b")}, Result: &resF64},
		bind.Declaration{
			Name:       "first",
			Entrypoint: "load32",
			Params:     []bind.Param{{Name: "xs", Array: &bind.ArraySpec{Elem: layout.Int32}}},
			Result:     &res32,
		},
		bind.Declaration{
			Name:   "double_first",
			Params: []bind.Param{{Name: "xs", Array: &bind.ArraySpec{Elem: layout.Int32, InOut: true}}},
		},
		bind.Declaration{Name: "missing", Tolerant: true, Result: &res32, Default: -1},
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		fn   string
		args []any
		want any
	}{
		{"add", "add", []any{int32(2), int32(3)}, int32(5)},
		{"add_wraps", "add", []any{int32(-10), int32(4)}, int32(-6)},
		{"fadd", "fadd", []any{1.25, 2.25}, 3.5},
		{"array", "first", []any{[]int32{7, 8}}, int32(7)},
		{"default", "missing", nil, int32(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := bound.Call(ctx, tt.fn, tt.args...)
			if err != nil {
				t.Fatalf("Call: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	t.Run("inout", func(t *testing.T) {
		xs := []int32{21, 5}
		if _, err := bound.Call(ctx, "double_first", xs); err != nil {
			t.Fatal(err)
		}
		if xs[0] != 42 || xs[1] != 5 {
			t.Errorf("got %v, want [42 5]", xs)
		}
	})
}

func TestBindShapeMismatch(t *testing.T) {
	_, lib := openTestLibrary(t)
	i64 := layout.Int64

	_, err := bind.Load(lib, lib, nil, bind.Declaration{
		Name:   "add",
		Params: []bind.Param{{Name: "a", Layout: layout.Int64}, {Name: "b", Layout: layout.Int64}},
		Result: &i64,
	})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBind, Kind: errors.KindTypeMismatch}) {
		t.Fatalf("got %v", err)
	}

	_, err = bind.Load(lib, lib, nil, bind.Declaration{Name: "add"})
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBind, Kind: errors.KindTypeMismatch}) {
		t.Errorf("void declaration of add: got %v", err)
	}
}

func TestHostLibrary(t *testing.T) {
	e, wasmLib := openTestLibrary(t)
	ctx := context.Background()
	mem := wasmLib.Memory()

	host, err := e.NewHost("hostlib").
		Func("mul", func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = uint64(uint32(int32(stack[0]) * int32(stack[1])))
		}, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Func("sum", func(_ context.Context, _ api.Module, stack []uint64) {
			data, err := mem.Read(stack[0], stack[1]*4)
			if err != nil {
				panic(err)
			}
			var s uint32
			for i := 0; i < len(data); i += 4 {
				s += binary.LittleEndian.Uint32(data[i:])
			}
			stack[0] = uint64(s)
		}, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		WithMemory(wasmLib).
		Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	res := layout.Uint32
	bound, err := bind.Load(host, host, nil,
		bind.Declaration{
			Name:   "mul",
			Params: []bind.Param{{Name: "a", Layout: layout.Int32}, {Name: "b", Layout: layout.Int32}},
			Result: &res,
		},
		bind.Declaration{
			Name: "sum",
			Params: []bind.Param{
				{Name: "xs", Array: &bind.ArraySpec{Elem: layout.Uint32, Size: 3}},
				{Name: "n", Layout: layout.Uint32},
			},
			Result: &res,
		},
	)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	got, err := bound.Call(ctx, "mul", int32(6), int32(7))
	if err != nil || got != uint32(42) {
		t.Errorf("mul: got %v, %v", got, err)
	}

	got, err = bound.Call(ctx, "sum", []uint32{1, 2, 3}, uint32(3))
	if err != nil || got != uint32(6) {
		t.Errorf("sum: got %v, %v", got, err)
	}

	_, err = bound.Call(ctx, "sum", []uint32{1, 2}, uint32(2))
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseValidate, Kind: errors.KindSizeMismatch}) {
		t.Errorf("short array: got %v", err)
	}
}

func TestInitWASI(t *testing.T) {
	ctx := context.Background()
	e := New(ctx, &Config{WASI: true})
	defer e.Close(ctx)

	if err := e.InitWASI(ctx); err != nil {
		t.Fatal(err)
	}
	if err := e.InitWASI(ctx); err != nil {
		t.Fatalf("second InitWASI: %v", err)
	}
	if e.Runtime().Module(wasiModuleName) == nil {
		t.Error("WASI module not instantiated")
	}

	if _, err := e.Open(ctx, testWasm, ""); err != nil {
		t.Errorf("Open with WASI: %v", err)
	}
}

func TestValueType(t *testing.T) {
	tests := []struct {
		l    layout.Layout
		want api.ValueType
	}{
		{layout.Bool, api.ValueTypeI32},
		{layout.Int8, api.ValueTypeI32},
		{layout.Uint32, api.ValueTypeI32},
		{layout.ILP32.Pointer(), api.ValueTypeI32},
		{layout.Int64, api.ValueTypeI64},
		{layout.Float32, api.ValueTypeF32},
		{layout.Float64, api.ValueTypeF64},
	}
	for _, tt := range tests {
		if got := ValueType(tt.l); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.l, api.ValueTypeName(got), api.ValueTypeName(tt.want))
		}
	}
}

type allocCall struct {
	name string
	args []uint64
}

// recordAlloc returns a host function that logs its first n arguments and
// returns ret.
func recordAlloc(calls *[]allocCall, name string, n int, ret uint64) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		*calls = append(*calls, allocCall{name: name, args: append([]uint64(nil), stack[:n]...)})
		if len(stack) > 0 {
			stack[0] = ret
		}
	}
}

type allocSig struct {
	params, results []api.ValueType
}

var (
	i32 = api.ValueTypeI32

	allocSigs = map[string]allocSig{
		CabiRealloc:   {params: []api.ValueType{i32, i32, i32, i32}, results: []api.ValueType{i32}},
		legacyRealloc: {params: []api.ValueType{i32, i32, i32, i32}, results: []api.ValueType{i32}},
		libcMalloc:    {params: []api.ValueType{i32}, results: []api.ValueType{i32}},
		simpleAlloc:   {params: []api.ValueType{i32}, results: []api.ValueType{i32}},
		libcFree:      {params: []api.ValueType{i32}},
		CabiFree:      {params: []api.ValueType{i32, i32, i32}},
	}
)

func TestAllocatorDetection(t *testing.T) {
	tests := []struct {
		name      string
		exports   []string
		wantAlloc allocCall
		wantFree  *allocCall
	}{
		{
			name:      "cabi_realloc_over_malloc",
			exports:   []string{libcMalloc, CabiRealloc},
			wantAlloc: allocCall{CabiRealloc, []uint64{0, 0, 8, 24}},
			// no free export: realloc to size zero
			wantFree: &allocCall{CabiRealloc, []uint64{4096, 24, 8, 0}},
		},
		{
			name:      "legacy_realloc_over_malloc",
			exports:   []string{simpleAlloc, legacyRealloc, libcMalloc},
			wantAlloc: allocCall{legacyRealloc, []uint64{0, 0, 8, 24}},
			wantFree:  &allocCall{legacyRealloc, []uint64{4096, 24, 8, 0}},
		},
		{
			name:      "realloc_with_cabi_free",
			exports:   []string{CabiRealloc, CabiFree},
			wantAlloc: allocCall{CabiRealloc, []uint64{0, 0, 8, 24}},
			wantFree:  &allocCall{CabiFree, []uint64{4096, 24, 8}},
		},
		{
			name:      "malloc_and_free",
			exports:   []string{simpleAlloc, libcMalloc, libcFree},
			wantAlloc: allocCall{libcMalloc, []uint64{24}},
			wantFree:  &allocCall{libcFree, []uint64{4096}},
		},
		{
			name:      "alloc_without_free",
			exports:   []string{simpleAlloc},
			wantAlloc: allocCall{simpleAlloc, []uint64{24}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := New(ctx, nil)
			defer e.Close(ctx)

			var calls []allocCall
			hb := e.NewHost("alloclib")
			for _, name := range tt.exports {
				sig := allocSigs[name]
				hb.Func(name, recordAlloc(&calls, name, len(sig.params), 4096), sig.params, sig.results)
			}
			lib, err := hb.Build(ctx)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			alloc := lib.Allocator()
			if alloc == nil {
				t.Fatal("allocator not detected")
			}

			addr, err := alloc.Alloc(24, 8)
			if err != nil {
				t.Fatal(err)
			}
			if addr != 4096 {
				t.Errorf("addr = %d, want 4096", addr)
			}
			alloc.Free(addr, 24, 8)

			want := []allocCall{tt.wantAlloc}
			if tt.wantFree != nil {
				want = append(want, *tt.wantFree)
			}
			if len(calls) != len(want) {
				t.Fatalf("calls = %v, want %v", calls, want)
			}
			for i := range want {
				if calls[i].name != want[i].name {
					t.Errorf("call %d: %s, want %s", i, calls[i].name, want[i].name)
				}
				if len(calls[i].args) != len(want[i].args) {
					t.Errorf("call %d args: %v, want %v", i, calls[i].args, want[i].args)
					continue
				}
				for j := range want[i].args {
					if calls[i].args[j] != want[i].args[j] {
						t.Errorf("call %d args: %v, want %v", i, calls[i].args, want[i].args)
						break
					}
				}
			}
		})
	}
}

func TestAllocatorDetectionSkips(t *testing.T) {
	ctx := context.Background()
	e := New(ctx, nil)
	defer e.Close(ctx)

	var calls []allocCall
	// malloc with the wrong shape is ignored in favor of alloc
	lib, err := e.NewHost("shapes").
		Func(libcMalloc, recordAlloc(&calls, libcMalloc, 2, 1), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Func(simpleAlloc, recordAlloc(&calls, simpleAlloc, 1, 64), []api.ValueType{i32}, []api.ValueType{i32}).
		Build(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if addr, err := lib.Allocator().Alloc(4, 4); err != nil || addr != 64 {
		t.Errorf("Alloc: got %d, %v", addr, err)
	}
	if len(calls) != 1 || calls[0].name != simpleAlloc {
		t.Errorf("calls = %v", calls)
	}

	none, err := e.NewHost("noalloc").
		Func("add", recordAlloc(&calls, "add", 2, 0), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Build(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if none.Allocator() != nil {
		t.Error("allocator detected without allocation exports")
	}
}

func TestAllocatorFailures(t *testing.T) {
	ctx := context.Background()
	e := New(ctx, nil)
	defer e.Close(ctx)

	var calls []allocCall
	lib, err := e.NewHost("nullalloc").
		Func(libcMalloc, recordAlloc(&calls, libcMalloc, 1, 0), []api.ValueType{i32}, []api.ValueType{i32}).
		Build(ctx)
	if err != nil {
		t.Fatal(err)
	}
	alloc := lib.Allocator()

	tests := []struct {
		name string
		size uint64
	}{
		{"null_result", 16},
		{"beyond_32bit", 1 << 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := alloc.Alloc(tt.size, 8)
			if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseCall, Kind: errors.KindAllocation}) {
				t.Errorf("got %v", err)
			}
		})
	}
	if len(calls) != 1 {
		t.Errorf("malloc called %d times, want 1", len(calls))
	}

	// zero address and missing free are no-ops
	alloc.Free(0, 16, 8)
	alloc.Free(128, 16, 8)
	if len(calls) != 1 {
		t.Errorf("free reached the module: %v", calls)
	}
}

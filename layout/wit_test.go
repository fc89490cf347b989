package layout

import (
	"testing"

	"go.bytecodealliance.org/wit"
)

func TestFromWITPrimitives(t *testing.T) {
	c := NewWITConverter()

	tests := []struct {
		typ   wit.Type
		name  string
		size  uint64
		align uint64
	}{
		{wit.Bool{}, "bool", 1, 1},
		{wit.U8{}, "u8", 1, 1},
		{wit.S8{}, "s8", 1, 1},
		{wit.U16{}, "u16", 2, 2},
		{wit.S16{}, "s16", 2, 2},
		{wit.U32{}, "u32", 4, 4},
		{wit.S32{}, "s32", 4, 4},
		{wit.U64{}, "u64", 8, 8},
		{wit.S64{}, "s64", 8, 8},
		{wit.F32{}, "f32", 4, 4},
		{wit.F64{}, "f64", 8, 8},
		{wit.Char{}, "char", 4, 4},
		{wit.String{}, "string", 8, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l, err := c.Convert(tc.typ)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if l.Size() != tc.size {
				t.Errorf("size: got %d, want %d", l.Size(), tc.size)
			}
			if l.Align() != tc.align {
				t.Errorf("align: got %d, want %d", l.Align(), tc.align)
			}
		})
	}
}

func TestFromWITRecord(t *testing.T) {
	c := NewWITConverter()

	t.Run("mixed_alignment", func(t *testing.T) {
		name := "sample"
		typedef := &wit.TypeDef{Name: &name, Kind: &wit.Record{
			Fields: []wit.Field{
				{Name: "a", Type: wit.U8{}},
				{Name: "b", Type: wit.U32{}},
				{Name: "c", Type: wit.U8{}},
			},
		}}
		l, err := c.Convert(typedef)
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		for field, want := range map[string]uint64{"a": 0, "b": 4, "c": 8} {
			if off, _ := l.Offset(field); off != want {
				t.Errorf("field %s offset: got %d, want %d", field, off, want)
			}
		}
		if l.Size() != 12 || l.Align() != 4 {
			t.Errorf("got size %d align %d, want 12/4", l.Size(), l.Align())
		}
		if l.TypeName() != "struct sample" {
			t.Errorf("TypeName: got %q", l.TypeName())
		}
	})

	t.Run("empty", func(t *testing.T) {
		typedef := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{}}}
		if _, err := c.Convert(typedef); err == nil {
			t.Error("expected error for empty record")
		}
	})

	t.Run("cached", func(t *testing.T) {
		typedef := &wit.TypeDef{Kind: &wit.Record{Fields: []wit.Field{{Name: "x", Type: wit.U64{}}}}}
		first, err := c.Convert(typedef)
		if err != nil {
			t.Fatalf("Convert: %v", err)
		}
		if _, ok := c.cache[typedef]; !ok {
			t.Fatal("typedef not cached")
		}
		second, _ := c.Convert(typedef)
		if first.Size() != second.Size() {
			t.Errorf("cached layout differs: %d vs %d", first.Size(), second.Size())
		}
	})
}

func TestFromWITCompound(t *testing.T) {
	t.Run("tuple", func(t *testing.T) {
		l, err := FromWIT(&wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{wit.U8{}, wit.U64{}}}})
		if err != nil {
			t.Fatalf("FromWIT: %v", err)
		}
		if off, _ := l.Offset("1"); off != 8 {
			t.Errorf("element 1 offset: got %d, want 8", off)
		}
		if l.Size() != 16 {
			t.Errorf("size: got %d, want 16", l.Size())
		}
	})

	t.Run("list", func(t *testing.T) {
		l, err := FromWIT(&wit.TypeDef{Kind: &wit.List{Type: wit.U32{}}})
		if err != nil {
			t.Fatalf("FromWIT: %v", err)
		}
		if l.Size() != 8 || l.Align() != 4 {
			t.Errorf("got size %d align %d, want 8/4", l.Size(), l.Align())
		}
		ptr, _ := l.Field("ptr")
		if target, ok := ptr.Target(); !ok || target.TypeName() != "uint32" {
			t.Errorf("ptr target: got %v", target)
		}
	})

	t.Run("enum", func(t *testing.T) {
		l, err := FromWIT(&wit.TypeDef{Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "a"}, {Name: "b"}}}})
		if err != nil {
			t.Fatalf("FromWIT: %v", err)
		}
		if l.Size() != 1 {
			t.Errorf("size: got %d, want 1", l.Size())
		}
	})

	t.Run("flags", func(t *testing.T) {
		many := make([]wit.Flag, 40)
		for i := range many {
			many[i] = wit.Flag{Name: "f"}
		}
		l, err := FromWIT(&wit.TypeDef{Kind: &wit.Flags{Flags: many}})
		if err != nil {
			t.Fatalf("FromWIT: %v", err)
		}
		if l.Size() != 8 || l.Align() != 4 || l.Kind != KindArray {
			t.Errorf("got %s size %d align %d", l.Kind, l.Size(), l.Align())
		}
	})

	t.Run("option_unsupported", func(t *testing.T) {
		if _, err := FromWIT(&wit.TypeDef{Kind: &wit.Option{Type: wit.U32{}}}); err == nil {
			t.Error("expected option to be rejected")
		}
	})
}

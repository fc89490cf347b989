package decl

import (
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/errors"
	"github.com/wippyai/nativebind/layout"
)

// fileBody is the top-level structure of a declaration file.
type fileBody struct {
	Structs   []*structBlock   `hcl:"struct,block"`
	Functions []*functionBlock `hcl:"function,block"`
}

type structBlock struct {
	Name   string        `hcl:"name,label"`
	Fields []*fieldBlock `hcl:"field,block"`
}

type fieldBlock struct {
	Count *int64 `hcl:"count,optional"`
	Name  string `hcl:"name,label"`
	Type  string `hcl:"type"`
}

type functionBlock struct {
	Default    cty.Value     `hcl:"default,optional"`
	Entrypoint *string       `hcl:"entrypoint,optional"`
	Result     *string       `hcl:"result,optional"`
	Allocator  *string       `hcl:"allocator,optional"`
	Name       string        `hcl:"name,label"`
	Params     []*paramBlock `hcl:"param,block"`
	SkipFirst  bool          `hcl:"skip_first,optional"`
	Tolerant   bool          `hcl:"tolerant,optional"`
}

type paramBlock struct {
	ArraySize *int64 `hcl:"array_size,optional"`
	Name      string `hcl:"name,label"`
	Type      string `hcl:"type"`
	Array     bool   `hcl:"array,optional"`
	Wide      bool   `hcl:"wide,optional"`
	InOut     bool   `hcl:"inout,optional"`
	Nullable  bool   `hcl:"nullable,optional"`
}

func (p *paramBlock) isArray() bool {
	return p.Array || p.ArraySize != nil || p.Wide || p.InOut || p.Nullable
}

// File is a decoded declaration file.
type File struct {
	structs   map[string]layout.Layout
	Model     layout.Model
	Filename  string
	order     []string
	Functions []bind.Declaration
}

// Struct returns a declared structure layout.
func (f *File) Struct(name string) (layout.Layout, bool) {
	l, ok := f.structs[name]
	return l, ok
}

// StructNames returns the declared structure names in file order.
func (f *File) StructNames() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Function returns the declaration with the given name.
func (f *File) Function(name string) (bind.Declaration, bool) {
	for _, d := range f.Functions {
		if d.Name == name {
			return d, true
		}
	}
	return bind.Declaration{}, false
}

// ParseFile reads and decodes the declaration file at path.
func ParseFile(path string, model layout.Model) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecl, errors.KindNotFound, err, "read "+path)
	}
	return Parse(src, path, model)
}

// Parse decodes declarations from src. filename is used in diagnostics.
func Parse(src []byte, filename string, model layout.Model) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(errors.PhaseDecl, errors.KindInvalidInput, diags, "parse "+filename)
	}

	var body fileBody
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &body); diags.HasErrors() {
		return nil, errors.Wrap(errors.PhaseDecl, errors.KindInvalidInput, diags, "decode "+filename)
	}

	r := &resolver{
		model:  model,
		blocks: make(map[string]*structBlock, len(body.Structs)),
		done:   make(map[string]layout.Layout, len(body.Structs)),
		active: make(map[string]bool),
	}
	f := &File{Model: model, Filename: filename}
	for _, sb := range body.Structs {
		if _, dup := r.blocks[sb.Name]; dup {
			return nil, errors.New(errors.PhaseDecl, errors.KindDuplicate).
				Path(sb.Name).
				Detail("struct %s declared twice", sb.Name).
				Build()
		}
		r.blocks[sb.Name] = sb
		f.order = append(f.order, sb.Name)
	}
	for _, name := range f.order {
		if _, err := r.structOf(name); err != nil {
			return nil, err
		}
	}
	f.structs = r.done

	seen := make(map[string]struct{}, len(body.Functions))
	for _, fb := range body.Functions {
		if _, dup := seen[fb.Name]; dup {
			return nil, errors.New(errors.PhaseDecl, errors.KindDuplicate).
				Path(fb.Name).
				Detail("function %s declared twice", fb.Name).
				Build()
		}
		seen[fb.Name] = struct{}{}

		d, err := r.function(fb)
		if err != nil {
			return nil, err
		}
		f.Functions = append(f.Functions, d)
	}
	return f, nil
}

type resolver struct {
	model  layout.Model
	blocks map[string]*structBlock
	done   map[string]layout.Layout
	active map[string]bool
}

func invalid(path []string, format string, args ...any) error {
	return errors.New(errors.PhaseDecl, errors.KindInvalidInput).
		Path(path...).
		Detail(format, args...).
		Build()
}

// typeOf resolves a type expression. Inside pointer(...) a structure that
// is still being laid out resolves to an untyped pointer, which allows
// self-referential structures.
func (r *resolver) typeOf(expr string, path []string, pointee bool) (layout.Layout, error) {
	s := strings.TrimSpace(expr)
	switch {
	case s == "":
		return layout.Layout{}, invalid(path, "type is empty")
	case strings.HasPrefix(s, "struct."):
		name := strings.TrimPrefix(s, "struct.")
		if pointee && r.active[name] {
			return r.model.Pointer(), nil
		}
		return r.structOf(name)
	case strings.HasPrefix(s, "pointer(") && strings.HasSuffix(s, ")"):
		target, err := r.typeOf(s[len("pointer("):len(s)-1], path, true)
		if err != nil {
			return layout.Layout{}, err
		}
		if target.Kind == layout.KindPointer {
			if _, typed := target.Target(); !typed {
				return r.model.Pointer(), nil
			}
		}
		return r.model.PointerTo(target), nil
	}

	l, err := r.model.CType(s)
	if err != nil {
		return layout.Layout{}, errors.New(errors.PhaseDecl, errors.KindNotFound).
			Path(path...).
			Cause(err).
			Detail("unknown type %q", expr).
			Build()
	}
	return l, nil
}

func (r *resolver) structOf(name string) (layout.Layout, error) {
	if l, ok := r.done[name]; ok {
		return l, nil
	}
	sb, ok := r.blocks[name]
	if !ok {
		return layout.Layout{}, errors.NotFound(errors.PhaseDecl, "struct", name)
	}
	if r.active[name] {
		return layout.Layout{}, invalid([]string{name}, "struct %s contains itself", name)
	}
	r.active[name] = true
	defer delete(r.active, name)

	b := layout.NewBuilder(name)
	for _, fb := range sb.Fields {
		path := []string{name, fb.Name}
		l, err := r.typeOf(fb.Type, path, false)
		if err != nil {
			return layout.Layout{}, err
		}
		if fb.Count != nil {
			if *fb.Count <= 0 {
				return layout.Layout{}, invalid(path, "count must be positive, got %d", *fb.Count)
			}
			if l, err = layout.Array(l, uint64(*fb.Count)); err != nil {
				return layout.Layout{}, err
			}
		}
		b.Add(fb.Name, l)
	}
	l, err := b.Build()
	if err != nil {
		return layout.Layout{}, err
	}
	r.done[name] = l
	return l, nil
}

func (r *resolver) function(fb *functionBlock) (bind.Declaration, error) {
	d := bind.Declaration{
		Name:      fb.Name,
		SkipFirst: fb.SkipFirst,
		Tolerant:  fb.Tolerant,
	}
	if fb.Entrypoint != nil {
		d.Entrypoint = *fb.Entrypoint
	}
	if fb.Allocator != nil {
		a, ok := bind.ParseAllocatorRequirement(*fb.Allocator)
		if !ok {
			return d, invalid([]string{fb.Name, "allocator"}, "unknown allocator requirement %q", *fb.Allocator)
		}
		d.Allocator = a
	}
	if fb.Result != nil && strings.TrimSpace(*fb.Result) != "void" {
		l, err := r.typeOf(*fb.Result, []string{fb.Name, "result"}, false)
		if err != nil {
			return d, err
		}
		d.Result = &l
	}

	for i, pb := range fb.Params {
		path := []string{fb.Name, pb.Name}
		l, err := r.typeOf(pb.Type, path, false)
		if err != nil {
			return d, err
		}
		if !pb.isArray() {
			d.Params = append(d.Params, bind.Param{Name: pb.Name, Layout: l})
			continue
		}
		spec := &bind.ArraySpec{Elem: l, Wide: pb.Wide, InOut: pb.InOut, Nullable: pb.Nullable}
		if pb.ArraySize != nil {
			if *pb.ArraySize < 0 {
				return d, invalid(path, "array_size of param %d is negative", i)
			}
			spec.Size = *pb.ArraySize
		}
		d.Params = append(d.Params, bind.Param{Name: pb.Name, Array: spec})
	}

	if !fb.Default.IsNull() {
		v, err := defaultValue(d.Result, fb.Default, []string{fb.Name, "default"})
		if err != nil {
			return d, err
		}
		d.Default = v
		d.Tolerant = true
	}
	return d, nil
}

// defaultValue converts a literal to the Go value family of the result:
// int64, uint64, float64, bool, or []byte from a string for aggregates.
func defaultValue(result *layout.Layout, v cty.Value, path []string) (any, error) {
	if result == nil {
		return nil, invalid(path, "void function cannot have a default")
	}
	if !v.IsWhollyKnown() {
		return nil, invalid(path, "default must be a literal")
	}

	var err error
	var out any
	switch {
	case result.Kind == layout.KindStruct || result.Kind == layout.KindArray:
		var s string
		err = gocty.FromCtyValue(v, &s)
		out = []byte(s)
	case result.Class == layout.ClassSigned:
		var i int64
		err = gocty.FromCtyValue(v, &i)
		out = i
	case result.Class == layout.ClassUnsigned || result.Class == layout.ClassAddress:
		var u uint64
		err = gocty.FromCtyValue(v, &u)
		out = u
	case result.Class == layout.ClassFloat:
		var f float64
		err = gocty.FromCtyValue(v, &f)
		out = f
	case result.Class == layout.ClassBool:
		var b bool
		err = gocty.FromCtyValue(v, &b)
		out = b
	default:
		return nil, invalid(path, "result %s cannot have a default", result)
	}
	if err != nil {
		return nil, errors.New(errors.PhaseDecl, errors.KindTypeMismatch).
			Path(path...).
			Cause(err).
			Detail("default %s does not fit %s", v.GoString(), result).
			Build()
	}
	return out, nil
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/nativebind"
	"github.com/wippyai/nativebind/bind"
	"github.com/wippyai/nativebind/config"
	"github.com/wippyai/nativebind/decl"
	"github.com/wippyai/nativebind/engine"
	"github.com/wippyai/nativebind/layout"
	"github.com/wippyai/nativebind/native"
)

// options are the flags shared by every subcommand.
type options struct {
	cfg     *config.Config
	wasm    string
	lib     string
	model   string
	wasi    bool
	debug   bool
	verbose bool
}

func newCLI() *cobra.Command {
	opts := &options{cfg: config.New()}

	rootCmd := &cobra.Command{
		Use:   "nativebind",
		Short: "Bind and call native functions from declaration files",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			if opts.debug {
				opts.cfg.Debug.Set(true)
			}
			if opts.verbose {
				logger := config.StderrLogger()
				bind.SetLogger(logger)
				engine.SetLogger(logger)
				native.SetLogger(logger)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.wasm, "wasm", "", "WebAssembly module to bind against")
	flags.StringVar(&opts.lib, "lib", "", "Shared library to bind against")
	flags.StringVar(&opts.model, "model", "", "Data model for inspect: lp64, ilp32 or llp64")
	flags.BoolVar(&opts.wasi, "wasi", false, "Provide WASI to the module")
	flags.BoolVar(&opts.debug, "debug", false, "Trace calls through the config sink")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log load and bind events to stderr")

	cobra.EnableCommandSorting = false

	inspectCmd := &cobra.Command{
		Use:   "inspect <decl.hcl>",
		Args:  cobra.ExactArgs(1),
		Short: "Show struct layouts and function declarations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspect(cmd.OutOrStdout(), opts, args[0])
		},
	}

	bindCmd := &cobra.Command{
		Use:   "bind <decl.hcl>",
		Args:  cobra.ExactArgs(1),
		Short: "Load a library and list resolved and defaulted functions",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, closer, err := load(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			defer closer()
			printBindings(cmd.OutOrStdout(), lib)
			return nil
		},
	}

	callCmd := &cobra.Command{
		Use:   "call <decl.hcl> <function> [args...]",
		Args:  cobra.MinimumNArgs(2),
		Short: "Call one function",
		Long: "Call one function. Scalars are parsed by their declared type, arrays as\n" +
			"comma-separated lists (null for nullable arrays, s:text for C strings),\n" +
			"structures as hex bytes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, closer, err := load(cmd.Context(), opts, args[0])
			if err != nil {
				return err
			}
			defer closer()
			out, err := call(cmd.Context(), lib, args[1], args[2:])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Args:  cobra.NoArgs,
		Short: "Print configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			printConfig(cmd.OutOrStdout(), opts.cfg)
			return nil
		},
	}

	browseCmd := &cobra.Command{
		Use:   "browse <decl.hcl>",
		Args:  cobra.ExactArgs(1),
		Short: "Pick and call functions interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return browse(cmd.Context(), opts, args[0])
		},
	}

	rootCmd.AddCommand(
		inspectCmd,
		bindCmd,
		callCmd,
		configCmd,
		browseCmd,
	)

	return rootCmd
}

// modelFor picks the data model: explicit flag, then ILP32 for wasm, then
// the host model.
func modelFor(opts *options) (layout.Model, error) {
	switch strings.ToLower(opts.model) {
	case "":
	case "lp64":
		return layout.LP64, nil
	case "ilp32":
		return layout.ILP32, nil
	case "llp64":
		return layout.LLP64, nil
	default:
		return layout.Model{}, fmt.Errorf("unknown data model %q", opts.model)
	}
	if opts.wasm != "" {
		return layout.ILP32, nil
	}
	return layout.Host(), nil
}

// library is a loaded backend that is its own symbol table.
type library interface {
	nativebind.SymbolTable
	bind.Backend
}

// load opens the backend named by the flags and binds the declarations.
func load(ctx context.Context, opts *options, declPath string) (*bind.Library, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if (opts.wasm == "") == (opts.lib == "") {
		return nil, nil, fmt.Errorf("exactly one of --wasm or --lib is required")
	}

	var (
		backend library
		closer  func()
	)
	if opts.wasm != "" {
		data, err := os.ReadFile(opts.wasm)
		if err != nil {
			return nil, nil, fmt.Errorf("read module: %w", err)
		}
		eng := engine.New(ctx, &engine.Config{WASI: opts.wasi, CloseOnContextDone: true})
		wlib, err := eng.Open(ctx, data, "")
		if err != nil {
			_ = eng.Close(ctx)
			return nil, nil, err
		}
		backend = wlib
		closer = func() { _ = eng.Close(context.Background()) }
	} else {
		nlib, nclose, err := openNative(opts.lib, opts.cfg)
		if err != nil {
			return nil, nil, err
		}
		backend, closer = nlib, nclose
	}

	f, err := decl.ParseFile(declPath, backend.Model())
	if err != nil {
		closer()
		return nil, nil, err
	}

	lib, err := bind.Load(backend, backend, opts.cfg, f.Functions...)
	if err != nil {
		closer()
		return nil, nil, err
	}
	return lib, closer, nil
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}

func inspect(w io.Writer, opts *options, path string) error {
	model, err := modelFor(opts)
	if err != nil {
		return err
	}
	f, err := decl.ParseFile(path, model)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%s (%s)\n", path, model.Name)
	for _, name := range f.StructNames() {
		s, _ := f.Struct(name)
		fmt.Fprintf(w, "\nstruct %s: size %d, align %d\n", name, s.Size(), s.Align())
		table := newTable(w, "FIELD", "OFFSET", "SIZE", "ALIGN", "TYPE")
		for _, m := range s.Members() {
			field := m.Name
			if m.Kind == layout.KindPadding {
				field = "(padding)"
			}
			table.Append([]string{field, fmt.Sprint(m.Offset), fmt.Sprint(m.Size()), fmt.Sprint(m.Align()), m.TypeName()})
		}
		table.Render()
	}

	if len(f.Functions) > 0 {
		fmt.Fprintln(w)
		table := newTable(w, "FUNCTION", "ENTRYPOINT", "SIGNATURE", "FLAGS")
		for _, d := range f.Functions {
			table.Append([]string{d.Name, d.EntrypointName(), signature(d), flagsOf(d)})
		}
		table.Render()
	}
	return nil
}

func signature(d bind.Declaration) string {
	params := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		if p.Array != nil {
			n := ""
			if p.Array.Size > 0 {
				n = fmt.Sprint(p.Array.Size)
			}
			params = append(params, fmt.Sprintf("%s %s[%s]", p.Name, p.Array.Elem.TypeName(), n))
			continue
		}
		params = append(params, p.Name+" "+p.Layout.TypeName())
	}
	result := "void"
	if d.Result != nil {
		result = d.Result.TypeName()
	}
	return fmt.Sprintf("%s(%s) -> %s", d.Name, strings.Join(params, ", "), result)
}

func flagsOf(d bind.Declaration) string {
	var flags []string
	if d.SkipFirst {
		flags = append(flags, "skip-first")
	}
	if d.Allocator != bind.AllocatorNone {
		flags = append(flags, "allocator="+d.Allocator.String())
	}
	if d.Tolerant {
		flags = append(flags, fmt.Sprintf("default=%v", formatValue(d.Default)))
	}
	for _, p := range d.Params {
		if p.Array == nil {
			continue
		}
		if p.Array.InOut {
			flags = append(flags, p.Name+":inout")
		}
		if p.Array.Nullable {
			flags = append(flags, p.Name+":nullable")
		}
		if p.Array.Wide {
			flags = append(flags, p.Name+":wide")
		}
	}
	return strings.Join(flags, " ")
}

func printBindings(w io.Writer, lib *bind.Library) {
	table := newTable(w, "FUNCTION", "ENTRYPOINT", "STATUS", "DESCRIPTOR")
	for _, name := range lib.Names() {
		b, _ := lib.Function(name)
		status := "resolved"
		if !b.Resolved() {
			status = fmt.Sprintf("default (%v)", formatValue(b.Default()))
		}
		table.Append([]string{name, b.Descriptor().Entrypoint(), status, b.Descriptor().String()})
	}
	table.Render()
}

func printConfig(w io.Writer, cfg *config.Config) {
	settings := cfg.AsMap()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := newTable(w, "SETTING", "VALUE", "ENV", "DESCRIPTION")
	for _, k := range keys {
		s := settings[k]
		table.Append([]string{s.Name, fmt.Sprint(s.Value), s.Env, s.Description})
	}
	table.Render()
}

func call(ctx context.Context, lib *bind.Library, name string, raw []string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	b, ok := lib.Function(name)
	if !ok {
		return "", fmt.Errorf("function %s is not declared", name)
	}
	d := b.Declaration()
	params := d.NativeParams()
	if len(raw) != len(params) {
		return "", fmt.Errorf("%s takes %d arguments, got %d", name, len(params), len(raw))
	}

	args := make([]any, len(params))
	for i, p := range params {
		v, err := parseArg(p, raw[i])
		if err != nil {
			return "", fmt.Errorf("argument %s: %w", p.Name, err)
		}
		args[i] = v
	}

	var (
		out any
		err error
	)
	if d.Allocator == bind.AllocatorRequired {
		out, err = lib.CallWith(ctx, lib.Backend().Allocator(), name, args...)
	} else {
		out, err = lib.Call(ctx, name, args...)
	}
	if err != nil {
		return "", err
	}

	logCall(name, args, out)
	return formatCall(out, args, params), nil
}

func logCall(name string, args []any, out any) {
	bind.Logger().Debug("call",
		zap.String("function", name),
		zap.Any("args", args),
		zap.Any("result", out))
}

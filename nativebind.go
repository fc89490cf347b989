package nativebind

// Memory is the address space arguments are marshaled into.
// Addresses are backend specific: linear-memory offsets for WebAssembly,
// process addresses for shared libraries.
type Memory interface {
	Read(addr uint64, length uint64) ([]byte, error)
	Write(addr uint64, data []byte) error
}

// Allocator allocates memory in a Memory
type Allocator interface {
	Alloc(size, align uint64) (uint64, error)
	Free(addr, size, align uint64)
}

// Symbol is a resolved native symbol.
type Symbol struct {
	// Ref is a backend-specific handle (for example a wazero api.Function).
	Ref  any
	Name string
	Addr uint64
}

// SymbolTable maps symbol names to resolved symbols for one loaded library.
// Implementations are read-only for the lifetime of the library.
type SymbolTable interface {
	Name() string
	Find(name string) (Symbol, bool)
}

// StaticTable is an in-memory SymbolTable.
type StaticTable struct {
	symbols map[string]Symbol
	name    string
}

// NewStaticTable creates a symbol table from the given symbols.
func NewStaticTable(name string, symbols ...Symbol) *StaticTable {
	t := &StaticTable{name: name, symbols: make(map[string]Symbol, len(symbols))}
	for _, s := range symbols {
		t.symbols[s.Name] = s
	}
	return t
}

func (t *StaticTable) Name() string { return t.name }

func (t *StaticTable) Find(name string) (Symbol, bool) {
	s, ok := t.symbols[name]
	return s, ok
}

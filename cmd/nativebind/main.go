// Command nativebind inspects declaration files and calls the functions
// they declare in a WebAssembly module or a shared library.
package main

import (
	"os"
)

func main() {
	if err := newCLI().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command dwarfaccel dumps the accelerator tables embedded in an object
// file: the legacy Apple hash tables (.apple_names, .apple_types,
// .apple_namespaces, .apple_objc) and the DWARF v5 .debug_names section.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

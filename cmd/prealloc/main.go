// Command prealloc runs a pool of pre-warmed worker processes behind an HTTP
// admin API (`prealloc serve`) and doubles as the worker binary itself
// (`prealloc worker`).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

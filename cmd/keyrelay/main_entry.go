//go:build !excludemain

package main

import "os"

// exitFunc ends the process with runApp's code; swapped in tests.
var exitFunc = os.Exit

// main exits 0 on success, 2 when refusing to run as root, and 1 for any
// other failure (a command may choose its own code through exitCodeErr).
func main() {
	exitFunc(runApp(os.Args))
}

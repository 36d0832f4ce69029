// Command pathwatch watches filesystem paths and reports coalesced
// change events, optionally running a command after each one.
package main

import "os"

const version = "1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.Stdin))
}

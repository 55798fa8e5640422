// Command lsp-probe drives a language server over stdio and reports what it
// does: handshake results, completion behavior, and notable stderr output.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}

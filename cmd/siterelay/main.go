/*
siterelay (Entry Point)

siterelay fetches an obfuscated site-list document, decodes it and walks the
listed sites on a paced two-phase schedule, handing each selected URL to a
browser surface.
*/
package main

import (
	"github.com/whit3rabbit/siterelay/cmd/siterelay/cmd"
)

// main is the entry point of the application.
func main() {
	cmd.Execute()
}

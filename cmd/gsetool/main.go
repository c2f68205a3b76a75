// Command gsetool drives pkg/gse's encapsulator, de-encapsulator, and
// refragmenter from the command line for inspection, scripting, and
// load testing.
package main

import (
	"os"

	"github.com/marmos91/gse/cmd/gsetool/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		commands.PrintErr("%v", err)
		os.Exit(1)
	}
}

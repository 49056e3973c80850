// The main package for the scriptcensus executable.
package main

import (
	"os"

	"github.com/JakeFAU/scriptcensus/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}

package main

import (
	"context"
	"os"

	"github.com/xkilldash9x/webgym/cmd"
)

// main delegates to the cmd package. The entry point under cmd/webgym adds
// signal handling and crash reporting on top of this.
func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}

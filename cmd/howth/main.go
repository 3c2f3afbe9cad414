// Command howth is the CLI entrypoint: a thin wrapper around
// internal/cmd's cobra root, matching the teacher's cmd/turbo/main.go
// layout (a minimal main package delegating everything to internal/cmd).
package main

import (
	"os"

	"github.com/howth-dev/howth/internal/cmd"
)

const howthVersion = "0.1.0"

func main() {
	os.Exit(cmd.RunWithArgs(os.Args[1:], howthVersion))
}

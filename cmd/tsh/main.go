// Command tsh is a toy login shell with job control, a simulated /proc
// mirror and persisted per-user history.
package main

import (
	"os"

	"github.com/coreyhill/tsh/internal/tsh/cli"
)

func main() {
	os.Exit(cli.Run())
}

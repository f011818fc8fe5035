// Package cli defines the tsh command line interface.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/coreyhill/tsh/internal/tsh/shell"
)

var (
	verboseFlag  = flag.Bool("v", false, "enable verbose diagnostics on stderr")
	noPromptFlag = flag.Bool("p", false, "suppress the tsh> prompt, for scripted drivers")
	rootFlag     = flag.String("root", "", "base directory holding proc/, home/ and etc/ (default: current directory)")
	helpFlag     = flag.Bool("h", false, "print usage")
)

const (
	// ecSuccess is returned on orderly quit, EOF, or -h.
	ecSuccess = 0
	// ecFailure is returned on any fatal OS error, bad invocation, or failed
	// login.
	ecFailure = 1
)

// Run is the entrypoint of the tsh executable. It reads credentials from
// stdin, logs in, then drives the session loop until EOF or a builtin exits.
func Run() int {
	flag.CommandLine.Init(os.Args[0], flag.ContinueOnError)
	if err := flag.CommandLine.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ecSuccess
		}
		return ecFailure
	}

	if *helpFlag {
		usage("")
		return ecSuccess
	}

	ctx, err := shell.New(shell.Config{
		Root:     *rootFlag,
		Verbose:  *verboseFlag,
		NoPrompt: *noPromptFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "tsh: %v\n", err)
		return ecFailure
	}

	if err := ctx.LoginFromFirstLine(); err != nil {
		fmt.Fprintln(os.Stdout, err)
		return ecFailure
	}

	return ctx.Run()
}

// usage prints a general overview of the tsh executable. The text argument
// may be used to add a detailed message ahead of the usage block.
func usage(text string) {
	var b strings.Builder
	if text != "" {
		_, _ = b.WriteString(fmt.Sprintf("\nNotice: %s", text))
	}

	b.WriteString(
		`

tsh is a toy login shell with job control, a simulated /proc mirror and
persisted per-user history.

Usage:
  tsh [flags]

Input:
  the first line of stdin must be "username password"; every following
  line is a command.

Flags:
  -v       enable verbose diagnostics on stderr
  -p       suppress the tsh> prompt, for scripted drivers
  -root    base directory holding proc/, home/ and etc/ (default: current directory)
  -h       print this message
`)
	fmt.Fprint(os.Stdout, b.String())
}

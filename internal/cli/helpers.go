package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/lherron/cfgsync/internal/render"
)

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitPartial = 5
)

// ExitError carries the process exit code for a failed command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// exitError returns an error that will cause the CLI to exit with the given code
func exitError(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

// renderer builds a renderer for the --output and --porcelain flags
func renderer(cmd *cobra.Command, format string) (*render.Renderer, error) {
	f, err := render.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	porcelain, _ := cmd.Flags().GetBool("porcelain")
	return render.NewRenderer(cmd.OutOrStdout(), render.Options{Format: f, Porcelain: porcelain}), nil
}

// interactive reports whether in is a terminal the operator can answer on
func interactive(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// Package execrunner implements hammer.CommandRunner over os/exec.
package execrunner

import (
	"bytes"
	"os"
	"os/exec"

	"github.com/HackerOS-Linux-System/hammer/internal/hammer"
)

// Runner shells out to external programs. It never involves a shell itself:
// argv is passed straight to exec.Command, so no argument is ever subject to
// word-splitting or glob expansion, even when a caller's argv happens to
// include a literal shell binary such as "/bin/sh".
type Runner struct{}

// New constructs a Runner.
func New() *Runner {
	return &Runner{}
}

var _ hammer.CommandRunner = (*Runner)(nil)

// Capture runs argv[0] with argv[1:], collecting stdout/stderr into memory.
func (r *Runner) Capture(argv ...string) (hammer.CommandResult, error) {
	if len(argv) == 0 {
		return hammer.CommandResult{}, os.ErrInvalid
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := hammer.CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		result.Success = true
		result.ExitCode = 0
		return result, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.Success = false
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return result, err
}

// Inherit runs argv[0] with argv[1:], connecting its stdio directly to the
// controlling process's own.
func (r *Runner) Inherit(argv ...string) error {
	if len(argv) == 0 {
		return os.ErrInvalid
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

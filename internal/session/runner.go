package session

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// Runner executes one operator command against the mounted store.
type Runner interface {
	Run(ctx context.Context, command string) error
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, command string) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, command string) error {
	return f(ctx, command)
}

// ShellRunner runs commands through "<Shell> -c" with the mount point as
// the working directory.
type ShellRunner struct {
	Shell  string
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewShellRunner returns a runner wired to the process's standard streams.
func NewShellRunner(shell, dir string) *ShellRunner {
	return &ShellRunner{
		Shell:  shell,
		Dir:    dir,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Run implements Runner.
func (r *ShellRunner) Run(ctx context.Context, command string) error {
	cmd := exec.CommandContext(ctx, r.Shell, "-c", command)
	cmd.Dir = r.Dir
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}

// Package shell runs the external tools a build drives (qemu-img, parted,
// kpartx, debootstrap, rsync, ...). All of them are synchronous; a non-zero
// exit status is an error carrying the command line and its output.
package shell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Runner runs a command to completion and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct {
	Log logrus.FieldLogger
}

// NewExecRunner returns an ExecRunner logging to log, or to the logrus
// standard logger if log is nil.
func NewExecRunner(log logrus.FieldLogger) *ExecRunner {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ExecRunner{Log: log}
}

// Run implements Runner. A cancelled ctx keeps the command from starting,
// but a command that has started always runs to completion.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmdline := CommandLine(name, args...)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("not running %s: %w", cmdline, err)
	}
	r.Log.Debugf("Running %s", cmdline)

	cmd := exec.CommandContext(context.WithoutCancel(ctx), name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, &CommandError{Cmdline: cmdline, Output: string(output), Err: err}
	}

	return output, nil
}

// CommandError is returned for a command that could not be started or
// exited non-zero.
type CommandError struct {
	Cmdline string
	Output  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: %v", e.Cmdline, e.Err)
	}
	return fmt.Sprintf("%s: %v\nOutput: %s", e.Cmdline, e.Err, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error { return e.Err }

// CommandLine joins name and args for display.
func CommandLine(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}

package probe

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"github.com/hamed0406/netvigil/internal/domain"
)

// Prober performs one reachability check against one endpoint. It never
// returns an error: every failure is folded into the outcome.
type Prober interface {
	Probe(ctx context.Context, ep domain.Endpoint) domain.ProbeOutcome
}

// Output is what a finished command left behind.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner runs an external command. The error is reserved for commands that
// could not be started at all; a non-zero exit is reported in Output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return out, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		out.ExitCode = ee.ExitCode()
		return out, nil
	}
	return out, err
}

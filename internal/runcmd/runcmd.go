// Package runcmd runs the per-output hook command after a wallpaper switch.
package runcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/shlex"
)

const Placeholder = "{image}"

var ErrEmptyCommand = errors.New("empty command")

// Split parses command with shell quoting rules and replaces every argument that is
// exactly {image} with image.
func Split(command, image string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, ErrEmptyCommand
	}

	for i, a := range args {
		if a == Placeholder {
			args[i] = image
		}
	}
	return args, nil
}

// Result is what a finished command produced.
type Result struct {
	Args     []string
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// ExecFunc runs argv and collects its output.
type ExecFunc func(ctx context.Context, args []string) Result

func execCommand(ctx context.Context, args []string) Result {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Args:   args,
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

// Runner starts hook commands in the background.
type Runner struct {
	exec ExecFunc
	wg   sync.WaitGroup
}

func NewRunner() *Runner {
	return &Runner{exec: execCommand}
}

// NewRunnerWith uses fn in place of os/exec.
func NewRunnerWith(fn ExecFunc) *Runner {
	return &Runner{exec: fn}
}

// Run starts command for image without waiting for it. The output is logged when the
// command exits.
func (r *Runner) Run(ctx context.Context, output, command, image string) error {
	args, err := Split(command, image)
	if err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		res := r.exec(ctx, args)
		logResult(output, res)
	}()
	return nil
}

// Wait blocks until every started command has exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func logResult(output string, res Result) {
	if res.Err != nil {
		log.Error("command run error, check if the command exists and is correct", "output", output, "command", res.Args[0], "err", res.Err)
		return
	}

	logger := log.With("output", output, "command", res.Args[0], "exit_code", res.ExitCode)
	if res.Stdout != "" {
		logger.Info("command stdout", "stdout", res.Stdout)
	}
	if res.Stderr != "" {
		logger.Warn("command stderr", "stderr", res.Stderr)
	}
	if res.ExitCode != 0 {
		logger.Warn("command exited with an error")
	} else {
		logger.Debug("command finished")
	}
}

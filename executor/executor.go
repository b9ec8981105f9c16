// Package executor runs a submission's source under CPU-time and memory
// limits and reports wall-clock cost, the Go analogue of
// original_source/app/libs/executors/*.py's Executor/ScriptExecutor
// hierarchy.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Sentinel exit codes, matching original_source/app/libs/executors/executor.py.
const (
	TimeoutExitCode       = -101
	CompileErrorExitCode  = -102
)

// Limits bounds one execution: CPU-time and wall-clock timeout, and a memory
// ceiling in bytes. A zero Timeout or MaxMemoryBytes means "no limit".
type Limits struct {
	Timeout       time.Duration
	MaxMemoryBytes int64
}

// Result is what every Executor returns: spec.md §4.2's
// {stdout, stderr, exit_code, cost, success}.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Cost     time.Duration
	Success  bool
}

// Executor runs a script against optional stdin under limits and returns a
// Result. A program that fails to compile, exits non-zero or times out is
// reported through Result (ExitCode, Success), never through error. error is
// returned only when the executor cannot set the run up, such as failing to
// create or write its temporary files. A missing interpreter or compiler
// binary is not an error either: it surfaces as a failed Result.
type Executor interface {
	Execute(ctx context.Context, script string, stdin *string, limits Limits) (Result, error)
}

// CompileError describes a failed build step of a compiled-language
// executor. CppExecutor.Execute does not return it: a failed compile is
// reported as a Result with ExitCode == CompileErrorExitCode and the
// compiler's stderr, matching cpp_executor.py's except CompileError handler.
type CompileError struct {
	Stderr string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile error: %s", e.Stderr)
}

// runProcess is the ProcessExecutor analogue: spawns args with stdin piped
// in, enforces timeout via the context, and measures wall-clock cost with a
// monotonic clock read (time.Now() in Go is already monotonic-backed for
// Sub/Since).
func runProcess(ctx context.Context, args []string, stdin *string, timeout time.Duration, setup func(*exec.Cmd)) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader([]byte(*stdin))
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if setup != nil {
		setup(cmd)
	}

	runErr := cmd.Run()
	cost := time.Since(start)

	exitCode := 0
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		exitCode = TimeoutExitCode
	case runErr != nil:
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = TimeoutExitCode
		}
	}

	return Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Cost:     cost,
		Success:  exitCode == 0,
	}
}

// Truncate caps s to max bytes, matching spec.md §4.2's MAX_STDOUT_ERROR_LENGTH
// truncation applied before a SubmissionResult is published.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

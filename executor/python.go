package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Sentinel markers the Python prelude/postlude print around the user's own
// stdout, letting the outer process recover both the unpolluted stdout and
// the measured in-process duration. Matches
// original_source/app/libs/executors/python_executor.py exactly.
const (
	scriptEndingMark = "@@E"
	durationMark     = "@@D"
)

const pythonPreTemplate = `
import time

_exec_time_start = time.perf_counter()

`

const pythonPostTemplate = `

_exec_time_end = time.perf_counter()
_exec_duration = _exec_time_end - _exec_time_start
print("` + scriptEndingMark + `")
print(f"` + durationMark + `{_exec_duration}", flush=True)
`

// PythonExecutor runs a Python script wrapped in a timing prelude/postlude,
// under an RLIMIT_CPU/RLIMIT_AS/RLIMIT_CORE harness.
type PythonExecutor struct {
	// PythonPath is the interpreter binary, e.g. "/usr/bin/python3".
	PythonPath string
	// SelfPath is this worker's own executable, used to re-exec into the
	// rlimit harness before becoming PythonPath.
	SelfPath string
}

var _ Executor = (*PythonExecutor)(nil)

func (e *PythonExecutor) Execute(ctx context.Context, script string, stdin *string, limits Limits) (Result, error) {
	f, err := os.CreateTemp("", "judge-*.py")
	if err != nil {
		return Result{}, fmt.Errorf("python executor: create temp script: %w", err)
	}
	defer os.Remove(f.Name())

	body := pythonPreTemplate + "\n" + script + "\n" + pythonPostTemplate
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("python executor: write temp script: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("python executor: close temp script: %w", err)
	}

	pythonLimits := limits
	if pythonLimits.MaxMemoryBytes > 0 {
		// Extra headroom for interpreter overhead, as python_executor.py's
		// __init__ does ("+ 1024*1024*1024 for python overhead").
		pythonLimits.MaxMemoryBytes += 1 << 30
	}

	args := []string{e.SelfPath, e.PythonPath, f.Name()}
	setup := func(cmd *exec.Cmd) {
		cmd.Env = append(os.Environ(), harnessEnv(pythonLimits)...)
		// Keep BLAS/OMP threading out of the accounting, matching the
		// env var the Python prelude relies on for honest CPU measurement.
		cmd.Env = append(cmd.Env, "OPENBLAS_NUM_THREADS=1", "OMP_NUM_THREADS=1")
	}

	result := runProcess(ctx, args, stdin, limits.Timeout, setup)
	return processPythonResult(result), nil
}

// processPythonResult splits the child's stdout at the @@E sentinel to
// recover the user's own stdout and re-derive cost from the @@D line,
// mirroring PythonExecutor.process_result in the original.
func processPythonResult(r Result) Result {
	idx := strings.Index(r.Stdout, scriptEndingMark)
	if idx < 0 {
		return r
	}
	userStdout := r.Stdout[:idx]
	meta := r.Stdout[idx+len(scriptEndingMark):]

	for _, line := range strings.Split(meta, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, durationMark); ok {
			if seconds, err := strconv.ParseFloat(rest, 64); err == nil {
				r.Cost = time.Duration(seconds * float64(time.Second))
			}
			break
		}
	}
	r.Stdout = userStdout
	return r
}

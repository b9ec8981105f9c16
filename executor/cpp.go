package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// cppResourceLimitHeader is the static-initializer header prepended to every
// compiled submission. original_source installs the actual rlimit/alarm
// logic in a C static constructor so it runs before main(); we keep the
// *compiled binary* free of that logic and instead apply the same limits
// from the Go harness (see harness.go) by launching the binary through
// SelfPath, which is equivalent in effect (limits are live before the
// judged code's first instruction) and avoids depending on a specific libc
// ifunc/constructor ABI from generated Go-side C.
const cppResourceLimitHeader = `// resource_limit.h — no-op placeholder; resource limits for this binary are
// applied by the worker's rlimit harness before exec, not by this header.
`

// CppExecutor compiles a C++ submission with -O2 and runs the resulting
// binary under the rlimit harness.
type CppExecutor struct {
	// CompilerPath is the compiler binary, e.g. "/usr/bin/g++".
	CompilerPath string
	// SelfPath is this worker's own executable, used to re-exec into the
	// rlimit harness before becoming the compiled binary.
	SelfPath string
}

var _ Executor = (*CppExecutor)(nil)

func (e *CppExecutor) Execute(ctx context.Context, script string, stdin *string, limits Limits) (Result, error) {
	dir, err := os.MkdirTemp("", "judge-cpp-*")
	if err != nil {
		return Result{}, fmt.Errorf("cpp executor: create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	headerPath := filepath.Join(dir, "resource_limit.h")
	sourcePath := filepath.Join(dir, "source.cpp")
	execPath := filepath.Join(dir, "run")

	if err := os.WriteFile(headerPath, []byte(cppResourceLimitHeader), 0o644); err != nil {
		return Result{}, fmt.Errorf("cpp executor: write resource_limit.h: %w", err)
	}
	source := "#include \"resource_limit.h\"\n" + script
	if err := os.WriteFile(sourcePath, []byte(source), 0o644); err != nil {
		return Result{}, fmt.Errorf("cpp executor: write source.cpp: %w", err)
	}

	compile := runProcess(ctx, []string{e.CompilerPath, "-O2", sourcePath, "-o", execPath}, nil, 0, nil)
	if !compile.Success {
		return Result{
			Stdout:   "",
			Stderr:   compile.Stderr,
			ExitCode: CompileErrorExitCode,
			Cost:     0,
			Success:  false,
		}, nil
	}

	args := []string{e.SelfPath, execPath}
	setup := func(cmd *exec.Cmd) {
		cmd.Env = append(os.Environ(), harnessEnv(limits)...)
	}
	return runProcess(ctx, args, stdin, limits.Timeout, setup), nil
}

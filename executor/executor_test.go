package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hel", Truncate("hello", 3))
	assert.Equal(t, "hello", Truncate("hello", 0))
}

func TestProcessPythonResultSplitsSentinel(t *testing.T) {
	r := Result{
		Stdout:  "hello world\n@@E\n@@D0.125\n",
		ExitCode: 0,
		Success: true,
	}
	out := processPythonResult(r)
	assert.Equal(t, "hello world\n", out.Stdout)
	assert.Equal(t, 125*time.Millisecond, out.Cost)
}

func TestProcessPythonResultNoSentinel(t *testing.T) {
	r := Result{Stdout: "no markers here", Cost: time.Second}
	out := processPythonResult(r)
	assert.Equal(t, "no markers here", out.Stdout)
	assert.Equal(t, time.Second, out.Cost)
}

func TestHarnessEnv(t *testing.T) {
	env := harnessEnv(Limits{Timeout: 2500 * time.Millisecond, MaxMemoryBytes: 1024})
	assert.Contains(t, env, "JUDGE_RLIMIT_HARNESS=1")
	assert.Contains(t, env, "JUDGE_RLIMIT_CPU_SECONDS=2")
	assert.Contains(t, env, "JUDGE_RLIMIT_TIMEOUT_SECONDS=2")
	assert.Contains(t, env, "JUDGE_RLIMIT_AS_BYTES=1024")
}

func TestHarnessEnvNoLimits(t *testing.T) {
	env := harnessEnv(Limits{})
	assert.Equal(t, []string{"JUDGE_RLIMIT_HARNESS=1"}, env)
}

func TestIsHarnessChild(t *testing.T) {
	t.Setenv("JUDGE_RLIMIT_HARNESS", "")
	assert.False(t, IsHarnessChild())
	t.Setenv("JUDGE_RLIMIT_HARNESS", "1")
	assert.True(t, IsHarnessChild())
}

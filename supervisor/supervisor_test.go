package supervisor

import (
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
)

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestStartAndRestartDeadWorker(t *testing.T) {
	cfg := config.Config{MaxWorkers: 1, MaxQueueWaitTime: time.Second}
	s := &Supervisor{Config: cfg, Log: logging.New("test-supervisor", discard{}), SelfPath: "true"}

	require.NoError(t, s.Start())
	require.Len(t, s.workers, 1)

	// "true" exits immediately; give the reaper goroutine time to observe it.
	time.Sleep(200 * time.Millisecond)

	s.checkWorkers()
	// the replacement process (also "true") may itself have already exited,
	// but this sweep must have observed and replaced the original dead one.
	assert.Len(t, s.workers, 1)
}

func TestCheckChildrenDetectsBusyAndHangedChild(t *testing.T) {
	cfg := config.Config{MaxExecutionTime: 20 * time.Millisecond}
	s := &Supervisor{Config: cfg, Log: logging.New("test-supervisor", discard{}), HangSlack: 20 * time.Millisecond}

	child := exec.Command("sleep", "5")
	require.NoError(t, child.Start())
	defer child.Process.Kill()

	time.Sleep(60 * time.Millisecond)

	busy, hanged, err := s.checkChildren(os.Getpid())
	require.NoError(t, err)
	assert.True(t, busy)
	assert.True(t, hanged)
}

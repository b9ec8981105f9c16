// Package supervisor manages the pool of worker OS processes described in
// spec.md §4.4: it starts MAX_WORKERS workers, restarts any that die, and
// force-kills any descendant process of a worker that has been running
// longer than MAX_EXECUTION_TIME plus a small slack (a runaway graded
// program the executor's own timeout did not stop). Grounded on
// original_source/app/worker_manager.py's WorkerManager.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
	"github.com/xkz0777/code-judge/internal/metricsutil"
)

// WorkerChildEnv, when set to "1" in a re-exec'd process's environment,
// tells cmd/judgeworker's main to run the worker loop instead of acting as
// the supervisor — the Go analogue of multiprocessing.Process forking a
// Worker instance.
const WorkerChildEnv = "JUDGE_WORKER_CHILD"

const sweepInterval = 30 * time.Second

// defaultHangSlack is added to MAX_EXECUTION_TIME to get the wall-age
// threshold a worker's descendant process must exceed before the supervisor
// kills it outright: the executor's own timeout (runProcess's context
// deadline) ends the program it started at MAX_EXECUTION_TIME, so this is a
// backstop for processes that timeout did not end, not a second timeout
// policy (see DESIGN.md's Open Question decision).
const defaultHangSlack = 2 * time.Second

type managedWorker struct {
	cmd *exec.Cmd
}

// Supervisor owns a fixed-size pool of worker processes and periodically
// checks their liveness and the wall age of whatever they are currently
// running.
type Supervisor struct {
	Config  config.Config
	Log     *logging.Logger
	Metrics metricsutil.Metrics

	// SelfPath is the executable re-exec'd as a worker child; defaults to
	// os.Executable() when empty.
	SelfPath string

	// HangSlack overrides defaultHangSlack; zero means use the default.
	HangSlack time.Duration

	mu      sync.Mutex
	workers []*managedWorker
}

// New builds a Supervisor. log should already be scoped with WithModule.
func New(cfg config.Config, log *logging.Logger, metrics metricsutil.Metrics) *Supervisor {
	return &Supervisor{Config: cfg, Log: log, Metrics: metrics}
}

func (s *Supervisor) hangSlack() time.Duration {
	if s.HangSlack > 0 {
		return s.HangSlack
	}
	return defaultHangSlack
}

// Start spawns Config.MaxWorkers worker processes, the equivalent of
// WorkerManager.__init__'s start loop.
func (s *Supervisor) Start() error {
	selfPath, err := s.resolveSelfPath()
	if err != nil {
		return fmt.Errorf("supervisor: resolve self path: %w", err)
	}
	s.SelfPath = selfPath

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Log.Activity("starting workers", map[string]any{"count": s.Config.MaxWorkers})
	for i := 0; i < s.Config.MaxWorkers; i++ {
		w, err := s.spawnWorker()
		if err != nil {
			return fmt.Errorf("supervisor: spawn worker %d: %w", i, err)
		}
		s.workers = append(s.workers, w)
	}
	s.Log.Activity("started workers", map[string]any{"count": len(s.workers)})
	return nil
}

func (s *Supervisor) resolveSelfPath() (string, error) {
	if s.SelfPath != "" {
		return s.SelfPath, nil
	}
	return os.Executable()
}

func (s *Supervisor) spawnWorker() (*managedWorker, error) {
	cmd := exec.Command(s.SelfPath)
	cmd.Env = append(os.Environ(), WorkerChildEnv+"=1")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	go cmd.Wait() // reap so cmd.ProcessState reflects exit without zombies
	return &managedWorker{cmd: cmd}, nil
}

// RunBackground starts the 30-second check loop described in
// WorkerManager.run/run_background, returning once ctx is cancelled.
func (s *Supervisor) RunBackground(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Log.Activity("checking workers", nil)
			s.checkWorkers()
		}
	}
}

// checkWorkers mirrors WorkerManager._check_workers: restart dead workers,
// count busy ones (those with at least one live child process), and kill
// any descendant that has been running longer than MAX_EXECUTION_TIME plus
// hangSlack (see checkChildren).
func (s *Supervisor) checkWorkers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var failed, busy, hanged int
	for i, w := range s.workers {
		if w.cmd.ProcessState != nil {
			s.Log.Warn("worker dead, restarting", map[string]any{"pid": w.cmd.Process.Pid})
			replacement, err := s.spawnWorker()
			if err != nil {
				s.Log.Err(err, "failed to restart worker", nil)
				continue
			}
			s.workers[i] = replacement
			failed++
			continue
		}

		isBusy, isHanged, err := s.checkChildren(w.cmd.Process.Pid)
		if err != nil {
			s.Log.Err(err, "failed to check worker", map[string]any{"pid": w.cmd.Process.Pid})
			continue
		}
		if isBusy {
			busy++
		}
		if isHanged {
			hanged++
		}
	}

	free := len(s.workers) - busy
	s.Log.Activity("worker sweep complete", map[string]any{
		"total": len(s.workers), "free": free, "failed": failed, "busy": busy, "hanged": hanged,
	})
	if s.Metrics != nil {
		s.Metrics.Record(metricsutil.MetricWorkersTotal, float64(len(s.workers)))
		s.Metrics.Record(metricsutil.MetricWorkersFree, float64(free))
		s.Metrics.Record(metricsutil.MetricWorkersBusy, float64(busy))
		s.Metrics.Record(metricsutil.MetricWorkersFailed, float64(failed))
		s.Metrics.Record(metricsutil.MetricWorkersHanged, float64(hanged))
	}
}

// checkChildren walks every descendant of pid (the interpreter, compiler or
// compiled program is a direct child of the worker, since the harness execs
// in place; anything the graded program spawns sits further down), killing
// any whose wall age exceeds
// MAX_EXECUTION_TIME plus hangSlack.
func (s *Supervisor) checkChildren(pid int) (busy, hanged bool, err error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false, false, err
	}

	descendants, err := collectDescendants(proc)
	if err != nil {
		return false, false, err
	}

	for _, child := range descendants {
		busy = true
		running, err := child.IsRunning()
		if err != nil || !running {
			continue
		}
		createMs, err := child.CreateTime()
		if err != nil {
			continue
		}
		age := time.Since(time.UnixMilli(createMs))
		if age > s.Config.MaxExecutionTime+s.hangSlack() {
			hanged = true
			s.Log.Activity("worker child running too long, killing", map[string]any{
				"pid": child.Pid, "age_seconds": age.Seconds(),
			})
			_ = child.Kill()
		}
	}
	return busy, hanged, nil
}

func collectDescendants(p *process.Process) ([]*process.Process, error) {
	children, err := p.Children()
	if err != nil {
		// gopsutil returns an error for "no children found", which is the
		// common case, not a failure.
		return nil, nil
	}
	all := append([]*process.Process{}, children...)
	for _, c := range children {
		grandchildren, err := collectDescendants(c)
		if err == nil {
			all = append(all, grandchildren...)
		}
	}
	return all, nil
}

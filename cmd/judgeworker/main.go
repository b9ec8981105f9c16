// Command judgeworker is both the worker-supervisor entrypoint and, when
// re-exec'd with the right marker environment variables, the worker
// process and the rlimit harness it spawns to run graded code. One binary
// plays all three roles so the supervisor can re-exec "itself" the way
// original_source/app/worker_manager.py's multiprocessing.Process forks a
// fresh copy of the running interpreter.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkz0777/code-judge/executor"
	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
	"github.com/xkz0777/code-judge/internal/metricsutil"
	"github.com/xkz0777/code-judge/queue"
	"github.com/xkz0777/code-judge/supervisor"
	"github.com/xkz0777/code-judge/worker"
)

func main() {
	// Must run before anything else: a successful RunHarness replaces this
	// process image via syscall.Exec and never returns.
	if executor.IsHarnessChild() {
		if err := executor.RunHarness(); err != nil {
			fmt.Fprintln(os.Stderr, "judgeworker: harness failed:", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Env{}.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "judgeworker: config:", err)
		os.Exit(1)
	}

	selfPath, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "judgeworker: resolve self path:", err)
		os.Exit(1)
	}

	log := logging.New("judgeworker", os.Stdout)

	if os.Getenv(supervisor.WorkerChildEnv) == "1" {
		runWorkerChild(cfg, log, selfPath)
		return
	}
	runSupervisor(cfg, log)
}

// runWorkerChild is what a re-exec'd worker process becomes, the Go
// analogue of multiprocessing.Process dispatching into Worker._run_loop.
func runWorkerChild(cfg config.Config, log *logging.Logger, selfPath string) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	keys := queue.NewKeys(cfg.RedisKeyPrefix, "v1")
	q, err := queue.NewRedisAdapter(queue.Options{URI: cfg.RedisURI, ReadTimeout: cfg.RedisSocketTimeout})
	if err != nil {
		log.Err(err, "failed to connect to queue store", nil)
		os.Exit(1)
	}
	defer q.Close()

	w := worker.NewWorker(q, keys, cfg, log.WithModule("worker"), selfPath)
	w.Run(ctx)
}

// runSupervisor starts and watches the worker pool until terminated.
func runSupervisor(cfg config.Config, log *logging.Logger) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	metrics := metricsutil.NewPrometheusMetrics()
	metricsutil.RegisterJudgeMetrics(metrics)

	sup := supervisor.New(cfg, log.WithModule("supervisor"), metrics)
	if err := sup.Start(); err != nil {
		log.Err(err, "failed to start worker pool", nil)
		os.Exit(1)
	}
	sup.RunBackground(ctx)
}

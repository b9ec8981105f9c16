// Command judgeapi serves the HTTP front end: it wires a Coordinator to a
// queue adapter and listens for submissions. Set RUN_WORKERS=1 to also
// start the worker supervisor in this same process, for single-binary
// deployments that don't need judgeworker split out separately.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkz0777/code-judge/coordinator"
	"github.com/xkz0777/code-judge/executor"
	"github.com/xkz0777/code-judge/httpapi"
	"github.com/xkz0777/code-judge/internal/config"
	"github.com/xkz0777/code-judge/internal/logging"
	"github.com/xkz0777/code-judge/internal/metricsutil"
	"github.com/xkz0777/code-judge/queue"
	"github.com/xkz0777/code-judge/supervisor"
	"github.com/xkz0777/code-judge/worker"
)

func main() {
	// When RUN_WORKERS=1 the supervisor re-execs this same binary as a
	// worker process (and a worker, in turn, re-execs itself again as the
	// rlimit harness); both of those re-exec targets must be handled before
	// any server initialization runs.
	if executor.IsHarnessChild() {
		if err := executor.RunHarness(); err != nil {
			fmt.Fprintln(os.Stderr, "judgeapi: harness failed:", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Env{}.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "judgeapi: config:", err)
		os.Exit(1)
	}

	log := logging.New("judgeapi", os.Stdout)
	keys := queue.NewKeys(cfg.RedisKeyPrefix, "v1")

	selfPath, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "judgeapi: resolve self path:", err)
		os.Exit(1)
	}

	if os.Getenv(supervisor.WorkerChildEnv) == "1" {
		runWorkerChild(cfg, log, selfPath)
		return
	}

	q, err := queue.NewRedisAdapter(queue.Options{URI: cfg.RedisURI, ReadTimeout: cfg.RedisSocketTimeout})
	if err != nil {
		log.Err(err, "failed to connect to queue store", nil)
		os.Exit(1)
	}
	defer q.Close()

	metrics := metricsutil.NewPrometheusMetrics()
	metricsutil.RegisterJudgeMetrics(metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if cfg.RunWorkers {
		sup := supervisor.New(cfg, log.WithModule("supervisor"), metrics)
		sup.SelfPath = selfPath
		if err := sup.Start(); err != nil {
			log.Err(err, "failed to start in-process worker pool", nil)
			os.Exit(1)
		}
		go sup.RunBackground(ctx)
	}

	coord := coordinator.New(q, keys, cfg, log.WithModule("coordinator"))
	api := &httpapi.API{
		Coordinator: coord,
		Queue:       q,
		Keys:        keys,
		Config:      cfg,
		Log:         log.WithModule("httpapi"),
		Metrics:     metrics,
	}

	gr := httpapi.NewRouter(api)

	addr := ":8080"
	if v := os.Getenv("JUDGE_API_ADDR"); v != "" {
		addr = v
	}

	log.Activity("starting HTTP server", map[string]any{"addr": addr})
	if err := gr.Serve(addr); err != nil {
		log.Err(err, "HTTP server exited", nil)
		os.Exit(1)
	}
}

// runWorkerChild is what this binary becomes once the supervisor re-execs
// it with WorkerChildEnv set, identical to judgeworker's own worker-child
// branch.
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

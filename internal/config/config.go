// Package config loads the environment-variable configuration described in
// spec.md §6. It keeps the teacher's Config-as-interface shape
// (LoadConfig/Check) so a future dynamic source could implement the same
// contract, but ships only the environment-variable source: config loading
// itself is an explicit out-of-scope collaborator (spec.md's Non-goals),
// and alya's etcd-backed rigel source is dropped (see DESIGN.md).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

// Source is the minimal loader contract, mirroring alya's config.Config
// interface narrowed to what this service actually needs.
type Source interface {
	Check() error
	LoadConfig() (Config, error)
}

// Config is every environment-variable-tunable knob spec.md §6 names, with
// the defaults the table gives in parentheses already substituted.
type Config struct {
	RedisURI                    string
	RedisKeyPrefix              string
	RedisResultExpire           time.Duration
	RedisResultLongBatchExpire  time.Duration
	RedisWorkQueueBlockTimeout  time.Duration
	RedisWorkerRegisterExpire   time.Duration
	RedisSocketTimeout          time.Duration

	MaxExecutionTime         time.Duration
	MaxQueueWaitTime          time.Duration
	LongBatchMaxQueueWaitTime time.Duration
	MaxQueueWorkLifeTime      time.Duration
	MaxMemoryBytes            int64
	MaxStdoutErrorLength      int
	MaxBatchChunkSize         int
	MaxLongBatchChunkSize     int
	MaxWorkers                int
	RunWorkers                bool

	PythonExecutorPath string
	CppCompilerPath    string
	ErrorCaseSavePath  string
}

// Env loads Config from the process environment.
type Env struct{}

var _ Source = Env{}

func (Env) Check() error {
	if os.Getenv("REDIS_URI") == "" {
		return fmt.Errorf("config: REDIS_URI is required")
	}
	return nil
}

func (e Env) LoadConfig() (Config, error) {
	if err := e.Check(); err != nil {
		return Config{}, err
	}

	c := Config{
		RedisURI:                   os.Getenv("REDIS_URI"),
		RedisKeyPrefix:             getString("REDIS_KEY_PREFIX", "js"),
		RedisResultExpire:          getSeconds("REDIS_RESULT_EXPIRE", 60),
		RedisResultLongBatchExpire: getSeconds("REDIS_RESULT_LONG_BATCH_EXPIRE", 3600),
		RedisWorkQueueBlockTimeout: getSeconds("REDIS_WORK_QUEUE_BLOCK_TIMEOUT", 30),
		RedisWorkerRegisterExpire:  getSeconds("REDIS_WORKER_REGISTER_EXPIRE", 120),
		RedisSocketTimeout:         getSeconds("REDIS_SOCKET_TIMEOUT", 60),

		MaxExecutionTime:          getSeconds("MAX_EXECUTION_TIME", 10),
		MaxQueueWaitTime:          getSeconds("MAX_QUEUE_WAIT_TIME", 15),
		LongBatchMaxQueueWaitTime: getSeconds("LONG_BATCH_MAX_QUEUE_WAIT_TIME", 3600),
		MaxQueueWorkLifeTime:      getSeconds("MAX_QUEUE_WORK_LIFE_TIME", 4),
		MaxMemoryBytes:            getInt64("MAX_MEMORY", 256) * 1024 * 1024,
		MaxStdoutErrorLength:      getInt("MAX_STDOUT_ERROR_LENGTH", 1000),
		MaxBatchChunkSize:         getInt("MAX_BATCH_CHUNK_SIZE", 2),
		MaxLongBatchChunkSize:     getInt("MAX_LONG_BATCH_CHUNK_SIZE", 100),
		MaxWorkers:                getInt("MAX_WORKERS", runtime.NumCPU()),
		RunWorkers:                getBool("RUN_WORKERS", false),

		PythonExecutorPath: getString("PYTHON_EXECUTOR_PATH", "python3"),
		CppCompilerPath:    getString("CPP_COMPILER_PATH", "g++"),
		ErrorCaseSavePath:  getString("ERROR_CASE_SAVE_PATH", ""),
	}

	if c.RedisWorkerRegisterExpire < c.RedisWorkQueueBlockTimeout {
		return Config{}, fmt.Errorf(
			"config: REDIS_WORKER_REGISTER_EXPIRE (%s) must be >= REDIS_WORK_QUEUE_BLOCK_TIMEOUT (%s)",
			c.RedisWorkerRegisterExpire, c.RedisWorkQueueBlockTimeout,
		)
	}
	if c.RedisSocketTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("config: REDIS_SOCKET_TIMEOUT must be >= 5s, got %s", c.RedisSocketTimeout)
	}

	return c, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getInt(key, defSeconds)) * time.Second
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

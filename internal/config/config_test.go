package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearJudgeEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REDIS_URI", "REDIS_KEY_PREFIX", "REDIS_RESULT_EXPIRE",
		"REDIS_RESULT_LONG_BATCH_EXPIRE", "REDIS_WORK_QUEUE_BLOCK_TIMEOUT",
		"REDIS_WORKER_REGISTER_EXPIRE", "REDIS_SOCKET_TIMEOUT",
		"MAX_EXECUTION_TIME", "MAX_QUEUE_WAIT_TIME",
		"LONG_BATCH_MAX_QUEUE_WAIT_TIME", "MAX_QUEUE_WORK_LIFE_TIME",
		"MAX_MEMORY", "MAX_STDOUT_ERROR_LENGTH", "MAX_BATCH_CHUNK_SIZE",
		"MAX_LONG_BATCH_CHUNK_SIZE", "MAX_WORKERS", "RUN_WORKERS",
		"PYTHON_EXECUTOR_PATH", "CPP_COMPILER_PATH", "ERROR_CASE_SAVE_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigRequiresRedisURI(t *testing.T) {
	clearJudgeEnv(t)
	_, err := Env{}.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearJudgeEnv(t)
	t.Setenv("REDIS_URI", "redis://localhost:6379")

	c, err := Env{}.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "js", c.RedisKeyPrefix)
	assert.Equal(t, 60*time.Second, c.RedisResultExpire)
	assert.Equal(t, 120*time.Second, c.RedisWorkerRegisterExpire)
	assert.Equal(t, int64(256*1024*1024), c.MaxMemoryBytes)
	assert.Equal(t, "python3", c.PythonExecutorPath)
	assert.Equal(t, "g++", c.CppCompilerPath)
	assert.False(t, c.RunWorkers)
}

func TestLoadConfigRejectsInvertedExpiry(t *testing.T) {
	clearJudgeEnv(t)
	t.Setenv("REDIS_URI", "redis://localhost:6379")
	t.Setenv("REDIS_WORKER_REGISTER_EXPIRE", "10")
	t.Setenv("REDIS_WORK_QUEUE_BLOCK_TIMEOUT", "30")

	_, err := Env{}.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsShortSocketTimeout(t *testing.T) {
	clearJudgeEnv(t)
	t.Setenv("REDIS_URI", "redis://localhost:6379")
	t.Setenv("REDIS_SOCKET_TIMEOUT", "2")

	_, err := Env{}.LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	clearJudgeEnv(t)
	t.Setenv("REDIS_URI", "redis+cluster://a:7000,b:7001")
	t.Setenv("MAX_WORKERS", "8")
	t.Setenv("RUN_WORKERS", "true")

	c, err := Env{}.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 8, c.MaxWorkers)
	assert.True(t, c.RunWorkers)
}

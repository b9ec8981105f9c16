package queue

import "fmt"

// Keys builds the store key names described in spec.md §5/§6, all scoped
// under a configurable prefix and schema version so multiple deployments can
// share one store. Mirrors the style of alya's jobs.BatchStatusKey /
// jobs.BatchResultKey hash-tag builders, generalized to the three key
// families this service needs.
type Keys struct {
	Prefix  string
	Version string
}

// NewKeys returns a Keys builder. An empty prefix or version falls back to
// the defaults used throughout spec.md's examples ("judge" / "v1").
func NewKeys(prefix, version string) Keys {
	if prefix == "" {
		prefix = "judge"
	}
	if version == "" {
		version = "v1"
	}
	return Keys{Prefix: prefix, Version: version}
}

// WorkQueue is the single shared list every worker blocks on.
func (k Keys) WorkQueue() string {
	return fmt.Sprintf("%s:%s:work-queue", k.Prefix, k.Version)
}

// ResultQueue is the per-work_id single-producer/single-consumer list a
// worker publishes its SubmissionResult onto. For a batched work_id of the
// form "{uuid}:i" this key still contains the "{uuid}" hash-tag fragment
// verbatim, so every result queue in a batch co-locates on one cluster shard.
func (k Keys) ResultQueue(workID string) string {
	return fmt.Sprintf("%s:%s:result-queue:%s", k.Prefix, k.Version, workID)
}

// WorkerHeartbeat is the short-TTL liveness key one running worker refreshes
// before every pop.
func (k Keys) WorkerHeartbeat(workerID string) string {
	return fmt.Sprintf("%s:%s:work-ids:%s", k.Prefix, k.Version, workerID)
}

// WorkerHeartbeatPattern is the scan_count glob counting live workers, used
// by GET /status's num_workers field.
func (k Keys) WorkerHeartbeatPattern() string {
	return fmt.Sprintf("%s:%s:work-ids:*", k.Prefix, k.Version)
}

// HashTag wraps an id in the "{…}" fragment Redis Cluster uses to force
// slot co-location, the same device as alya's rediskeys.go batch keys.
func HashTag(id string) string {
	return fmt.Sprintf("{%s}", id)
}

// BatchWorkID builds the i'th work_id of a batch sharing hash-tag tag
// (itself normally produced by HashTag), e.g. "{b1}:3".
func BatchWorkID(tag string, index int) string {
	return fmt.Sprintf("%s:%d", tag, index)
}

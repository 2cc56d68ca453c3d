package types

import "errors"

var (
	// ErrBadParallelism is a configuration error: worker/server
	// parallelism must both be strictly positive.
	ErrBadParallelism = errors.New("parameter server: worker and server parallelism must be > 0")

	// ErrMisroutedAnswer is a routing-invariant violation: a
	// ServerToWorker message carried a WorkerPartition outside [0, W).
	// Non-recoverable, it indicates a broken PSSender/partitioner.
	ErrMisroutedAnswer = errors.New("parameter server: pull answer key should be the partition ID itself")

	// ErrMissingModelPartition is a bootstrap defect: a worker partition
	// observed its model-stream source close without ever emitting a
	// single model record, meaning fewer model partitions were supplied
	// than worker parallelism demands.
	ErrMissingModelPartition = errors.New("parameter server: must be a parameter per model partition when loading model")

	// ErrProtocolConfusion is raised when a worker receives an
	// EOM-tagged or keepalive answer routed into the user-visible
	// pull-answer callback; those are internal bootstrap plumbing.
	ErrProtocolConfusion = errors.New("parameter server: keepalive/EOM answer delivered to user logic")

	// ErrPushBeforePull is the asymmetric default-PS precondition
	// violation: a push arrived for an id with no prior init and no
	// caller-supplied Seed function, so PushP cannot stand in for PullP.
	ErrPushBeforePull = errors.New("parameter server: push before pull on asymmetric default PS requires a Seed function")
)

package core

import (
	"github.com/cespare/xxhash/v2"

	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// WorkerToServerPartitioner maps a worker-to-server message to the
// server partition that owns its ParamId. The default routes by
// |xxhash(paramId)| mod S — invariant 3.1: a parameter's home partition
// never changes within a job, which holds because the hash is a pure
// function of the id's byte encoding.
type WorkerToServerPartitioner interface {
	Partition(id types.ParamId, serverParallelism int) types.PartitionIndex
}

// ServerToWorkerPartitioner maps a server-to-worker message to the
// worker partition it targets. Per spec.md §4.3 this must be the
// identity on the embedded WorkerPartition tag; anything else is a
// protocol defect surfaced as ErrMisroutedAnswer.
type ServerToWorkerPartitioner interface {
	Partition(workerPartition types.PartitionIndex, workerParallelism int) (types.PartitionIndex, error)
}

// HashPartitioner is the default WorkerToServerPartitioner.
type HashPartitioner struct{}

func (HashPartitioner) Partition(id types.ParamId, serverParallelism int) types.PartitionIndex {
	h := xxhash.Sum64(id.Bytes())
	return types.PartitionIndex(h % uint64(serverParallelism))
}

// IdentityPartitioner is the default (and only correct) ServerToWorkerPartitioner.
type IdentityPartitioner struct{}

func (IdentityPartitioner) Partition(workerPartition types.PartitionIndex, workerParallelism int) (types.PartitionIndex, error) {
	if workerPartition < 0 || int(workerPartition) >= workerParallelism {
		return 0, types.ErrMisroutedAnswer
	}
	return workerPartition, nil
}

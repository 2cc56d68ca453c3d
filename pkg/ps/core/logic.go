package core

import "github.com/marfeitosa/go-paramserver/pkg/ps/types"

// WorkerLogic is user-supplied worker behavior for the symmetric case
// (PullP == PushP == P). Handlers run sequentially on one goroutine per
// worker partition; the client handle passed to each call is only valid
// for the duration of that call and must not be retained.
type WorkerLogic[P any] interface {
	Open() error
	OnRecv(record interface{}, client *ParameterServerClient[P, P])
	OnPullRecv(id types.ParamId, value P, client *ParameterServerClient[P, P])
	Close() error
}

// LooseWorkerLogic is the asymmetric variant: pulls answer with PullP,
// pushes carry PushP.
type LooseWorkerLogic[PullP, PushP any] interface {
	Open() error
	OnRecv(record interface{}, client *ParameterServerClient[PullP, PushP])
	OnPullRecv(id types.ParamId, value PullP, client *ParameterServerClient[PullP, PushP])
	Close() error
}

// DoubleLoadWorkerLogic extends LooseWorkerLogic with the double-sided
// model-load hook: a worker-side model replica is applied directly,
// without going through the server at all.
type DoubleLoadWorkerLogic[PullP, PushP any] interface {
	LooseWorkerLogic[PullP, PushP]
	UpdateModel(id types.ParamId, value PullP)
}

// ParameterServerLogic is user-supplied parameter-server behavior for the
// symmetric case.
type ParameterServerLogic[P any] interface {
	Open(config types.Config) error
	OnPullRecv(id types.ParamId, workerPartition types.PartitionIndex, ps *ParameterServer[P])
	OnPushRecv(id types.ParamId, delta P, ps *ParameterServer[P])
	Close(ps *ParameterServer[P]) error
}

// LooseParameterServerLogic is the asymmetric variant.
type LooseParameterServerLogic[PullP, PushP any] interface {
	Open(config types.Config) error
	OnPullRecv(id types.ParamId, workerPartition types.PartitionIndex, ps *ParameterServer[PullP])
	OnPushRecv(id types.ParamId, delta PushP, ps *ParameterServer[PullP])
	Close(ps *ParameterServer[PullP]) error
}

package core

import "github.com/marfeitosa/go-paramserver/pkg/ps/types"

// ParameterServerClient is the narrow worker-side facade user logic sees.
// It carries the per-invocation emit callback and the local worker
// partition index, so the sender codec can stamp it on outgoing
// worker-to-server messages. Not valid beyond the handler call that
// received it.
type ParameterServerClient[PullP, PushP any] struct {
	partition types.PartitionIndex
	sender    WorkerSender[PullP, PushP]
	toServer  func(types.WorkerToServer[PullP, PushP])
	output    func(interface{})
}

func NewParameterServerClient[PullP, PushP any](
	partition types.PartitionIndex,
	sender WorkerSender[PullP, PushP],
	toServer func(types.WorkerToServer[PullP, PushP]),
	output func(interface{}),
) *ParameterServerClient[PullP, PushP] {
	return &ParameterServerClient[PullP, PushP]{
		partition: partition,
		sender:    sender,
		toServer:  toServer,
		output:    output,
	}
}

// Pull issues a read of id; the answer arrives later via OnPullRecv.
func (c *ParameterServerClient[PullP, PushP]) Pull(id types.ParamId) {
	c.sender.OnPull(id, c.partition, c.toServer)
}

// Push sends an update delta for id.
func (c *ParameterServerClient[PullP, PushP]) Push(id types.ParamId, delta PushP) {
	c.sender.OnPush(id, delta, c.partition, c.toServer)
}

// Output emits a worker output record to the user sink.
func (c *ParameterServerClient[PullP, PushP]) Output(record interface{}) {
	c.output(record)
}

// ParameterServer is the narrow server-side facade user PS logic sees.
type ParameterServer[PullP any] struct {
	sender   PSSender[PullP]
	toWorker func(types.ServerToWorker[PullP])
	output   func(interface{})
}

func NewParameterServer[PullP any](
	sender PSSender[PullP],
	toWorker func(types.ServerToWorker[PullP]),
	output func(interface{}),
) *ParameterServer[PullP] {
	return &ParameterServer[PullP]{
		sender:   sender,
		toWorker: toWorker,
		output:   output,
	}
}

// AnswerPull sends value back to the worker partition that issued the pull.
func (p *ParameterServer[PullP]) AnswerPull(id types.ParamId, value PullP, workerPartition types.PartitionIndex) {
	p.sender.OnPullAnswer(id, value, workerPartition, p.toWorker)
}

// Output emits a server output record to the user sink.
func (p *ParameterServer[PullP]) Output(record interface{}) {
	p.output(record)
}

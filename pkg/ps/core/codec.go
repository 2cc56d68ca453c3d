package core

import (
	"encoding/json"

	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// WorkerSender wraps a pull(id)/push(id, delta) call into exactly one
// wire message destined for a server partition. Implementations exist so
// alternative transports (compressed, batched) can be slotted in without
// touching worker logic.
type WorkerSender[PullP, PushP any] interface {
	OnPull(id types.ParamId, workerPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP]))
	OnPush(id types.ParamId, delta PushP, workerPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP]))
	// OnModel wraps a bootstrap model record as a Parameter(id, value) push.
	OnModel(id types.ParamId, value PullP, workerPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP]))
	// OnEom wraps the end-of-model marker addressed to one specific
	// server partition; the caller invokes this once per server
	// partition to fan the EOM out to all of them.
	OnEom(workerPartition, serverPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP]))
}

// PSReceiver decodes an inbound worker message at the server and
// dispatches it to exactly one of the pull/push/model/eom callbacks.
type PSReceiver[PullP, PushP any] interface {
	OnWorkerMsg(
		msg types.WorkerToServer[PullP, PushP],
		onPull func(id types.ParamId, workerPartition types.PartitionIndex),
		onPush func(id types.ParamId, delta PushP, workerPartition types.PartitionIndex),
		onModel func(id types.ParamId, value PullP),
		onEom func(workerPartition types.PartitionIndex),
	)
}

// PSSender wraps a pull answer into a wire message destined for a
// specific worker partition.
type PSSender[PullP any] interface {
	OnPullAnswer(id types.ParamId, value PullP, workerPartition types.PartitionIndex, emit func(types.ServerToWorker[PullP]))
	OnKeepalive(id types.ParamId, workerPartition types.PartitionIndex, emit func(types.ServerToWorker[PullP]))
}

// WorkerReceiver decodes an inbound server message at the worker and
// dispatches to the pull-answer callback (or rejects protocol-internal
// keepalive/EOM answers before they reach user logic).
type WorkerReceiver[PullP any] interface {
	OnPullAnswerRecv(msg types.ServerToWorker[PullP], onAnswer func(id types.ParamId, value PullP), onKeepalive func())
}

// DefaultWorkerSender emits the typed envelope directly: no wire format
// of its own is imposed, matching spec.md §6.
type DefaultWorkerSender[PullP, PushP any] struct{}

func (DefaultWorkerSender[PullP, PushP]) OnPull(id types.ParamId, workerPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP])) {
	emit(types.WorkerToServer[PullP, PushP]{WorkerPartition: workerPartition, Kind: types.PullKind, Id: id})
}

func (DefaultWorkerSender[PullP, PushP]) OnPush(id types.ParamId, delta PushP, workerPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP])) {
	emit(types.WorkerToServer[PullP, PushP]{WorkerPartition: workerPartition, Kind: types.PushKind, Id: id, Delta: delta})
}

func (DefaultWorkerSender[PullP, PushP]) OnModel(id types.ParamId, value PullP, workerPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP])) {
	emit(types.WorkerToServer[PullP, PushP]{WorkerPartition: workerPartition, Kind: types.ModelKind, Id: id, Model: value})
}

func (DefaultWorkerSender[PullP, PushP]) OnEom(workerPartition, serverPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP])) {
	emit(types.WorkerToServer[PullP, PushP]{WorkerPartition: workerPartition, Kind: types.EomKind, ServerPartition: serverPartition})
}

// DefaultPSReceiver dispatches to exactly one callback per message.
type DefaultPSReceiver[PullP, PushP any] struct{}

func (DefaultPSReceiver[PullP, PushP]) OnWorkerMsg(
	msg types.WorkerToServer[PullP, PushP],
	onPull func(id types.ParamId, workerPartition types.PartitionIndex),
	onPush func(id types.ParamId, delta PushP, workerPartition types.PartitionIndex),
	onModel func(id types.ParamId, value PullP),
	onEom func(workerPartition types.PartitionIndex),
) {
	switch msg.Kind {
	case types.PullKind:
		onPull(msg.Id, msg.WorkerPartition)
	case types.PushKind:
		onPush(msg.Id, msg.Delta, msg.WorkerPartition)
	case types.ModelKind:
		onModel(msg.Id, msg.Model)
	case types.EomKind:
		onEom(msg.WorkerPartition)
	}
}

// DefaultPSSender emits the typed envelope directly.
type DefaultPSSender[PullP any] struct{}

func (DefaultPSSender[PullP]) OnPullAnswer(id types.ParamId, value PullP, workerPartition types.PartitionIndex, emit func(types.ServerToWorker[PullP])) {
	emit(types.ServerToWorker[PullP]{WorkerPartition: workerPartition, Kind: types.PullAnswerKind, Id: id, Value: value})
}

func (DefaultPSSender[PullP]) OnKeepalive(id types.ParamId, workerPartition types.PartitionIndex, emit func(types.ServerToWorker[PullP])) {
	emit(types.ServerToWorker[PullP]{WorkerPartition: workerPartition, Kind: types.KeepaliveKind, Id: id})
}

// DefaultWorkerReceiver dispatches to the answer callback, or rejects
// protocol-internal keepalive messages before they reach user logic.
type DefaultWorkerReceiver[PullP any] struct{}

func (DefaultWorkerReceiver[PullP]) OnPullAnswerRecv(msg types.ServerToWorker[PullP], onAnswer func(id types.ParamId, value PullP), onKeepalive func()) {
	switch msg.Kind {
	case types.PullAnswerKind:
		onAnswer(msg.Id, msg.Value)
	case types.KeepaliveKind:
		onKeepalive()
	}
}

// JSONWorkerSender round-trips the push delta through encoding/json
// before emitting, modeling what a real batched/compressed transport
// codec would do at the serialization boundary. Useful as a drop-in
// replacement for DefaultWorkerSender when exercising a PushP type that
// must prove itself JSON-serializable end to end.
type JSONWorkerSender[PullP, PushP any] struct {
	DefaultWorkerSender[PullP, PushP]
}

func (JSONWorkerSender[PullP, PushP]) OnPush(id types.ParamId, delta PushP, workerPartition types.PartitionIndex, emit func(types.WorkerToServer[PullP, PushP])) {
	raw, err := json.Marshal(delta)
	if err != nil {
		panic(err)
	}
	var roundTripped PushP
	if err := json.Unmarshal(raw, &roundTripped); err != nil {
		panic(err)
	}
	emit(types.WorkerToServer[PullP, PushP]{WorkerPartition: workerPartition, Kind: types.PushKind, Id: id, Delta: roundTripped})
}

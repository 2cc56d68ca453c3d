package core

import (
	"fmt"

	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// ModelStore lets a ParameterServerLogic accept a bootstrap model record
// directly, bypassing the update fold entirely (spec.md §4.2, §4.5): the
// model's value becomes the stored value, full stop. Default PS logics
// implement this; a fully custom PS logic that has no bootstrap needs not.
type ModelStore[PullP any] interface {
	SetModel(id types.ParamId, value PullP)
}

type pendingPull struct {
	id              types.ParamId
	workerPartition types.PartitionIndex
}

// ServerPartition is one parallel instance of the server operator
// (spec.md §2, §5): it owns its shard of parameter state and runs every
// handler on a single goroutine.
//
// During bootstrap (spec.md §4.5) a ServerPartition counts inbound EOMs
// from every worker partition. It accepts pushes and model records at all
// times but defers every pull until the EOM countdown reaches zero, then
// replays the buffered pulls through the real PS logic.
type ServerPartition[PullP, PushP any] struct {
	Id        types.PartitionIndex
	Logic     LooseParameterServerLogic[PullP, PushP]
	Receiver  PSReceiver[PullP, PushP]
	Sender    PSSender[PullP]
	Log       types.Logger
	Quiescent *Quiescence
	Config    types.Config

	// WorkerParallelism is W: how many distinct worker partitions must
	// each report an EOM before the bootstrap barrier opens.
	WorkerParallelism int

	// Bootstrapping is true for jobs using model load; false means
	// there is no EOM barrier and pulls are always answered immediately.
	Bootstrapping bool

	// KeepaliveDuringLoad is true only for the double-sided load
	// variant: every push received while the barrier is still closed
	// triggers a synthetic EOM pull-answer so the iteration loop does
	// not look idle during bulk load (spec.md §4.5).
	KeepaliveDuringLoad bool

	FromWorkers <-chan types.WorkerToServer[PullP, PushP]
	ToWorkers   chan<- types.ServerToWorker[PullP]
	Output      chan<- interface{}
	Done        <-chan struct{}
	Errors      chan<- error

	eomRemaining int
	eomSeen      map[types.PartitionIndex]bool
	pendingPulls []pendingPull
}

// Run executes the server partition's handler loop until Done closes.
func (s *ServerPartition[PullP, PushP]) Run() {
	defer s.recoverPanic()

	if err := s.Logic.Open(s.Config); err != nil {
		s.fail(err)
		return
	}

	if s.Bootstrapping {
		s.eomRemaining = s.WorkerParallelism
	}

	ps := NewParameterServer[PullP](s.Sender, s.emitToWorker, s.emitOutput)

	for {
		select {
		case <-s.Done:
			_ = s.Logic.Close(ps)
			return

		case msg, ok := <-s.FromWorkers:
			if !ok {
				s.FromWorkers = nil
				continue
			}
			s.Quiescent.Enter()
			s.handle(msg, ps)
			s.Quiescent.Leave()
		}
	}
}

func (s *ServerPartition[PullP, PushP]) handle(msg types.WorkerToServer[PullP, PushP], ps *ParameterServer[PullP]) {
	s.Receiver.OnWorkerMsg(msg,
		func(id types.ParamId, workerPartition types.PartitionIndex) {
			s.onPull(id, workerPartition, ps)
		},
		func(id types.ParamId, delta PushP, workerPartition types.PartitionIndex) {
			s.onPush(id, delta, workerPartition, ps)
		},
		func(id types.ParamId, value PullP) {
			s.onModel(id, value)
		},
		func(workerPartition types.PartitionIndex) {
			s.onEom(workerPartition, ps)
		},
	)
}

// onPull implements invariant 4.5.4: during bootstrap, no pull is
// answered until every worker partition has reported EOM.
func (s *ServerPartition[PullP, PushP]) onPull(id types.ParamId, workerPartition types.PartitionIndex, ps *ParameterServer[PullP]) {
	if s.eomRemaining > 0 {
		s.pendingPulls = append(s.pendingPulls, pendingPull{id: id, workerPartition: workerPartition})
		return
	}
	s.Logic.OnPullRecv(id, workerPartition, ps)
}

func (s *ServerPartition[PullP, PushP]) onPush(id types.ParamId, delta PushP, workerPartition types.PartitionIndex, ps *ParameterServer[PullP]) {
	s.Logic.OnPushRecv(id, delta, ps)
	if s.KeepaliveDuringLoad && s.eomRemaining > 0 {
		target := keepaliveTarget(id, s.WorkerParallelism)
		s.Sender.OnKeepalive(id, target, s.emitToWorker)
	}
}

func (s *ServerPartition[PullP, PushP]) onModel(id types.ParamId, value PullP) {
	if s.KeepaliveDuringLoad && s.eomRemaining > 0 {
		target := keepaliveTarget(id, s.WorkerParallelism)
		s.Sender.OnKeepalive(id, target, s.emitToWorker)
	}
	store, ok := s.Logic.(ModelStore[PullP])
	if !ok {
		s.Log.Warnf("model record for %v but PS logic does not implement ModelStore", id)
		return
	}
	store.SetModel(id, value)
}

// onEom implements invariant 4.5: the barrier opens exactly when every
// distinct worker partition has reported its EOM, and the deferred pulls
// replay in the order they arrived. A duplicate EOM from a worker
// partition already seen is ignored rather than counted again, so the
// barrier tracks distinct reporters, not raw message count.
func (s *ServerPartition[PullP, PushP]) onEom(workerPartition types.PartitionIndex, ps *ParameterServer[PullP]) {
	if s.eomRemaining == 0 {
		return
	}
	if s.eomSeen == nil {
		s.eomSeen = make(map[types.PartitionIndex]bool, s.WorkerParallelism)
	}
	if s.eomSeen[workerPartition] {
		return
	}
	s.eomSeen[workerPartition] = true
	s.eomRemaining--
	if s.eomRemaining > 0 {
		return
	}
	pending := s.pendingPulls
	s.pendingPulls = nil
	for _, p := range pending {
		s.Logic.OnPullRecv(p.id, p.workerPartition, ps)
	}
}

// keepaliveTarget is the deterministic worker partition chosen to receive
// a synthetic EOM pull answer, per spec.md §4.5: ((id mod W) + W) mod W.
func keepaliveTarget(id types.ParamId, workerParallelism int) types.PartitionIndex {
	w := int32(workerParallelism)
	m := (int32(id)%w + w) % w
	return types.PartitionIndex(m)
}

func (s *ServerPartition[PullP, PushP]) emitToWorker(msg types.ServerToWorker[PullP]) {
	s.Quiescent.Mark()
	s.ToWorkers <- msg
}

func (s *ServerPartition[PullP, PushP]) emitOutput(rec interface{}) {
	s.Output <- rec
}

func (s *ServerPartition[PullP, PushP]) fail(err error) {
	select {
	case s.Errors <- err:
	default:
	}
}

func (s *ServerPartition[PullP, PushP]) recoverPanic() {
	if r := recover(); r != nil {
		if err, ok := r.(error); ok {
			s.fail(err)
			return
		}
		s.fail(fmt.Errorf("parameter server: server partition %d panicked: %v", s.Id, r))
	}
}

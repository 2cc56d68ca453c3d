package core

import (
	"fmt"

	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// WorkerPartition is one parallel instance of the worker operator
// (spec.md §2, §5): it owns its training input, its server-to-worker
// feedback channel, and runs every handler on a single goroutine.
//
// A WorkerPartition also knows how to run the bootstrap model-load
// window (spec.md §4.5): while loading is true, training records are
// buffered instead of processed, model records are forwarded as pushes,
// and the local EOM fan-out fires exactly once on model-source close.
type WorkerPartition[PullP, PushP any] struct {
	Id        types.PartitionIndex
	Logic     LooseWorkerLogic[PullP, PushP]
	Sender    WorkerSender[PullP, PushP]
	Receiver  WorkerReceiver[PullP]
	Invoker   Invoker
	Log       types.Logger
	Quiescent *Quiescence

	// ServerParallelism is S, needed to fan the local EOM out to every
	// server partition.
	ServerParallelism int

	// TrainingInput carries user training records. Closed by the host
	// when the training source is exhausted.
	TrainingInput <-chan interface{}

	// Feedback carries ServerToWorker messages routed back to this
	// partition by the ServerToWorkerPartitioner.
	Feedback <-chan types.ServerToWorker[PullP]

	// ModelInput carries this partition's shard of the bootstrap model
	// stream, or nil when the job has no model load. Closed by the host
	// when the model source for this partition is exhausted, which is
	// this worker partition's local-EOM trigger.
	ModelInput <-chan types.ModelRecord[PullP]

	// ToServer is where framed WorkerToServer messages are sent for the
	// WorkerToServerPartitioner to route.
	ToServer chan<- types.WorkerToServer[PullP, PushP]

	// Output carries WorkerOutput records to the user sink.
	Output chan<- interface{}

	// Done signals the partition to stop. Closed exactly once by the
	// owning Fabric.
	Done <-chan struct{}

	// Errors reports a panic recovered from a handler or a bootstrap
	// invariant violation; the fabric treats these as fatal.
	Errors chan<- error

	loading         bool
	pendingTraining []interface{}
	modelSeen       bool
}

// Run executes the worker partition's handler loop until Done closes.
// Exactly one goroutine runs this per partition (spec.md §5); there is no
// concurrency inside a single worker partition.
func (w *WorkerPartition[PullP, PushP]) Run() {
	defer w.recoverPanic()

	if err := w.Logic.Open(); err != nil {
		w.fail(err)
		return
	}

	w.loading = w.ModelInput != nil
	modelInput := w.ModelInput
	client := NewParameterServerClient[PullP, PushP](w.Id, w.Sender, w.emitToServer, w.emitOutput)

	for {
		select {
		case <-w.Done:
			_ = w.Logic.Close()
			return

		case rec, ok := <-w.TrainingInput:
			if !ok {
				w.TrainingInput = nil
				continue
			}
			w.Quiescent.Enter()
			if w.loading {
				w.pendingTraining = append(w.pendingTraining, rec)
			} else {
				w.Logic.OnRecv(rec, client)
			}
			w.Quiescent.Leave()

		case msg, ok := <-w.Feedback:
			if !ok {
				w.Feedback = nil
				continue
			}
			w.Quiescent.Enter()
			w.handleFeedback(msg, client)
			w.Quiescent.Leave()

		case model, ok := <-modelInput:
			if !ok {
				modelInput = nil
				w.Quiescent.Enter()
				w.handleLocalEom()
				w.Quiescent.Leave()
				continue
			}
			w.Quiescent.Enter()
			w.modelSeen = true
			w.handleModelRecord(model, client)
			w.Quiescent.Leave()
		}
	}
}

func (w *WorkerPartition[PullP, PushP]) handleFeedback(msg types.ServerToWorker[PullP], client *ParameterServerClient[PullP, PushP]) {
	w.Receiver.OnPullAnswerRecv(msg, func(id types.ParamId, value PullP) {
		if msg.Kind == types.KeepaliveKind {
			w.fail(types.ErrProtocolConfusion)
			return
		}
		w.Logic.OnPullRecv(id, value, client)
	}, func() {
		// Keepalive/EOM answers are protocol-internal; the worker
		// ignores them at the semantic level (spec.md §4.5).
	})
}

func (w *WorkerPartition[PullP, PushP]) handleModelRecord(rec types.ModelRecord[PullP], client *ParameterServerClient[PullP, PushP]) {
	switch rec.Side {
	case types.WorkerSide:
		if dl, ok := w.Logic.(DoubleLoadWorkerLogic[PullP, PushP]); ok {
			dl.UpdateModel(rec.Id, rec.Value)
		} else {
			w.Log.Warnf("worker-side model record for %v but logic does not implement UpdateModel", rec.Id)
		}
	default:
		w.Sender.OnModel(rec.Id, rec.Value, w.Id, w.emitToServer)
	}
}

// handleLocalEom is invariant 4.5.1: exactly one EOM originates per
// worker partition from the model stream, fanned out to every server
// partition. A model source that closed without ever emitting a record
// is the ErrMissingModelPartition bootstrap defect (spec.md §7.3).
func (w *WorkerPartition[PullP, PushP]) handleLocalEom() {
	if !w.modelSeen {
		w.fail(types.ErrMissingModelPartition)
		return
	}
	for s := 0; s < w.ServerParallelism; s++ {
		w.Sender.OnEom(w.Id, types.PartitionIndex(s), w.emitToServer)
	}
	w.loading = false
	buffered := w.pendingTraining
	w.pendingTraining = nil
	client := NewParameterServerClient[PullP, PushP](w.Id, w.Sender, w.emitToServer, w.emitOutput)
	for _, rec := range buffered {
		w.Logic.OnRecv(rec, client)
	}
}

func (w *WorkerPartition[PullP, PushP]) emitToServer(msg types.WorkerToServer[PullP, PushP]) {
	w.Quiescent.Mark()
	w.ToServer <- msg
}

func (w *WorkerPartition[PullP, PushP]) emitOutput(rec interface{}) {
	w.Output <- rec
}

func (w *WorkerPartition[PullP, PushP]) fail(err error) {
	select {
	case w.Errors <- err:
	default:
	}
}

func (w *WorkerPartition[PullP, PushP]) recoverPanic() {
	if r := recover(); r != nil {
		if err, ok := r.(error); ok {
			w.fail(err)
			return
		}
		w.fail(fmt.Errorf("parameter server: worker partition %d panicked: %v", w.Id, r))
	}
}

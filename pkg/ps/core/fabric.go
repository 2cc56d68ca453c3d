package core

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

const channelBuffer = 64

// FabricSpec is everything needed to assemble the cyclic dataflow of
// spec.md §4.4: training records flow into worker partitions, worker
// output splits off to the sink, worker-to-server messages are
// partitioned into server partitions, server output splits off to the
// sink, and server-to-worker messages are partitioned back into the
// worker partitions' feedback input, closing the loop.
//
// Logic factories run once per partition: each worker/server partition
// owns an independent instance, so there is never shared mutable state
// between partitions (spec.md §5).
type FabricSpec[PullP, PushP any] struct {
	Config types.Config

	NewWorkerLogic func(partition types.PartitionIndex) LooseWorkerLogic[PullP, PushP]
	NewPSLogic     func(partition types.PartitionIndex) LooseParameterServerLogic[PullP, PushP]

	WorkerSender   WorkerSender[PullP, PushP]
	PSReceiver     PSReceiver[PullP, PushP]
	PSSender       PSSender[PullP]
	WorkerReceiver WorkerReceiver[PullP]

	WorkerToServer WorkerToServerPartitioner
	ServerToWorker ServerToWorkerPartitioner

	Log      types.Logger
	Invoker  Invoker
	Registry *prometheus.Registry
	Name     string

	// Bootstrapping and KeepaliveDuringLoad are forwarded to every
	// server partition; see ServerPartition for their meaning.
	Bootstrapping       bool
	KeepaliveDuringLoad bool
}

// Fabric is the assembled, running coordination fabric for one job.
type Fabric[PullP, PushP any] struct {
	spec FabricSpec[PullP, PushP]

	workers []*WorkerPartition[PullP, PushP]
	servers []*ServerPartition[PullP, PushP]

	quiescent *Quiescence
	done      chan struct{}
	doneOnce  sync.Once
	errors    chan error

	workerOutputs chan interface{}
	serverOutputs chan interface{}

	wg sync.WaitGroup
}

// NewFabric validates the configuration and wires up every partition and
// routing channel, but does not start training/model consumption until
// Start is called.
func NewFabric[PullP, PushP any](spec FabricSpec[PullP, PushP]) (*Fabric[PullP, PushP], error) {
	if err := spec.Config.Validate(); err != nil {
		return nil, err
	}

	f := &Fabric[PullP, PushP]{
		spec:          spec,
		done:          make(chan struct{}),
		errors:        make(chan error, 2*(spec.Config.WorkerParallelism+spec.Config.ServerParallelism)),
		workerOutputs: make(chan interface{}, channelBuffer),
		serverOutputs: make(chan interface{}, channelBuffer),
		quiescent:     NewQuiescence(spec.Config.IterationWaitTime, spec.Registry, spec.Name),
	}

	w2sRaw := make(chan types.WorkerToServer[PullP, PushP], channelBuffer)
	s2wRaw := make(chan types.ServerToWorker[PullP], channelBuffer)

	serverInputs := make([]chan types.WorkerToServer[PullP, PushP], spec.Config.ServerParallelism)
	for i := range serverInputs {
		serverInputs[i] = make(chan types.WorkerToServer[PullP, PushP], channelBuffer)
	}
	workerFeedback := make([]chan types.ServerToWorker[PullP], spec.Config.WorkerParallelism)
	for i := range workerFeedback {
		workerFeedback[i] = make(chan types.ServerToWorker[PullP], channelBuffer)
	}

	f.servers = make([]*ServerPartition[PullP, PushP], spec.Config.ServerParallelism)
	for i := range f.servers {
		f.servers[i] = &ServerPartition[PullP, PushP]{
			Id:                  types.PartitionIndex(i),
			Logic:               spec.NewPSLogic(types.PartitionIndex(i)),
			Receiver:            spec.PSReceiver,
			Sender:              spec.PSSender,
			Log:                 spec.Log,
			Quiescent:           f.quiescent,
			Config:              spec.Config,
			WorkerParallelism:   spec.Config.WorkerParallelism,
			Bootstrapping:       spec.Bootstrapping,
			KeepaliveDuringLoad: spec.KeepaliveDuringLoad,
			FromWorkers:         serverInputs[i],
			ToWorkers:           s2wRaw,
			Output:              f.serverOutputs,
			Done:                f.done,
			Errors:              f.errors,
		}
	}

	f.workers = make([]*WorkerPartition[PullP, PushP], spec.Config.WorkerParallelism)
	for i := range f.workers {
		f.workers[i] = &WorkerPartition[PullP, PushP]{
			Id:                types.PartitionIndex(i),
			Logic:             spec.NewWorkerLogic(types.PartitionIndex(i)),
			Sender:            spec.WorkerSender,
			Receiver:          spec.WorkerReceiver,
			Invoker:           spec.Invoker,
			Log:               spec.Log,
			Quiescent:         f.quiescent,
			ServerParallelism: spec.Config.ServerParallelism,
			Feedback:          workerFeedback[i],
			ToServer:          w2sRaw,
			Output:            f.workerOutputs,
			Done:              f.done,
			Errors:            f.errors,
		}
	}

	f.wg.Add(2) // the two routers below
	go f.routeWorkerToServer(w2sRaw, serverInputs)
	go f.routeServerToWorker(s2wRaw, workerFeedback)

	return f, nil
}

// routeWorkerToServer is the WorkerToServerPartitioner applied to every
// message a worker emits, fulfilling P1 (routing exactness). EomKind is
// the one exception: it carries no ParamId to hash on, and spec.md
// §4.5.3 requires it fanned out to every distinct server partition, so
// it is routed on its explicit ServerPartition target instead.
func (f *Fabric[PullP, PushP]) routeWorkerToServer(in <-chan types.WorkerToServer[PullP, PushP], out []chan types.WorkerToServer[PullP, PushP]) {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			var target types.PartitionIndex
			if msg.Kind == types.EomKind {
				target = msg.ServerPartition
			} else {
				target = f.spec.WorkerToServer.Partition(msg.Id, len(out))
			}
			select {
			case out[target] <- msg:
			case <-f.done:
				return
			}
		}
	}
}

// routeServerToWorker is the ServerToWorkerPartitioner applied to every
// pull answer/keepalive a server emits, fulfilling P2 (answer affinity).
func (f *Fabric[PullP, PushP]) routeServerToWorker(in <-chan types.ServerToWorker[PullP], out []chan types.ServerToWorker[PullP]) {
	defer f.wg.Done()
	for {
		select {
		case <-f.done:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			target, err := f.spec.ServerToWorker.Partition(msg.WorkerPartition, len(out))
			if err != nil {
				f.fail(err)
				continue
			}
			select {
			case out[target] <- msg:
			case <-f.done:
				return
			}
		}
	}
}

// Start begins consuming training (and, for a bootstrap job, model)
// records and runs every partition's goroutine.
func (f *Fabric[PullP, PushP]) Start(trainingInput <-chan interface{}, modelInput <-chan types.ModelRecord[PullP]) {
	var workerModelInputs []chan types.ModelRecord[PullP]
	if modelInput != nil {
		workerModelInputs = make([]chan types.ModelRecord[PullP], len(f.workers))
		for i := range workerModelInputs {
			workerModelInputs[i] = make(chan types.ModelRecord[PullP], channelBuffer)
			f.workers[i].ModelInput = workerModelInputs[i]
		}
		f.wg.Add(1)
		go f.rebalanceModel(modelInput, workerModelInputs)
	}

	workerTrainingInputs := make([]chan interface{}, len(f.workers))
	for i := range workerTrainingInputs {
		workerTrainingInputs[i] = make(chan interface{}, channelBuffer)
		f.workers[i].TrainingInput = workerTrainingInputs[i]
	}
	f.wg.Add(1)
	go f.rebalanceTraining(trainingInput, workerTrainingInputs)

	for _, s := range f.servers {
		f.wg.Add(1)
		s := s
		f.spec.Invoker.Spawn(func() {
			defer f.wg.Done()
			s.Run()
		})
	}
	for _, w := range f.workers {
		f.wg.Add(1)
		w := w
		f.spec.Invoker.Spawn(func() {
			defer f.wg.Done()
			w.Run()
		})
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.quiescent.Watch()
	}()

	go f.awaitTermination()
}

// rebalanceTraining round-robins the single training stream across
// worker partitions, the host-provided "connect" primitive's analogue.
func (f *Fabric[PullP, PushP]) rebalanceTraining(in <-chan interface{}, out []chan interface{}) {
	defer f.wg.Done()
	defer func() {
		for _, ch := range out {
			close(ch)
		}
	}()
	i := 0
	for {
		select {
		case <-f.done:
			return
		case rec, ok := <-in:
			if !ok {
				return
			}
			select {
			case out[i%len(out)] <- rec:
			case <-f.done:
				return
			}
			i++
		}
	}
}

// rebalanceModel rebalances the bootstrap model stream across worker
// partitions (spec.md §4.5.1). Closing each worker's model-input channel
// is its local-EOM trigger.
func (f *Fabric[PullP, PushP]) rebalanceModel(in <-chan types.ModelRecord[PullP], out []chan types.ModelRecord[PullP]) {
	defer f.wg.Done()
	defer func() {
		for _, ch := range out {
			close(ch)
		}
	}()
	i := 0
	for {
		select {
		case <-f.done:
			return
		case rec, ok := <-in:
			if !ok {
				return
			}
			select {
			case out[i%len(out)] <- rec:
			case <-f.done:
				return
			}
			i++
		}
	}
}

func (f *Fabric[PullP, PushP]) awaitTermination() {
	select {
	case <-f.quiescent.Idle():
		f.Shutdown()
	case <-f.done:
	}
}

func (f *Fabric[PullP, PushP]) fail(err error) {
	select {
	case f.errors <- err:
	default:
	}
}

// Errors reports fatal routing/bootstrap/user-logic errors (spec.md §7).
// The fabric performs no retries; callers decide how to react.
func (f *Fabric[PullP, PushP]) Errors() <-chan error {
	return f.errors
}

// WorkerOutputs is the worker-output half of the tagged output stream.
func (f *Fabric[PullP, PushP]) WorkerOutputs() <-chan interface{} {
	return f.workerOutputs
}

// ServerOutputs is the server-output half of the tagged output stream.
func (f *Fabric[PullP, PushP]) ServerOutputs() <-chan interface{} {
	return f.serverOutputs
}

// Shutdown stops every partition exactly once: every user Close() hook
// runs (spec.md §5), then the output channels are closed once all
// partitions and routers have exited.
func (f *Fabric[PullP, PushP]) Shutdown() {
	f.doneOnce.Do(func() {
		close(f.done)
		f.quiescent.Stop()
		go func() {
			f.wg.Wait()
			close(f.workerOutputs)
			close(f.serverOutputs)
		}()
	})
}

// Package ps is the public surface of the coordination fabric: the
// transform family of spec.md §6 plus the tagged Output stream every
// variant returns. Everything here is a thin, typed front door onto
// pkg/ps/core's Fabric — no routing/partitioning logic lives here.
package ps

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marfeitosa/go-paramserver/pkg/ps/core"
	"github.com/marfeitosa/go-paramserver/pkg/ps/definition"
	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// Job is a running fabric instance: its combined Output stream, its
// fatal-error stream, and a way to stop it early.
type Job[PullP, PushP any] struct {
	fabric  *core.Fabric[PullP, PushP]
	outputs <-chan Output
}

func (j *Job[PullP, PushP]) Outputs() <-chan Output { return j.outputs }
func (j *Job[PullP, PushP]) Errors() <-chan error   { return j.fabric.Errors() }
func (j *Job[PullP, PushP]) Shutdown()              { j.fabric.Shutdown() }

// Option customizes a Job's routing, codecs, logging, metrics, or
// invocation strategy away from the defaults. Composes across every
// Transform* variant below, so "full custom routing" (spec.md §6's third
// call-surface) is available on any of them as WithRouting/WithCodecs
// layered on the same builder; TransformCustom is the entry point that
// takes those collaborators as explicit arguments.
type Option[PullP, PushP any] func(*core.FabricSpec[PullP, PushP])

// WithRouting overrides the default hash/identity partitioners.
func WithRouting[PullP, PushP any](w2s core.WorkerToServerPartitioner, s2w core.ServerToWorkerPartitioner) Option[PullP, PushP] {
	return func(s *core.FabricSpec[PullP, PushP]) {
		s.WorkerToServer = w2s
		s.ServerToWorker = s2w
	}
}

// WithCodecs overrides the default pass-through message codecs, e.g. to
// install JSONWorkerSender for a push type that must prove itself
// JSON-serializable end to end.
func WithCodecs[PullP, PushP any](ws core.WorkerSender[PullP, PushP], pr core.PSReceiver[PullP, PushP], pss core.PSSender[PullP], wr core.WorkerReceiver[PullP]) Option[PullP, PushP] {
	return func(s *core.FabricSpec[PullP, PushP]) {
		s.WorkerSender = ws
		s.PSReceiver = pr
		s.PSSender = pss
		s.WorkerReceiver = wr
	}
}

// WithLogger installs a caller-supplied types.Logger in place of
// definition.DefaultLogger.
func WithLogger[PullP, PushP any](log types.Logger) Option[PullP, PushP] {
	return func(s *core.FabricSpec[PullP, PushP]) { s.Log = log }
}

// WithInvoker installs a caller-supplied core.Invoker, e.g. a test
// invoker that tracks every spawned goroutine.
func WithInvoker[PullP, PushP any](invoker core.Invoker) Option[PullP, PushP] {
	return func(s *core.FabricSpec[PullP, PushP]) { s.Invoker = invoker }
}

// WithMetrics registers the fabric's quiescence gauge/counter on registry
// under name, instead of leaving them unregistered.
func WithMetrics[PullP, PushP any](registry *prometheus.Registry, name string) Option[PullP, PushP] {
	return func(s *core.FabricSpec[PullP, PushP]) {
		s.Registry = registry
		s.Name = name
	}
}

func defaultSpec[PullP, PushP any](config types.Config) core.FabricSpec[PullP, PushP] {
	return core.FabricSpec[PullP, PushP]{
		Config:         config,
		WorkerSender:   core.DefaultWorkerSender[PullP, PushP]{},
		PSReceiver:     core.DefaultPSReceiver[PullP, PushP]{},
		PSSender:       core.DefaultPSSender[PullP]{},
		WorkerReceiver: core.DefaultWorkerReceiver[PullP]{},
		WorkerToServer: core.HashPartitioner{},
		ServerToWorker: core.IdentityPartitioner{},
		Log:            definition.NewDefaultLogger(),
		Invoker:        core.InvokerInstance(),
		Name:           "go-paramserver",
	}
}

func build[PullP, PushP any](
	config types.Config,
	newWorkerLogic func(types.PartitionIndex) core.LooseWorkerLogic[PullP, PushP],
	newPSLogic func(types.PartitionIndex) core.LooseParameterServerLogic[PullP, PushP],
	opts []Option[PullP, PushP],
) (*Job[PullP, PushP], error) {
	spec := defaultSpec[PullP, PushP](config)
	spec.NewWorkerLogic = newWorkerLogic
	spec.NewPSLogic = newPSLogic
	for _, opt := range opts {
		opt(&spec)
	}
	fabric, err := core.NewFabric[PullP, PushP](spec)
	if err != nil {
		return nil, err
	}
	return &Job[PullP, PushP]{fabric: fabric, outputs: mergeOutputs(fabric.WorkerOutputs(), fabric.ServerOutputs())}, nil
}

// Transform is spec.md §6's first call-surface: symmetric worker logic
// (PullP == PushP == P) against the default map-based PS (definition.DefaultPS),
// built from an init/update pair. No model load: pulls are answered as
// soon as a server partition sees them.
func Transform[P any](
	training <-chan interface{},
	newWorkerLogic func(types.PartitionIndex) core.WorkerLogic[P],
	init func(types.ParamId) P,
	update func(old, delta P) P,
	config types.Config,
	opts ...Option[P, P],
) (*Job[P, P], error) {
	wrappedWorkerLogic := func(idx types.PartitionIndex) core.LooseWorkerLogic[P, P] {
		return newWorkerLogic(idx)
	}
	newPSLogic := func(types.PartitionIndex) core.LooseParameterServerLogic[P, P] {
		return definition.NewDefaultPS[P](init, update)
	}
	job, err := build(config, wrappedWorkerLogic, newPSLogic, opts)
	if err != nil {
		return nil, err
	}
	job.fabric.Start(training, nil)
	return job, nil
}

// TransformLoose is Transform's asymmetric generalization (PullP != PushP):
// pulls answer with PullP, pushes carry PushP, and the default PS is
// definition.DefaultLoosePS. seed, if non-nil, supplies the initial value
// for an id whose first message is a push (spec.md §9 decision 1); if nil,
// such a push panics ErrPushBeforePull instead of silently reinterpreting
// the delta as a PullP value, which would not type-check in the
// asymmetric case anyway.
func TransformLoose[PullP, PushP any](
	training <-chan interface{},
	newWorkerLogic func(types.PartitionIndex) core.LooseWorkerLogic[PullP, PushP],
	init func(types.ParamId) PullP,
	update func(old PullP, delta PushP) PullP,
	seed func(types.ParamId) PullP,
	config types.Config,
	opts ...Option[PullP, PushP],
) (*Job[PullP, PushP], error) {
	newPSLogic := func(types.PartitionIndex) core.LooseParameterServerLogic[PullP, PushP] {
		ps := definition.NewDefaultLoosePS[PullP, PushP](init, update)
		ps.Seed = seed
		return ps
	}
	job, err := build(config, newWorkerLogic, newPSLogic, opts)
	if err != nil {
		return nil, err
	}
	job.fabric.Start(training, nil)
	return job, nil
}

// TransformWithLogic is spec.md §6's second call-surface: a caller-owned
// ParameterServerLogic replaces the default map-based PS. newPSLogic runs
// once per server partition, giving every partition its own isolated
// instance (spec.md §5).
func TransformWithLogic[PullP, PushP any](
	training <-chan interface{},
	newWorkerLogic func(types.PartitionIndex) core.LooseWorkerLogic[PullP, PushP],
	newPSLogic func(types.PartitionIndex) core.LooseParameterServerLogic[PullP, PushP],
	config types.Config,
	opts ...Option[PullP, PushP],
) (*Job[PullP, PushP], error) {
	job, err := build(config, newWorkerLogic, newPSLogic, opts)
	if err != nil {
		return nil, err
	}
	job.fabric.Start(training, nil)
	return job, nil
}

// TransformCustom is spec.md §6's third call-surface: every routing and
// framing collaborator is caller-supplied, down to the partitioners and
// the wire codecs. Equivalent to TransformWithLogic with WithRouting and
// WithCodecs applied, spelled out as its own entry point because this is
// the variant a host integrating its own transport reaches for.
func TransformCustom[PullP, PushP any](
	training <-chan interface{},
	newWorkerLogic func(types.PartitionIndex) core.LooseWorkerLogic[PullP, PushP],
	newPSLogic func(types.PartitionIndex) core.LooseParameterServerLogic[PullP, PushP],
	w2s core.WorkerToServerPartitioner,
	s2w core.ServerToWorkerPartitioner,
	workerSender core.WorkerSender[PullP, PushP],
	psReceiver core.PSReceiver[PullP, PushP],
	psSender core.PSSender[PullP],
	workerReceiver core.WorkerReceiver[PullP],
	config types.Config,
	opts ...Option[PullP, PushP],
) (*Job[PullP, PushP], error) {
	opts = append([]Option[PullP, PushP]{
		WithRouting[PullP, PushP](w2s, s2w),
		WithCodecs[PullP, PushP](workerSender, psReceiver, psSender, workerReceiver),
	}, opts...)
	job, err := build(config, newWorkerLogic, newPSLogic, opts)
	if err != nil {
		return nil, err
	}
	job.fabric.Start(training, nil)
	return job, nil
}

// TransformWithModelLoad is the single-side bootstrap variant (spec.md
// §4.5): model carries server-side parameter copies only, rebalanced
// across worker partitions, each closing its shard triggers that worker's
// local EOM. Training records that arrive before a worker's model shard
// is exhausted are buffered and replayed afterward (S5).
func TransformWithModelLoad[PullP, PushP any](
	training <-chan interface{},
	model <-chan types.ModelRecord[PullP],
	newWorkerLogic func(types.PartitionIndex) core.LooseWorkerLogic[PullP, PushP],
	newPSLogic func(types.PartitionIndex) core.LooseParameterServerLogic[PullP, PushP],
	config types.Config,
	opts ...Option[PullP, PushP],
) (*Job[PullP, PushP], error) {
	opts = append([]Option[PullP, PushP]{bootstrapping[PullP, PushP](false)}, opts...)
	job, err := build(config, newWorkerLogic, newPSLogic, opts)
	if err != nil {
		return nil, err
	}
	job.fabric.Start(training, model)
	return job, nil
}

// TransformWithDoubleModelLoad is the two-sided bootstrap variant
// (spec.md §4.5): model carries a mix of server-side and worker-side
// copies (types.ModelRecord.Side). Worker-side records apply directly via
// DoubleLoadWorkerLogic.UpdateModel; server-side records are forwarded as
// pushes. A synthetic EOM pull-answer is sent to a deterministic worker
// partition on every push received while the barrier is still closed
// (S6), so the iteration loop does not look idle during bulk load.
func TransformWithDoubleModelLoad[PullP, PushP any](
	training <-chan interface{},
	model <-chan types.ModelRecord[PullP],
	newWorkerLogic func(types.PartitionIndex) core.DoubleLoadWorkerLogic[PullP, PushP],
	newPSLogic func(types.PartitionIndex) core.LooseParameterServerLogic[PullP, PushP],
	config types.Config,
	opts ...Option[PullP, PushP],
) (*Job[PullP, PushP], error) {
	wrappedWorkerLogic := func(idx types.PartitionIndex) core.LooseWorkerLogic[PullP, PushP] {
		return newWorkerLogic(idx)
	}
	opts = append([]Option[PullP, PushP]{bootstrapping[PullP, PushP](true)}, opts...)
	job, err := build(config, wrappedWorkerLogic, newPSLogic, opts)
	if err != nil {
		return nil, err
	}
	job.fabric.Start(training, model)
	return job, nil
}

func bootstrapping[PullP, PushP any](keepalive bool) Option[PullP, PushP] {
	return func(s *core.FabricSpec[PullP, PushP]) {
		s.Bootstrapping = true
		s.KeepaliveDuringLoad = keepalive
	}
}

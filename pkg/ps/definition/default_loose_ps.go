package definition

import (
	"github.com/marfeitosa/go-paramserver/pkg/ps/core"
	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// DefaultLoosePS is the asymmetric (PullP != PushP) counterpart of
// DefaultPS. Treating a first push-without-prior-pull as "the delta is
// the initial value" is a type error here (PushP does not inhabit
// PullP) — per spec.md §9's decision, this is forbidden as a
// precondition unless the caller supplies Seed.
//
// If Seed is nil, a push for an uninitialized id panics with
// ErrPushBeforePull; the owning server partition's goroutine recovers
// this and reports it through the fabric's error channel rather than
// silently corrupting state.
type DefaultLoosePS[PullP, PushP any] struct {
	store  map[types.ParamId]PullP
	init   func(types.ParamId) PullP
	update func(old PullP, delta PushP) PullP
	// Seed, if non-nil, supplies the initial PullP value for an id
	// whose first message is a push rather than a pull.
	Seed func(types.ParamId) PullP
}

func NewDefaultLoosePS[PullP, PushP any](init func(types.ParamId) PullP, update func(old PullP, delta PushP) PullP) *DefaultLoosePS[PullP, PushP] {
	return &DefaultLoosePS[PullP, PushP]{init: init, update: update}
}

func (d *DefaultLoosePS[PullP, PushP]) Open(config types.Config) error {
	d.store = make(map[types.ParamId]PullP)
	return nil
}

func (d *DefaultLoosePS[PullP, PushP]) OnPullRecv(id types.ParamId, workerPartition types.PartitionIndex, ps *core.ParameterServer[PullP]) {
	v, ok := d.store[id]
	if !ok {
		v = d.init(id)
		d.store[id] = v
	}
	ps.AnswerPull(id, v, workerPartition)
}

func (d *DefaultLoosePS[PullP, PushP]) OnPushRecv(id types.ParamId, delta PushP, ps *core.ParameterServer[PullP]) {
	if v, ok := d.store[id]; ok {
		d.store[id] = d.update(v, delta)
		return
	}
	if d.Seed == nil {
		panic(types.ErrPushBeforePull)
	}
	d.store[id] = d.update(d.Seed(id), delta)
}

// SetModel implements core.ModelStore: a bootstrap model record becomes
// the stored value directly.
func (d *DefaultLoosePS[PullP, PushP]) SetModel(id types.ParamId, value PullP) {
	d.store[id] = value
}

func (d *DefaultLoosePS[PullP, PushP]) Close(ps *core.ParameterServer[PullP]) error {
	for id, v := range d.store {
		ps.Output(types.ServerEntry[PullP]{Id: id, Value: v})
	}
	return nil
}

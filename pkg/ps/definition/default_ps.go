package definition

import (
	"github.com/marfeitosa/go-paramserver/pkg/ps/core"
	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// DefaultPS is the map-backed parameter-server logic of spec.md §4.2: a
// ParamId -> P store with lazy Init on first pull and a user-supplied
// Update fold on push. A push for an id with no entry yet stores the
// delta itself as the initial value (invariant 3.3, symmetric mode only).
//
// A single partition owns one DefaultPS instance and runs all its
// handlers sequentially, so no locking is needed here (spec.md §5).
type DefaultPS[P any] struct {
	store  map[types.ParamId]P
	init   func(types.ParamId) P
	update func(old, delta P) P
}

// NewDefaultPS builds a DefaultPS with the caller's init/update functions.
func NewDefaultPS[P any](init func(types.ParamId) P, update func(old, delta P) P) *DefaultPS[P] {
	return &DefaultPS[P]{init: init, update: update}
}

func (d *DefaultPS[P]) Open(config types.Config) error {
	d.store = make(map[types.ParamId]P)
	return nil
}

func (d *DefaultPS[P]) OnPullRecv(id types.ParamId, workerPartition types.PartitionIndex, ps *core.ParameterServer[P]) {
	v, ok := d.store[id]
	if !ok {
		v = d.init(id)
		d.store[id] = v
	}
	ps.AnswerPull(id, v, workerPartition)
}

func (d *DefaultPS[P]) OnPushRecv(id types.ParamId, delta P, ps *core.ParameterServer[P]) {
	if v, ok := d.store[id]; ok {
		d.store[id] = d.update(v, delta)
	} else {
		d.store[id] = delta
	}
}

// SetModel implements core.ModelStore: a bootstrap model record becomes
// the stored value directly, bypassing Update entirely.
func (d *DefaultPS[P]) SetModel(id types.ParamId, value P) {
	d.store[id] = value
}

func (d *DefaultPS[P]) Close(ps *core.ParameterServer[P]) error {
	for id, v := range d.store {
		ps.Output(types.ServerEntry[P]{Id: id, Value: v})
	}
	return nil
}

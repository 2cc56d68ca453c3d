package core

import "sync"

// Invoker abstracts how a goroutine gets spawned, so tests can track
// every goroutine a partition starts (the teacher's test.TestInvoker does
// the same with a sync.WaitGroup to make shutdown deterministic).
type Invoker interface {
	// Spawn runs f on its own goroutine.
	Spawn(f func())
}

type defaultInvoker struct{}

func (defaultInvoker) Spawn(f func()) {
	go f()
}

var (
	instanceOnce sync.Once
	instance     Invoker
)

// InvokerInstance returns the process-wide default Invoker. Partitions
// take an Invoker at construction time instead of calling this directly,
// so production code and tests can both supply their own.
func InvokerInstance() Invoker {
	instanceOnce.Do(func() {
		instance = defaultInvoker{}
	})
	return instance
}

package ps_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/marfeitosa/go-paramserver/pkg/ps"
	"github.com/marfeitosa/go-paramserver/pkg/ps/core"
	test "github.com/marfeitosa/go-paramserver/test"
	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

// TestTransform_ShutdownLeavesNoGoroutines is P6: once a job's output
// channels close, every goroutine the fabric spawned (partitions,
// routers, rebalancers, the quiescence watcher) has actually returned.
func TestTransform_ShutdownLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	invoker := test.NewTrackingInvoker()
	training := make(chan interface{})
	close(training)

	config := types.Config{WorkerParallelism: 2, ServerParallelism: 2, IterationWaitTime: 10 * time.Millisecond}
	job, err := ps.Transform[int](training,
		func(types.PartitionIndex) core.WorkerLogic[int] { return &pullAndBumpWorker{delta: 1} },
		func(types.ParamId) int { return 0 },
		func(old, delta int) int { return old + delta },
		config,
		ps.WithInvoker[int, int](invoker),
	)
	require.NoError(t, err)

	for range job.Outputs() {
	}

	assert.True(t, test.WaitThisOrTimeout(invoker.Wait, 2*time.Second), "every spawned goroutine should exit once the job's outputs close")
}

// TestJob_ExplicitShutdownAlsoDrainsCleanly exercises the explicit
// Shutdown() path (as opposed to idle-timeout termination).
func TestJob_ExplicitShutdownAlsoDrainsCleanly(t *testing.T) {
	invoker := test.NewTrackingInvoker()
	training := make(chan interface{})

	config := types.Config{WorkerParallelism: 1, ServerParallelism: 1, IterationWaitTime: time.Hour}
	job, err := ps.Transform[int](training,
		func(types.PartitionIndex) core.WorkerLogic[int] { return &pullAndBumpWorker{delta: 1} },
		func(types.ParamId) int { return 0 },
		func(old, delta int) int { return old + delta },
		config,
		ps.WithInvoker[int, int](invoker),
	)
	require.NoError(t, err)

	job.Shutdown()
	for range job.Outputs() {
	}
	close(training)

	assert.True(t, test.WaitThisOrTimeout(invoker.Wait, 2*time.Second))
}

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marfeitosa/go-paramserver/pkg/ps/types"
)

type recordingPS struct {
	store map[types.ParamId]int
}

func newRecordingPS() *recordingPS { return &recordingPS{store: map[types.ParamId]int{}} }

func (r *recordingPS) Open(types.Config) error { return nil }

func (r *recordingPS) OnPullRecv(id types.ParamId, workerPartition types.PartitionIndex, ps *ParameterServer[int]) {
	ps.AnswerPull(id, r.store[id], workerPartition)
}

func (r *recordingPS) OnPushRecv(id types.ParamId, delta int, ps *ParameterServer[int]) {
	r.store[id] += delta
}

func (r *recordingPS) Close(ps *ParameterServer[int]) error { return nil }

func (r *recordingPS) SetModel(id types.ParamId, value int) { r.store[id] = value }

func newTestServerPartition(t *testing.T, logic *recordingPS, bootstrapping, keepalive bool, workerParallelism int) (*ServerPartition[int, int], chan types.ServerToWorker[int]) {
	t.Helper()
	toWorker := make(chan types.ServerToWorker[int], 64)
	s := &ServerPartition[int, int]{
		Id:                  0,
		Logic:               logic,
		Receiver:            DefaultPSReceiver[int, int]{},
		Sender:              DefaultPSSender[int]{},
		Log:                 nopLogger{},
		Quiescent:           NewQuiescence(0, nil, "test"),
		Config:              types.Config{WorkerParallelism: workerParallelism, ServerParallelism: 1},
		WorkerParallelism:   workerParallelism,
		Bootstrapping:       bootstrapping,
		KeepaliveDuringLoad: keepalive,
		ToWorkers:           toWorker,
		Done:                make(chan struct{}),
		Errors:              make(chan error, 8),
	}
	s.eomRemaining = 0
	if bootstrapping {
		s.eomRemaining = workerParallelism
	}
	return s, toWorker
}

func (s *ServerPartition[PullP, PushP]) testPS(toWorker chan types.ServerToWorker[PullP]) *ParameterServer[PullP] {
	return NewParameterServer[PullP](s.Sender, func(msg types.ServerToWorker[PullP]) {
		toWorker <- msg
	}, func(interface{}) {})
}

func TestServerPartition_DefersPullsUntilEomBarrierOpens(t *testing.T) {
	logic := newRecordingPS()
	logic.store[1] = 42
	s, toWorker := newTestServerPartition(t, logic, true, false, 2)
	ps := s.testPS(toWorker)

	s.onPull(1, 0, ps)
	assert.Empty(t, toWorker, "pull must be deferred while the EOM barrier is still closed")

	s.onEom(0, ps)
	assert.Empty(t, toWorker, "barrier stays closed until every worker partition's EOM is seen")

	s.onEom(1, ps)
	msg := <-toWorker
	assert.Equal(t, 42, msg.Value, "deferred pull replays once the barrier opens")
}

// TestServerPartition_DuplicateEomFromSameWorkerDoesNotOpenBarrierEarly is
// invariant 4.5.4's distinct-reporter requirement: a duplicate EOM from a
// worker partition already counted must not advance the barrier, only a
// report from a worker partition not yet seen may.
func TestServerPartition_DuplicateEomFromSameWorkerDoesNotOpenBarrierEarly(t *testing.T) {
	logic := newRecordingPS()
	logic.store[1] = 42
	s, toWorker := newTestServerPartition(t, logic, true, false, 2)
	ps := s.testPS(toWorker)

	s.onPull(1, 0, ps)

	s.onEom(0, ps)
	s.onEom(0, ps) // duplicate from the same worker partition
	s.onEom(0, ps)
	assert.Empty(t, toWorker, "duplicate EOMs from one worker partition must not open the barrier alone")

	s.onEom(1, ps)
	msg := <-toWorker
	assert.Equal(t, 42, msg.Value, "barrier opens once every distinct worker partition has reported")
}

func TestServerPartition_PullAnsweredImmediatelyWithoutBootstrap(t *testing.T) {
	logic := newRecordingPS()
	logic.store[1] = 7
	s, toWorker := newTestServerPartition(t, logic, false, false, 1)
	ps := s.testPS(toWorker)

	s.onPull(1, 0, ps)
	msg := <-toWorker
	assert.Equal(t, 7, msg.Value)
}

func TestServerPartition_KeepaliveTargetsDeterministicWorker(t *testing.T) {
	logic := newRecordingPS()
	s, toWorker := newTestServerPartition(t, logic, true, true, 3)
	ps := s.testPS(toWorker)

	s.onPush(7, 1, 0, ps)

	msg := <-toWorker
	assert.Equal(t, types.KeepaliveKind, msg.Kind)
	assert.Equal(t, keepaliveTarget(7, 3), msg.WorkerPartition)
}

func TestServerPartition_NoKeepaliveWhenDisabled(t *testing.T) {
	logic := newRecordingPS()
	s, toWorker := newTestServerPartition(t, logic, true, false, 3)
	ps := s.testPS(toWorker)

	s.onPush(7, 1, 0, ps)

	assert.Empty(t, toWorker)
}

func TestServerPartition_NoKeepaliveOnceBarrierOpen(t *testing.T) {
	logic := newRecordingPS()
	s, toWorker := newTestServerPartition(t, logic, true, true, 1)
	ps := s.testPS(toWorker)

	s.onEom(0, ps)
	s.onPush(7, 1, 0, ps)

	assert.Empty(t, toWorker, "keepalive only fires while the bootstrap barrier is still closed")
}

func TestKeepaliveTarget_WrapsNegativeIds(t *testing.T) {
	require.Equal(t, types.PartitionIndex(0), keepaliveTarget(-4, 4))
	require.Equal(t, types.PartitionIndex(3), keepaliveTarget(-1, 4))
}

type nopLogger struct{}

func (nopLogger) Info(...interface{})            {}
func (nopLogger) Infof(string, ...interface{})   {}
func (nopLogger) Warn(...interface{})            {}
func (nopLogger) Warnf(string, ...interface{})   {}
func (nopLogger) Error(...interface{})           {}
func (nopLogger) Errorf(string, ...interface{})  {}
func (nopLogger) Debug(...interface{})           {}
func (nopLogger) Debugf(string, ...interface{})  {}
func (nopLogger) Fatal(...interface{})           {}
func (nopLogger) Fatalf(string, ...interface{})  {}
func (nopLogger) ToggleDebug(v bool) bool        { return v }

var _ types.Logger = nopLogger{}

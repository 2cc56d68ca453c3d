// Package test is shared test plumbing for pkg/ps: an Invoker that
// tracks every spawned goroutine and a couple of timeout helpers, ported
// from the original multicast test harness onto the parameter-server
// fabric.
package test

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/marfeitosa/go-paramserver/pkg/ps/core"
)

// TrackingInvoker runs every Spawn'd function under a WaitGroup so a test
// can block until every partition goroutine a Fabric started has
// actually exited, instead of guessing with a sleep.
type TrackingInvoker struct {
	group sync.WaitGroup
}

func NewTrackingInvoker() *TrackingInvoker {
	return &TrackingInvoker{}
}

func (t *TrackingInvoker) Spawn(f func()) {
	t.group.Add(1)
	go func() {
		defer t.group.Done()
		f()
	}()
}

// Wait blocks until every spawned goroutine has returned.
func (t *TrackingInvoker) Wait() {
	t.group.Wait()
}

var _ core.Invoker = (*TrackingInvoker)(nil)

// PrintStackTrace dumps every goroutine's stack to the test log, useful
// when WaitThisOrTimeout times out and a leaked goroutine is suspected.
func PrintStackTrace(t *testing.T) {
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Errorf("%s", buf[:n])
}

// WaitThisOrTimeout runs cb and reports whether it finished within
// duration.
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cb()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}

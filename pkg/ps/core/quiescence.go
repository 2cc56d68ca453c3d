package core

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Quiescence is the idle-termination detector of spec.md §4.4/§9: it
// tracks an in-flight message counter and a last-activity timestamp, and
// signals Idle() once the in-flight count is zero and the idle interval
// has exceeded IterationWaitTime. IterationWaitTime == 0 means "never
// terminate" and Watch never signals.
//
// Also exports a prometheus gauge/counter pair so the same state the
// detector reasons about is externally observable.
type Quiescence struct {
	waitTime time.Duration
	inFlight int64
	lastNano int64

	gauge   prometheus.Gauge
	counter prometheus.Counter

	idle chan struct{}
	stop chan struct{}
}

// NewQuiescence builds a detector for one Fabric run. If registry is
// non-nil, a paramserver_in_flight_messages gauge and a
// paramserver_messages_routed_total counter, labeled by name, are
// registered on it.
func NewQuiescence(waitTime time.Duration, registry *prometheus.Registry, name string) *Quiescence {
	q := &Quiescence{
		waitTime: waitTime,
		lastNano: nowNano(),
		idle:     make(chan struct{}),
		stop:     make(chan struct{}),
		gauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "paramserver_in_flight_messages",
			Help:        "messages currently being processed by a worker or server partition",
			ConstLabels: prometheus.Labels{"fabric": name},
		}),
		counter: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "paramserver_messages_routed_total",
			Help:        "messages routed between worker and server partitions",
			ConstLabels: prometheus.Labels{"fabric": name},
		}),
	}
	if registry != nil {
		registry.MustRegister(q.gauge, q.counter)
	}
	return q
}

func nowNano() int64 {
	return time.Now().UnixNano()
}

// Enter marks one in-flight handler invocation starting.
func (q *Quiescence) Enter() {
	atomic.AddInt64(&q.inFlight, 1)
	q.gauge.Inc()
	q.touch()
}

// Leave marks one in-flight handler invocation completing.
func (q *Quiescence) Leave() {
	atomic.AddInt64(&q.inFlight, -1)
	q.gauge.Dec()
	q.touch()
}

// Mark records that a message traversed the loop, without itself being a
// long-lived in-flight unit of work (used around channel sends).
func (q *Quiescence) Mark() {
	q.counter.Inc()
	q.touch()
}

func (q *Quiescence) touch() {
	atomic.StoreInt64(&q.lastNano, nowNano())
}

// Idle returns a channel that closes once the loop has gone quiet for
// waitTime. Never closes if waitTime is zero.
func (q *Quiescence) Idle() <-chan struct{} {
	return q.idle
}

// Watch runs the polling loop; call it on its own goroutine. Stop() ends
// it without ever closing Idle().
func (q *Quiescence) Watch() {
	if q.waitTime <= 0 {
		return
	}
	tick := q.waitTime / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			if atomic.LoadInt64(&q.inFlight) != 0 {
				continue
			}
			idleFor := time.Duration(nowNano() - atomic.LoadInt64(&q.lastNano))
			if idleFor >= q.waitTime {
				close(q.idle)
				return
			}
		}
	}
}

// Stop ends Watch without signaling Idle, used during an explicit
// Fabric.Shutdown().
func (q *Quiescence) Stop() {
	select {
	case <-q.stop:
	default:
		close(q.stop)
	}
}

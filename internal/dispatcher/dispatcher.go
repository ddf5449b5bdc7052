// Package dispatcher owns one queue and one worker per replica. Each
// worker drains its queue strictly FIFO, retrying a failed send against
// the same entry with jittered exponential back-off until it succeeds —
// there is no retry budget and no dropped state, because skipping an
// entry would break the FIFO-implies-monotone-seq guarantee a replica's
// ingress relies on.
package dispatcher

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elgrassa/replicated-log/internal/metrics"
)

// entry is one queued (seq, payload) pair awaiting delivery to a replica.
type entry struct {
	seq     int64
	payload string
}

// AckEvent is published once per successful (or duplicate, which is
// treated as successful) delivery. Dispatcher owns no reference to
// whoever consumes these; the coordinator is the only subscriber in this
// process, but nothing here assumes that.
type AckEvent struct {
	Seq  int64
	Addr string
}

// Replicator is the outbound call a worker makes to deliver one entry.
// internal/transport.Client satisfies this.
type Replicator interface {
	Addr() string
	Replicate(ctx context.Context, seq int64, payload string) (duplicate bool, err error)
}

// Dispatcher fans out log entries to every configured replica.
type Dispatcher struct {
	log  *zap.Logger
	mtr  *metrics.Client
	acks chan AckEvent

	mu      sync.Mutex
	workers map[string]*replicaWorker
}

// New returns a Dispatcher. acks is the channel every worker publishes
// AckEvent to; the caller (normally the write coordinator) owns draining
// it.
func New(log *zap.Logger, mtr *metrics.Client, acks chan AckEvent) *Dispatcher {
	return &Dispatcher{
		log:     log,
		mtr:     mtr,
		acks:    acks,
		workers: make(map[string]*replicaWorker),
	}
}

// AddReplica registers a replica and starts its worker goroutine. Must be
// called before any Enqueue for that replica.
func (d *Dispatcher) AddReplica(r Replicator) {
	d.mu.Lock()
	defer d.mu.Unlock()

	w := newReplicaWorker(r, d.acks, d.log.With(zap.String("replica", r.Addr())), d.mtr)
	d.workers[r.Addr()] = w
	go w.run()
}

// Enqueue appends (seq, payload) to the named replica's queue. It never
// blocks the caller and never drops the entry.
func (d *Dispatcher) Enqueue(addr string, seq int64, payload string) {
	d.mu.Lock()
	w := d.workers[addr]
	d.mu.Unlock()

	if w == nil {
		d.log.Error("enqueue to unknown replica", zap.String("replica", addr))
		return
	}
	w.enqueue(entry{seq: seq, payload: payload})
	d.mtr.Gauge("dispatcher.queue_depth", float64(w.depth()), "replica:"+addr)
}

// QueueDepth returns the number of entries waiting (not yet acked) for a
// replica, for health/metrics reporting.
func (d *Dispatcher) QueueDepth(addr string) int {
	d.mu.Lock()
	w := d.workers[addr]
	d.mu.Unlock()
	if w == nil {
		return 0
	}
	return w.depth()
}

// Stop signals every worker to exit after its current attempt. Queued
// entries are abandoned (process is shutting down; nothing in §5 requires
// draining on shutdown since the log is process-lifetime only).
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.workers {
		w.stop()
	}
}

// replicaWorker consumes one replica's queue strictly FIFO.
type replicaWorker struct {
	r    Replicator
	acks chan<- AckEvent
	log  *zap.Logger
	mtr  *metrics.Client

	mu       sync.Mutex
	queue    []entry
	notify   chan struct{}
	shutdown chan struct{}
}

func newReplicaWorker(r Replicator, acks chan<- AckEvent, log *zap.Logger, mtr *metrics.Client) *replicaWorker {
	return &replicaWorker{
		r:        r,
		acks:     acks,
		log:      log,
		mtr:      mtr,
		notify:   make(chan struct{}, 1),
		shutdown: make(chan struct{}),
	}
}

func (w *replicaWorker) enqueue(e entry) {
	w.mu.Lock()
	w.queue = append(w.queue, e)
	w.mu.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

func (w *replicaWorker) depth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *replicaWorker) peek() (entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return entry{}, false
	}
	return w.queue[0], true
}

func (w *replicaWorker) advance() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) > 0 {
		w.queue = w.queue[1:]
	}
}

func (w *replicaWorker) stop() {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
}

// run is the worker's state machine: queued -> inflight -> (ack|failed),
// failed -> inflight after the back-off delay. There is no dropped state.
func (w *replicaWorker) run() {
	for {
		e, ok := w.peek()
		if !ok {
			select {
			case <-w.notify:
				continue
			case <-w.shutdown:
				return
			}
		}

		var backoff time.Duration
		for {
			duplicate, err := w.send(e)
			if err == nil {
				if duplicate {
					w.log.Debug("duplicate ack", zap.Int64("seq", e.seq))
				}
				w.mtr.Incr("dispatcher.ack")
				w.advance()
				select {
				case w.acks <- AckEvent{Seq: e.seq, Addr: w.r.Addr()}:
				case <-w.shutdown:
					return
				}
				break
			}

			w.mtr.Incr("dispatcher.retry")
			w.log.Warn("replicate failed, retrying",
				zap.Int64("seq", e.seq), zap.Error(err), zap.Duration("backoff", backoff))

			backoff = nextBackoff(backoff)
			select {
			case <-time.After(backoff):
			case <-w.shutdown:
				return
			}
		}
	}
}

func (w *replicaWorker) send(e entry) (duplicate bool, err error) {
	finish := metrics.StartSpan("dispatcher.send", map[string]string{
		"seq":     strconv.FormatInt(e.seq, 10),
		"replica": w.r.Addr(),
	})
	defer finish()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return w.r.Replicate(ctx, e.seq, e.payload)
}

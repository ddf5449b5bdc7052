// Package coordinator implements the primary's client-facing append path:
// validate write concern, gate on quorum, assign a sequence number, fan
// out to every replica, and wait until enough distinct replicas have
// acknowledged.
//
// The wait is per-request, not per-replica: each PendingAppend owns its
// own notification so a W=1 caller is never delayed by a concurrent W=N+1
// caller waiting on a different, slower, set of replicas.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/elgrassa/replicated-log/internal/dispatcher"
	"github.com/elgrassa/replicated-log/internal/ledger"
	"github.com/elgrassa/replicated-log/internal/metrics"
)

// Error taxonomy for the client-facing append path (SPEC_FULL.md §7).
var (
	ErrInvalidWriteConcern = errors.New("invalid write concern")
	ErrNoQuorum            = errors.New("no quorum")
	ErrWaitAbandoned       = errors.New("wait abandoned by caller")
)

// QuorumChecker is the liveness gate consulted before admitting a write.
type QuorumChecker interface {
	QuorumOK() bool
}

// Result is returned to the HTTP layer on a successful append.
type Result struct {
	Seq        int64
	W          int
	Acks       []string
	DurationMs int64
	Messages   []string
}

// pendingAppend tracks ACKs for one in-flight client request. It owns no
// reference to the dispatcher or the ledger; it is woken purely by
// AckEvents the coordinator routes to it.
type pendingAppend struct {
	seq     int64
	need    int // W-1 distinct replica acks
	mu      sync.Mutex
	acked   map[string]bool
	done    chan struct{}
	closeOK sync.Once
}

func newPendingAppend(seq int64, need int) *pendingAppend {
	p := &pendingAppend{
		seq:   seq,
		need:  need,
		acked: make(map[string]bool),
		done:  make(chan struct{}),
	}
	if need <= 0 {
		// W=1: the primary alone satisfies the write concern.
		close(p.done)
	}
	return p
}

// ack records addr's ACK and wakes waiters once need is reached. Closing
// done happens only once; later ACKs are recorded but wake nobody.
func (p *pendingAppend) ack(addr string) {
	p.mu.Lock()
	p.acked[addr] = true
	satisfied := len(p.acked) >= p.need
	p.mu.Unlock()

	if satisfied {
		p.closeOK.Do(func() { close(p.done) })
	}
}

func (p *pendingAppend) ackedAddrs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.acked))
	for a := range p.acked {
		out = append(out, a)
	}
	return out
}

// Coordinator is the primary's WriteCoordinator.
type Coordinator struct {
	log        *zap.Logger
	mtr        *metrics.Client
	ledger     *ledger.Ledger
	dispatcher *dispatcher.Dispatcher
	quorum     QuorumChecker
	replicas   []string

	acks chan dispatcher.AckEvent

	mu      sync.Mutex
	pending map[int64]*pendingAppend
}

// New wires a Coordinator. acks must be the same channel passed to
// dispatcher.New — the coordinator is the sole consumer.
func New(log *zap.Logger, mtr *metrics.Client, l *ledger.Ledger, d *dispatcher.Dispatcher, q QuorumChecker, replicas []string, acks chan dispatcher.AckEvent) *Coordinator {
	c := &Coordinator{
		log:        log,
		mtr:        mtr,
		ledger:     l,
		dispatcher: d,
		quorum:     q,
		replicas:   replicas,
		acks:       acks,
		pending:    make(map[int64]*pendingAppend),
	}
	go c.drainAcks()
	return c
}

func (c *Coordinator) drainAcks() {
	for ev := range c.acks {
		c.mu.Lock()
		pa := c.pending[ev.Seq]
		c.mu.Unlock()
		if pa != nil {
			pa.ack(ev.Addr)
		}
	}
}

// N returns the configured replica count.
func (c *Coordinator) N() int { return len(c.replicas) }

// Append implements the full client append contract from SPEC_FULL.md §4.3.
func (c *Coordinator) Append(ctx context.Context, payload string, w int) (Result, error) {
	finish := metrics.StartSpan("coordinator.append", map[string]string{"w": fmt.Sprintf("%d", w)})
	defer finish()

	start := time.Now()
	n := len(c.replicas)

	if w < 1 || w > n+1 {
		return Result{}, fmt.Errorf("%w: w=%d must be between 1 and %d", ErrInvalidWriteConcern, w, n+1)
	}
	if !c.quorum.QuorumOK() {
		return Result{}, ErrNoQuorum
	}

	entry := c.ledger.Assign(payload)
	c.mtr.Incr("append.total")

	pa := newPendingAppend(entry.Seq, w-1)
	c.mu.Lock()
	c.pending[entry.Seq] = pa
	c.mu.Unlock()
	go func() {
		<-pa.done
		c.mu.Lock()
		delete(c.pending, pa.seq)
		c.mu.Unlock()
	}()

	for _, addr := range c.replicas {
		c.dispatcher.Enqueue(addr, entry.Seq, entry.Payload)
	}

	select {
	case <-pa.done:
		c.mtr.Incr("append.acks")
		return c.result(entry.Seq, w, pa.ackedAddrs(), start), nil
	case <-ctx.Done():
		// The entry is already committed and replication continues in
		// the background; we just stop waiting on behalf of this caller.
		return Result{}, ErrWaitAbandoned
	}
}

func (c *Coordinator) result(seq int64, w int, acks []string, start time.Time) Result {
	return Result{
		Seq:        seq,
		W:          w,
		Acks:       acks,
		DurationMs: time.Since(start).Milliseconds(),
		Messages:   c.ledger.Snapshot(),
	}
}

// Package health runs the primary's periodic replica liveness probe and
// exposes the quorum predicate that gates new writes.
package health

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/elgrassa/replicated-log/internal/metrics"
)

// Pinger is the liveness check made against one replica.
// internal/transport.Client satisfies this via Ping.
type Pinger interface {
	Addr() string
	Ping(ctx context.Context) error
}

// Status is a snapshot of one replica's liveness, for /health responses.
type Status struct {
	Addr     string
	Healthy  bool
	LastSeen time.Time
}

// Probe periodically pings every replica and answers the quorum question:
// "is it safe to admit a new write?" Quorum never looks at write concern;
// it is a liveness gate independent of W.
type Probe struct {
	log      *zap.Logger
	mtr      *metrics.Client
	interval time.Duration
	grace    time.Duration
	limiter  *rate.Limiter

	mu       sync.RWMutex
	replicas []Pinger
	lastSeen map[string]time.Time
	healthy  map[string]bool

	stop chan struct{}
	done chan struct{}
}

// New returns a Probe. interval is the ping cadence; grace is how long a
// replica stays "healthy" after its last successful ping before it is
// considered down (default 3x interval per SPEC_FULL.md §6).
func New(log *zap.Logger, mtr *metrics.Client, replicas []Pinger, interval, grace time.Duration) *Probe {
	p := &Probe{
		log:      log,
		mtr:      mtr,
		interval: interval,
		grace:    grace,
		// Stagger concurrent pings across a cluster instead of firing
		// every replica's ping in the same instant every tick.
		limiter:  rate.NewLimiter(rate.Every(interval/time.Duration(max(len(replicas), 1))), 1),
		replicas: replicas,
		lastSeen: make(map[string]time.Time),
		healthy:  make(map[string]bool),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, r := range replicas {
		// Optimistically healthy until the first probe, so quorum isn't
		// falsely denied during the first interval after startup.
		p.healthy[r.Addr()] = true
		p.lastSeen[r.Addr()] = time.Now()
	}
	return p
}

// Run blocks, probing on a fixed interval until Stop is called.
func (p *Probe) Run(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

// Stop signals Run to return and blocks until it has.
func (p *Probe) Stop() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	<-p.done
}

func (p *Probe) probeAll(ctx context.Context) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error

	for _, r := range p.replicas {
		wg.Add(1)
		go func(r Pinger) {
			defer wg.Done()
			_ = p.limiter.Wait(ctx)

			pingCtx, cancel := context.WithTimeout(ctx, p.interval)
			err := r.Ping(pingCtx)
			cancel()

			p.mu.Lock()
			if err == nil {
				p.lastSeen[r.Addr()] = time.Now()
				p.healthy[r.Addr()] = true
			} else {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			p.mu.Unlock()
			p.mtr.Incr("health.probe", "addr:"+r.Addr())
		}(r)
	}
	wg.Wait()

	p.recomputeHealthy()
	if errs != nil {
		p.log.Debug("replica probe failures", zap.Error(errs))
	}
}

// recomputeHealthy demotes any replica whose last successful probe fell
// outside the grace window.
func (p *Probe) recomputeHealthy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for addr, last := range p.lastSeen {
		if now.Sub(last) > p.grace {
			p.healthy[addr] = false
		}
	}
}

// Statuses returns a snapshot of every replica's liveness.
func (p *Probe) Statuses() []Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Status, 0, len(p.replicas))
	for _, r := range p.replicas {
		addr := r.Addr()
		out = append(out, Status{
			Addr:     addr,
			Healthy:  p.healthy[addr],
			LastSeen: p.lastSeen[addr],
		})
	}
	return out
}

// HealthyCount returns how many replicas are currently considered healthy.
func (p *Probe) HealthyCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, ok := range p.healthy {
		if ok {
			n++
		}
	}
	return n
}

// QuorumOK reports whether (healthy_replicas + 1) >= ceil((N+1)/2), where
// N is the total configured replica count (not just the ones currently
// healthy). This is a liveness gate for admitting any new write and does
// not depend on a request's write concern.
func (p *Probe) QuorumOK() bool {
	p.mu.RLock()
	n := len(p.replicas)
	p.mu.RUnlock()

	required := int(math.Ceil(float64(n+1) / 2))
	return p.HealthyCount()+1 >= required
}

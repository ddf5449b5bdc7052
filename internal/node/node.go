// Package node wires the replication core's collaborators into a running
// primary or replica: the adapters here are the only place a
// transport.Client is coerced into the narrow interfaces dispatcher and
// health actually depend on.
package node

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/elgrassa/replicated-log/internal/coordinator"
	"github.com/elgrassa/replicated-log/internal/dispatcher"
	"github.com/elgrassa/replicated-log/internal/health"
	"github.com/elgrassa/replicated-log/internal/ledger"
	"github.com/elgrassa/replicated-log/internal/metrics"
	"github.com/elgrassa/replicated-log/internal/replicastore"
	"github.com/elgrassa/replicated-log/internal/transport"
)

// replicaLink adapts a transport.Client to dispatcher.Replicator and
// health.Pinger.
type replicaLink struct {
	client *transport.Client
}

func (l *replicaLink) Addr() string { return l.client.Addr() }

func (l *replicaLink) Replicate(ctx context.Context, seq int64, payload string) (bool, error) {
	res, err := l.client.Replicate(ctx, seq, payload)
	if err != nil {
		return false, err
	}
	return res.Duplicate, nil
}

func (l *replicaLink) Ping(ctx context.Context) error {
	_, err := l.client.Ping(ctx)
	return err
}

// Primary bundles every collaborator a running primary needs.
type Primary struct {
	Ledger      *ledger.Ledger
	Dispatcher  *dispatcher.Dispatcher
	Coordinator *coordinator.Coordinator
	Probe       *health.Probe
	Replicas    []string

	cancelProbe context.CancelFunc
}

// NewPrimary constructs and starts a primary node: one link per replica,
// a dispatcher worker per replica, the health probe, and the write
// coordinator.
func NewPrimary(log *zap.Logger, mtr *metrics.Client, replicaAddrs []string, healthInterval, healthGrace time.Duration) *Primary {
	l := ledger.New()
	acks := make(chan dispatcher.AckEvent, 256)
	d := dispatcher.New(log, mtr, acks)

	pingers := make([]health.Pinger, 0, len(replicaAddrs))
	for _, addr := range replicaAddrs {
		client := transport.New(addr, 10*time.Second)
		link := &replicaLink{client: client}
		d.AddReplica(link)
		pingers = append(pingers, link)
	}

	probe := health.New(log, mtr, pingers, healthInterval, healthGrace)
	ctx, cancel := context.WithCancel(context.Background())
	go probe.Run(ctx)

	c := coordinator.New(log, mtr, l, d, probe, replicaAddrs, acks)

	return &Primary{
		Ledger:      l,
		Dispatcher:  d,
		Coordinator: c,
		Probe:       probe,
		Replicas:    replicaAddrs,
		cancelProbe: cancel,
	}
}

// Close stops the health probe and every dispatcher worker.
func (p *Primary) Close() {
	p.cancelProbe()
	p.Probe.Stop()
	p.Dispatcher.Stop()
}

// Replica bundles the collaborators a running replica needs.
type Replica struct {
	Store *replicastore.Store
}

// NewReplica constructs a replica node with the given artificial ingress
// delay (DELAY_MS in SPEC_FULL.md §6).
func NewReplica(delay time.Duration) *Replica {
	return &Replica{Store: replicastore.New(delay)}
}

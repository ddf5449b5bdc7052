// Package metrics wraps the DataDog statsd client and tracer used to
// instrument the replication core. Both are optional: when no agent
// address is configured, Client is a nil-safe no-op so call sites never
// need a feature flag of their own.
package metrics

import (
	"github.com/DataDog/datadog-go/statsd"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

// Client emits counters/gauges for the replication core. A nil *Client is
// valid and every method on it is a no-op.
type Client struct {
	statsd *statsd.Client
}

// New dials the statsd agent at addr. An empty addr disables metrics and
// New returns a non-nil *Client whose methods are still safe to call.
func New(addr string) (*Client, error) {
	if addr == "" {
		return &Client{}, nil
	}
	c, err := statsd.New(addr, statsd.WithNamespace("replicated_log."))
	if err != nil {
		return nil, err
	}
	return &Client{statsd: c}, nil
}

func (c *Client) Incr(name string, tags ...string) {
	if c == nil || c.statsd == nil {
		return
	}
	_ = c.statsd.Incr(name, tags, 1)
}

func (c *Client) Gauge(name string, value float64, tags ...string) {
	if c == nil || c.statsd == nil {
		return
	}
	_ = c.statsd.Gauge(name, value, tags, 1)
}

func (c *Client) TimingMs(name string, ms float64, tags ...string) {
	if c == nil || c.statsd == nil {
		return
	}
	_ = c.statsd.TimeInMilliseconds(name, ms, tags, 1)
}

// Close flushes and closes the underlying statsd connection, if any.
func (c *Client) Close() error {
	if c == nil || c.statsd == nil {
		return nil
	}
	return c.statsd.Close()
}

// StartSpan starts a dd-trace span for a core operation (append, dispatch,
// probe) and returns the finish function to defer.
func StartSpan(operation string, tags map[string]string) func() {
	span := tracer.StartSpan(operation)
	for k, v := range tags {
		span.SetTag(k, v)
	}
	return func() { span.Finish() }
}

// ConfigureTracer starts the global dd-trace tracer for this process. It is
// a no-op to call Stop on a tracer that was never started.
func ConfigureTracer(service string) func() {
	tracer.Start(tracer.WithServiceName(service))
	return tracer.Stop
}

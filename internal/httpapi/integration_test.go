package httpapi

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/elgrassa/replicated-log/internal/node"
)

// replicaServer is one in-process replica: an httptest.Server in front of
// a real node.Replica, so the primary's transport.Client talks real HTTP.
type replicaServer struct {
	srv *httptest.Server
}

func newReplicaServer(t *testing.T, delay time.Duration) *replicaServer {
	t.Helper()
	n := node.NewReplica(delay)
	log := zap.NewNop()
	router := NewReplicaRouter(ReplicaDeps{Store: n.Store, Log: log, Metrics: nil})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &replicaServer{srv: srv}
}

func (r *replicaServer) addr() string { return r.srv.URL }

func newPrimaryServer(t *testing.T, replicaAddrs []string) (*httptest.Server, *node.Primary) {
	t.Helper()
	log := zap.NewNop()
	p := node.NewPrimary(log, nil, replicaAddrs, 50*time.Millisecond, 200*time.Millisecond)
	t.Cleanup(p.Close)

	router := NewPrimaryRouter(PrimaryDeps{
		Ledger:      p.Ledger,
		Coordinator: p.Coordinator,
		Probe:       p.Probe,
		Dispatcher:  p.Dispatcher,
		Replicas:    replicaAddrs,
		Log:         log,
		Metrics:     nil,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, p
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func getJSON(t *testing.T, url string) map[string]interface{} {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// S1 — Happy path, W=N+1, two replicas.
func TestScenario_S1_HappyPathFullQuorum(t *testing.T) {
	r1 := newReplicaServer(t, 0)
	r2 := newReplicaServer(t, 0)

	primary, _ := newPrimaryServer(t, []string{r1.addr(), r2.addr()})

	resp, body := postJSON(t, primary.URL+"/messages", map[string]interface{}{"msg": "a"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(1), body["seq"])
	assert.Len(t, body["acks"], 2)
	assert.Equal(t, []interface{}{"a"}, body["messages"])

	for _, addr := range []string{primary.URL, r1.addr(), r2.addr()} {
		msgs := getJSON(t, addr+"/messages")
		assert.Equal(t, []interface{}{"a"}, msgs["messages"])
	}
}

// S2 — Semi-sync w=1: a slow replica must not delay the response, and it
// converges afterwards.
func TestScenario_S2_SemiSyncDoesNotBlock(t *testing.T) {
	r1 := newReplicaServer(t, 0)
	r2 := newReplicaServer(t, 1500*time.Millisecond)

	primary, _ := newPrimaryServer(t, []string{r1.addr(), r2.addr()})

	start := time.Now()
	resp, body := postJSON(t, primary.URL+"/messages", map[string]interface{}{"msg": "b", "w": 1})
	elapsed := time.Since(start)

	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Empty(t, body["acks"])

	require.Eventually(t, func() bool {
		msgs := getJSON(t, r2.addr()+"/messages")
		got, _ := msgs["messages"].([]interface{})
		return len(got) == 1
	}, 3*time.Second, 100*time.Millisecond, "r2 should converge once its delay elapses")
}

// S3 — Blocking w=N+1 with one replica initially unreachable; a
// concurrent w=1 append is unaffected, and the blocked append completes
// once the replica becomes reachable.
func TestScenario_S3_BlockingWaitIsolatedFromFastWaiters(t *testing.T) {
	r1 := newReplicaServer(t, 0)

	down := freeAddr(t)

	primary, _ := newPrimaryServer(t, []string{r1.addr(), down})

	blocked := make(chan map[string]interface{}, 1)
	go func() {
		_, body := postJSON(t, primary.URL+"/messages", map[string]interface{}{"msg": "c", "w": 3})
		blocked <- body
	}()

	start := time.Now()
	resp, _ := postJSON(t, primary.URL+"/messages", map[string]interface{}{"msg": "d", "w": 1})
	elapsed := time.Since(start)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Less(t, elapsed, 500*time.Millisecond)

	select {
	case <-blocked:
		t.Fatal("w=3 append should still be blocked while a replica is down")
	case <-time.After(300 * time.Millisecond):
	}

	startReplicaAt(t, down, 0)

	select {
	case body := <-blocked:
		assert.Len(t, body["acks"], 2)
	case <-time.After(5 * time.Second):
		t.Fatal("w=3 append should complete once the replica recovers")
	}
}

// S6 — Quorum rejection: with both replicas down, a write is rejected and
// no sequence number is burned.
func TestScenario_S6_NoQuorumRejectsWithoutBurningSeq(t *testing.T) {
	down1 := freeAddr(t)
	down2 := freeAddr(t)

	primary, p := newPrimaryServer(t, []string{down1, down2})
	// Wait past the health grace window so both unreachable replicas are
	// demoted from their optimistic initial "healthy" state.
	time.Sleep(400 * time.Millisecond)

	resp, body := postJSON(t, primary.URL+"/messages", map[string]interface{}{"msg": "e", "w": 1})
	assert.True(t, resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusBadGateway)
	assert.Equal(t, "NoQuorum", body["error"])
	assert.Equal(t, 0, p.Ledger.Size())
}

// S4 — Retry / dedup: repeated direct delivery of the same seq to a
// replica never introduces a second copy.
func TestScenario_S4_RetryDeliveryIsDeduped(t *testing.T) {
	r1 := newReplicaServer(t, 0)

	for i := 0; i < 3; i++ {
		resp, body := postJSON(t, r1.addr()+"/replicate", map[string]interface{}{"msg": "x", "seq": 1})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if i > 0 {
			assert.Equal(t, true, body["duplicate"])
		}
	}

	msgs := getJSON(t, r1.addr()+"/messages")
	assert.Equal(t, []interface{}{"x"}, msgs["messages"])
}

// S5 — Gap hiding: out-of-order delivery is buffered until the applied
// prefix is contiguous, then released in order.
func TestScenario_S5_GapIsHiddenUntilFilled(t *testing.T) {
	r1 := newReplicaServer(t, 0)

	for _, e := range []struct {
		seq int
		msg string
	}{{1, "a"}, {2, "b"}, {4, "d"}} {
		resp, _ := postJSON(t, r1.addr()+"/replicate", map[string]interface{}{"msg": e.msg, "seq": e.seq})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	msgs := getJSON(t, r1.addr()+"/messages")
	assert.Equal(t, []interface{}{"a", "b"}, msgs["messages"])

	resp, _ := postJSON(t, r1.addr()+"/replicate", map[string]interface{}{"msg": "c", "seq": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msgs = getJSON(t, r1.addr()+"/messages")
	assert.Equal(t, []interface{}{"a", "b", "c", "d"}, msgs["messages"])
}

// freeAddr returns a loopback "host:port" string with nothing listening
// on it yet (a stand-in for a down replica that will later start).
func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "http://" + addr
}

// startReplicaAt starts a real replica HTTP server bound to addr (as
// produced by freeAddr), simulating a replica coming back up.
func startReplicaAt(t *testing.T, addr string, delay time.Duration) *replicaServer {
	t.Helper()
	hostport := addr[len("http://"):]
	l, err := net.Listen("tcp", hostport)
	require.NoError(t, err)

	n := node.NewReplica(delay)
	log := zap.NewNop()
	router := NewReplicaRouter(ReplicaDeps{Store: n.Store, Log: log, Metrics: nil})
	srv := &httptest.Server{Listener: l, Config: &http.Server{Handler: router}}
	srv.Start()
	t.Cleanup(srv.Close)
	return &replicaServer{srv: srv}
}

package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/ashureev/debate-panel/internal/metrics"
)

type flakyChecker struct {
	down  atomic.Bool
	calls atomic.Int32
}

func (f *flakyChecker) Health(context.Context) error {
	f.calls.Add(1)
	if f.down.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func TestProberReportsTransitions(t *testing.T) {
	checker := &flakyChecker{}
	p := NewProber(checker, time.Hour, metrics.New(prometheus.NewRegistry()), nil)

	var (
		mu   sync.Mutex
		seen []bool
	)
	p.OnChange(func(up bool) {
		mu.Lock()
		seen = append(seen, up)
		mu.Unlock()
	})

	assert.True(t, p.Check(t.Context()))
	assert.True(t, p.Check(t.Context()))
	checker.down.Store(true)
	assert.False(t, p.Check(t.Context()))
	assert.False(t, p.Up())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
}

func TestProberStartProbesPeriodically(t *testing.T) {
	checker := &flakyChecker{}
	p := NewProber(checker, 10*time.Millisecond, nil, nil)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	p.Start(ctx)

	assert.GreaterOrEqual(t, checker.calls.Load(), int32(1), "first probe runs synchronously")
	require.Eventually(t, func() bool { return checker.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestServerReflectsBackendStatus(t *testing.T) {
	srv := NewServer(nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient(ln.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(BackendService))

	srv.SetBackendUp(true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(BackendService))
}

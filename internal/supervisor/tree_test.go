package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	runs  atomic.Int32
	fails int32
}

func (w *countingWorker) Serve(ctx context.Context) error {
	n := w.runs.Add(1)
	if n <= w.fails {
		return errors.New("boom")
	}
	<-ctx.Done()
	return ctx.Err()
}

type mockHTTPServer struct {
	mu        sync.Mutex
	started   chan struct{}
	stop      chan struct{}
	listenErr error
	shutdowns int
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stop: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns++
	close(m.stop)
	return nil
}

func TestNewTreeDefaults(t *testing.T) {
	tree := NewTree(TreeConfig{})
	assert.Equal(t, DefaultTreeConfig(), tree.config)
	assert.NotNil(t, tree.Root())

	custom := NewTree(TreeConfig{FailureBackoff: time.Second})
	assert.Equal(t, time.Second, custom.config.FailureBackoff)
	assert.Equal(t, 5.0, custom.config.FailureThreshold)
}

func TestTreeRestartsFailedWorkers(t *testing.T) {
	tree := NewTree(TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	flaky := &countingWorker{fails: 2}
	steady := &countingWorker{}
	tree.AddSyncService(Named("flaky", flaky))
	tree.AddAPIService(Named("steady", steady))

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	require.Eventually(t, func() bool { return flaky.runs.Load() == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), steady.runs.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not stop")
	}
}

func TestNamedService(t *testing.T) {
	svc := Named("bridge", &countingWorker{})
	assert.Equal(t, "bridge", svc.(interface{ String() string }).String())
}

func TestHTTPServerServiceShutdown(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, time.Second)
	assert.Equal(t, "http-server", svc.String())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	<-server.started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, 1, server.shutdowns)
}

func TestHTTPServerServiceListenError(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = errors.New("address in use")
	svc := NewHTTPServerService(server, 0)
	assert.Equal(t, 10*time.Second, svc.shutdownTimeout)

	err := svc.Serve(context.Background())
	assert.ErrorContains(t, err, "address in use")
}

package server_test

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firasghr/GoPoolServer/config"
	"github.com/firasghr/GoPoolServer/metrics"
	"github.com/firasghr/GoPoolServer/server"
	"github.com/firasghr/GoPoolServer/worker"
)

// startServer listens on a loopback port and serves in the background.  The
// returned channel yields Serve's result.
func startServer(t *testing.T, cfg *config.Config, pool server.Submitter, opts ...server.Option) (*server.Server, string, <-chan error) {
	t.Helper()
	srv := server.New(cfg, pool, opts...)
	ln, err := srv.Listen()
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	t.Cleanup(func() { srv.Close() })
	return srv, ln.Addr().String(), errc
}

func get(t *testing.T, addr, request string) string {
	t.Helper()
	resp, err := fetch(addr, request)
	require.NoError(t, err)
	return resp
}

// fetch is get without the testing.T, for use off the test goroutine.
func fetch(addr, request string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return "", err
	}
	if _, err := conn.Write([]byte(request)); err != nil {
		return "", err
	}
	resp, err := io.ReadAll(conn)
	return string(resp), err
}

func waitServe(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

func TestServer_ServesThroughPool(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.NewMetrics()
	pool, err := worker.NewPool(3, worker.WithMetrics(m))
	require.NoError(t, err)
	defer pool.Close()

	_, addr, _ := startServer(t, cfg, pool, server.WithMetrics(m))

	assert.Equal(t, expectedResponse(server.StatusOK, helloPage),
		get(t, addr, "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"))
	assert.Equal(t, expectedResponse(server.StatusNotFound, notFoundPage),
		get(t, addr, "GET /nope HTTP/1.1\r\n\r\n"))

	pool.Shutdown()
	s := m.Snapshot()
	assert.EqualValues(t, 2, s.Submitted)
	assert.EqualValues(t, 2, s.Completed)
	assert.EqualValues(t, 1, s.Responses2xx)
	assert.EqualValues(t, 1, s.Responses4xx)
}

func TestServer_ConcurrentClients(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxConnections = 4
	pool, err := worker.NewPool(2)
	require.NoError(t, err)
	defer pool.Close()

	_, addr, _ := startServer(t, cfg, pool)

	want := expectedResponse(server.StatusOK, helloPage)
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := fetch(addr, "GET / HTTP/1.1\r\n\r\n")
			if assert.NoError(t, err) {
				assert.Equal(t, want, resp)
			}
		}()
	}
	wg.Wait()
}

func TestServer_StopsWhenPoolIsShutDown(t *testing.T) {
	cfg := testConfig(t)
	pool, err := worker.NewPool(1)
	require.NoError(t, err)
	_, addr, errc := startServer(t, cfg, pool)

	pool.Shutdown()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	assert.ErrorIs(t, waitServe(t, errc), worker.ErrPoolClosed)

	// The rejected connection is closed without a response.
	resp, _ := io.ReadAll(conn)
	assert.Empty(t, resp)
}

type failingSubmitter struct {
	mu    sync.Mutex
	calls int
}

func (f *failingSubmitter) Submit(worker.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return errors.New("transient")
}

func TestServer_OtherSubmitErrorsKeepAccepting(t *testing.T) {
	sub := &failingSubmitter{}
	srv, addr, errc := startServer(t, testConfig(t), sub)

	for range 3 {
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		require.NoError(t, err)
		require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
		resp, _ := io.ReadAll(conn)
		assert.Empty(t, resp)
		conn.Close()
	}

	require.NoError(t, srv.Close())
	assert.ErrorIs(t, waitServe(t, errc), server.ErrServerClosed)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, 3, sub.calls)
}

func TestServer_CloseBeforeServe(t *testing.T) {
	srv := server.New(testConfig(t), &failingSubmitter{})
	require.NoError(t, srv.Close())

	ln, err := srv.Listen()
	require.NoError(t, err)
	assert.ErrorIs(t, srv.Serve(ln), server.ErrServerClosed)
	assert.Nil(t, srv.Addr())
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// scriptedListener replays a fixed sequence of Accept results, then reports
// itself closed.
type scriptedListener struct {
	mu      sync.Mutex
	results []acceptResult
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.results) == 0 {
		return nil, net.ErrClosed
	}
	r := l.results[0]
	l.results = l.results[1:]
	return r.conn, r.err
}

func (l *scriptedListener) Close() error { return nil }

func (l *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

type tempError struct{}

func (tempError) Error() string   { return "too many open files" }
func (tempError) Timeout() bool   { return false }
func (tempError) Temporary() bool { return true }

func TestServer_RetriesTemporaryAcceptErrors(t *testing.T) {
	client, conn := net.Pipe()
	defer client.Close()

	ln := &scriptedListener{results: []acceptResult{
		{err: tempError{}},
		{err: &net.OpError{Op: "accept", Net: "tcp", Err: tempError{}}},
		{conn: conn},
	}}
	sub := &failingSubmitter{}
	srv := server.New(testConfig(t), sub)

	assert.NoError(t, srv.Serve(ln))
	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, 1, sub.calls, "the connection after the temporary errors must be submitted")
}

func TestServer_PermanentAcceptErrorStopsServe(t *testing.T) {
	ln := &scriptedListener{results: []acceptResult{
		{err: errors.New("permanent")},
	}}
	sub := &failingSubmitter{}
	srv := server.New(testConfig(t), sub)

	err := srv.Serve(ln)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permanent")
	assert.Zero(t, sub.calls)
}

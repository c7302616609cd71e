package server_test

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firasghr/GoPoolServer/config"
	"github.com/firasghr/GoPoolServer/logger"
	"github.com/firasghr/GoPoolServer/metrics"
	"github.com/firasghr/GoPoolServer/server"
)

const (
	helloPage    = "<html><body>Hello!</body></html>\n"
	notFoundPage = "<html><body>Oops!</body></html>\n"
)

// testConfig returns a config whose document root holds both pages.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "hello.html"), []byte(helloPage), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "404.html"), []byte(notFoundPage), 0o600))

	cfg := config.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.DocumentRoot = root
	cfg.ReadTimeout = 2 * time.Second
	return cfg
}

func expectedResponse(status, body string) string {
	var buf bytes.Buffer
	_ = server.WriteResponse(&buf, status, []byte(body))
	return buf.String()
}

func TestWriteResponse_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, server.WriteResponse(&buf, server.StatusOK, []byte("hi")))
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi", buf.String())

	buf.Reset()
	require.NoError(t, server.WriteResponse(&buf, server.StatusServerError, nil))
	assert.Equal(t, "HTTP/1.1 500 INTERNAL SERVER ERROR\r\nContent-Length: 0\r\n\r\n", buf.String())
}

func TestHandler_Route(t *testing.T) {
	h := server.NewHandler(config.DefaultConfig(), logger.Discard(), metrics.NewMetrics())

	cases := []struct {
		request    string
		wantStatus string
		wantFile   string
	}{
		{"GET / HTTP/1.1\r\nHost: localhost\r\n\r\n", server.StatusOK, "hello.html"},
		{"GET / HTTP/1.1\r\n", server.StatusOK, "hello.html"},
		{"GET /other HTTP/1.1\r\n\r\n", server.StatusNotFound, "404.html"},
		{"POST / HTTP/1.1\r\n\r\n", server.StatusNotFound, "404.html"},
		{"GET / HTTP/1.0\r\n\r\n", server.StatusNotFound, "404.html"},
		{"", server.StatusNotFound, "404.html"},
	}
	for _, tc := range cases {
		status, file := h.Route([]byte(tc.request))
		assert.Equal(t, tc.wantStatus, status, "request %q", tc.request)
		assert.Equal(t, tc.wantFile, file, "request %q", tc.request)
	}
}

// roundTrip runs ServeConn against one end of a pipe and returns what the
// client end received.
func roundTrip(t *testing.T, h *server.Handler, request string) string {
	t.Helper()
	client, srv := net.Pipe()
	go h.ServeConn("test", srv)

	require.NoError(t, client.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := client.Write([]byte(request))
	require.NoError(t, err)
	resp, err := io.ReadAll(client)
	require.NoError(t, err)
	client.Close()
	return string(resp)
}

func TestHandler_ServeConn(t *testing.T) {
	cfg := testConfig(t)
	m := metrics.NewMetrics()
	h := server.NewHandler(cfg, logger.Discard(), m)

	assert.Equal(t, expectedResponse(server.StatusOK, helloPage),
		roundTrip(t, h, "GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	assert.Equal(t, expectedResponse(server.StatusNotFound, notFoundPage),
		roundTrip(t, h, "GET /missing HTTP/1.1\r\n\r\n"))

	s := m.Snapshot()
	assert.EqualValues(t, 1, s.Responses2xx)
	assert.EqualValues(t, 1, s.Responses4xx)
}

func TestHandler_MissingPageIsServerError(t *testing.T) {
	cfg := testConfig(t)
	cfg.IndexFile = "does-not-exist.html"
	m := metrics.NewMetrics()
	h := server.NewHandler(cfg, logger.Discard(), m)

	assert.Equal(t, expectedResponse(server.StatusServerError, ""),
		roundTrip(t, h, "GET / HTTP/1.1\r\n\r\n"))
	assert.EqualValues(t, 1, m.Snapshot().Responses5xx)
}

func TestHandler_ClientHangsUpWithoutRequest(t *testing.T) {
	h := server.NewHandler(testConfig(t), logger.Discard(), metrics.NewMetrics())
	client, srv := net.Pipe()

	done := make(chan struct{})
	go func() {
		h.ServeConn("hangup", srv)
		close(done)
	}()
	client.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return after client hang-up")
	}
}

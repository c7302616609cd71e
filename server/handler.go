package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/firasghr/GoPoolServer/config"
	"github.com/firasghr/GoPoolServer/logger"
	"github.com/firasghr/GoPoolServer/metrics"
)

// Status lines written by the handler.
const (
	StatusOK          = "HTTP/1.1 200 OK"
	StatusNotFound    = "HTTP/1.1 404 NOT FOUND"
	StatusServerError = "HTTP/1.1 500 INTERNAL SERVER ERROR"
)

// Handler serves exactly one request per connection: one read, a literal
// prefix match, one file read, one write.  It is not an HTTP implementation.
type Handler struct {
	root         string
	indexFile    string
	notFoundFile string
	bufSize      int
	readTimeout  time.Duration
	log          *logger.Logger
	stats        *metrics.Metrics
}

// NewHandler builds a Handler from cfg.
func NewHandler(cfg *config.Config, log *logger.Logger, stats *metrics.Metrics) *Handler {
	return &Handler{
		root:         cfg.DocumentRoot,
		indexFile:    cfg.IndexFile,
		notFoundFile: cfg.NotFoundFile,
		bufSize:      cfg.ReadBufferSize,
		readTimeout:  cfg.ReadTimeout,
		log:          log,
		stats:        stats,
	}
}

// Route picks the status line and page for the bytes read from a
// connection.
func (h *Handler) Route(request []byte) (status, file string) {
	if bytes.HasPrefix(request, []byte(config.RequestPrefix)) {
		return StatusOK, h.indexFile
	}
	return StatusNotFound, h.notFoundFile
}

// ServeConn handles conn and closes it.  id tags the log lines.
func (h *Handler) ServeConn(id string, conn net.Conn) {
	defer conn.Close()

	if h.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			h.log.Warnf("connection %s: set deadline: %v", id, err)
		}
	}

	buf := make([]byte, h.bufSize)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		if !errors.Is(err, io.EOF) {
			h.log.Warnf("connection %s: read: %v", id, err)
		}
		return
	}

	status, file := h.Route(buf[:n])
	body, err := os.ReadFile(filepath.Join(h.root, file))
	if err != nil {
		h.log.Errorf("connection %s: read %s: %v", id, file, err)
		status, body = StatusServerError, nil
	}

	if err := WriteResponse(conn, status, body); err != nil {
		h.log.Warnf("connection %s: write: %v", id, err)
		return
	}
	h.stats.ObserveResponse(statusCode(status))
	h.log.Debugf("connection %s: %s (%d bytes) from %s", id, status, len(body), conn.RemoteAddr())
}

// WriteResponse writes "<status>\r\nContent-Length: <n>\r\n\r\n<body>" in a
// single call.
func WriteResponse(w io.Writer, status string, body []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(status) + len(body) + 32)
	fmt.Fprintf(&buf, "%s\r\nContent-Length: %d\r\n\r\n", status, len(body))
	buf.Write(body)
	_, err := w.Write(buf.Bytes())
	return err
}

func statusCode(status string) int {
	switch status {
	case StatusOK:
		return 200
	case StatusNotFound:
		return 404
	default:
		return 500
	}
}

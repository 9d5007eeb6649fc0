package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	residentHost = "127.0.0.1"

	// The resident binds the first port; clients probe the whole range.
	envPortStart     = "SCREENSHOTR_PORT_START"
	envPortEnd       = "SCREENSHOTR_PORT_END"
	defaultPortStart = 49600
	defaultPortEnd   = 49650
	minPort          = 1024
	maxPort          = 65535

	pingRequest  = "PING screenshotr\n"
	pongResponse = "PONG screenshotr\n"

	requestStdout    = "CAPTURE STDOUT\n"
	requestClipboard = "CAPTURE CLIPBOARD\n"

	statusSuccess   = "SUCCESS\n"
	statusError     = "ERROR\n"
	statusCancelled = "CANCELLED\n"
)

// portRange is an inclusive block of loopback ports.
type portRange struct{ first, last int }

func (r portRange) String() string { return fmt.Sprintf("%d-%d", r.first, r.last) }

// residentPorts reads the range from the environment. Both ends are clamped
// to unprivileged ports and a reversed range is swapped.
func residentPorts() portRange {
	r := portRange{
		first: envPort(envPortStart, defaultPortStart),
		last:  envPort(envPortEnd, defaultPortEnd),
	}
	if r.last < r.first {
		r.first, r.last = r.last, r.first
	}
	return r
}

func envPort(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("singleinstance: ignoring %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return min(max(n, minPort), maxPort)
}

// PortRange exposes the effective port range for logging.
func PortRange() (int, int) {
	r := residentPorts()
	return r.first, r.last
}

// tcpServer implements Server over TCP loopback.
type tcpServer struct {
	mu       sync.Mutex
	lis      net.Listener
	incoming chan *tcpConn
	done     chan struct{}
	port     int
}

func newTCPServer() *tcpServer {
	return &tcpServer{incoming: make(chan *tcpConn, 8), done: make(chan struct{})}
}

// Start binds ONLY the start port of the configured range. If occupied, fail.
func (s *tcpServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lis != nil {
		return nil
	}
	ports := residentPorts()
	addr := net.JoinHostPort(residentHost, strconv.Itoa(ports.first))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Printf("singleinstance: failed to bind %s (range %s): %v", addr, ports, err)
		return err
	}
	s.lis = lis
	s.port = lis.Addr().(*net.TCPAddr).Port
	log.Printf("singleinstance: listening on %s", lis.Addr())
	go s.acceptLoop(ctx, lis)
	return nil
}

// Port returns the bound port (0 if not started).
func (s *tcpServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *tcpServer) acceptLoop(ctx context.Context, lis net.Listener) {
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		go s.handshake(ctx, c)
	}
}

// handshake reads the first line: PING is answered inline, a CAPTURE request
// is queued for the event loop, anything else is dropped.
func (s *tcpServer) handshake(ctx context.Context, c net.Conn) {
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(3 * time.Second))
	br := bufio.NewReader(c)
	line, _ := br.ReadString('\n')
	bw := bufio.NewWriter(c)

	switch line {
	case pingRequest:
		log.Printf("singleinstance: PING from %s -> PONG", remote)
		_, _ = bw.WriteString(pongResponse)
		_ = bw.Flush()
		_ = c.Close()
		return
	case requestStdout, requestClipboard:
	default:
		log.Printf("singleinstance: unknown request from %s, closing", remote)
		_ = c.Close()
		return
	}

	_ = c.SetDeadline(time.Time{})
	stdout := line == requestStdout
	log.Printf("singleinstance: request from %s stdout=%v", remote, stdout)
	tc := &tcpConn{c: c, r: Request{OutputToStdout: stdout}, w: bw}
	select {
	case s.incoming <- tc:
	case <-s.done:
		_ = c.Close()
	case <-ctx.Done():
		_ = c.Close()
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, io.EOF
	case tc := <-s.incoming:
		return tc, nil
	}
}

func (s *tcpServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	if s.lis != nil {
		_ = s.lis.Close()
		s.lis = nil
	}
	return nil
}

type tcpConn struct {
	c net.Conn
	r Request
	w *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.r }

func (tc *tcpConn) RespondSuccess(url string) error {
	return tc.respond(statusSuccess, url)
}

func (tc *tcpConn) RespondError(msg string) error {
	return tc.respond(statusError, msg)
}

func (tc *tcpConn) RespondCancelled() error {
	return tc.respond(statusCancelled, "")
}

func (tc *tcpConn) respond(status, payload string) error {
	if _, err := tc.w.WriteString(status + payload); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }

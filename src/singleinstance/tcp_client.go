package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"
)

type tcpClient struct{}

func newTCPClient() *tcpClient { return &tcpClient{} }

func (c *tcpClient) TryRunOnce(ctx context.Context, outputToStdout bool) (bool, string, error) {
	dialTimeout := probeTimeout(ctx, 2*time.Second)
	port, ok := findResident(ctx, dialTimeout)
	if !ok {
		return false, "", nil
	}
	addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
	url, err := delegate(ctx, addr, dialTimeout, outputToStdout)
	return true, url, err
}

// DetectResidentPort reports the port of a running resident, if any.
func DetectResidentPort(ctx context.Context) (int, bool) {
	return findResident(ctx, probeTimeout(ctx, 300*time.Millisecond))
}

// probeTimeout is fallback, shortened to what is left of ctx.
func probeTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < fallback {
			return d
		}
	}
	return fallback
}

// findResident returns the first port in the range that answers PING with
// our PONG. Other listeners in the range are skipped.
func findResident(ctx context.Context, timeout time.Duration) (int, bool) {
	ports := residentPorts()
	for port := ports.first; port <= ports.last; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		if ping(net.JoinHostPort(residentHost, strconv.Itoa(port)), timeout) {
			return port, true
		}
	}
	return 0, false
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := io.WriteString(conn, pingRequest); err != nil {
		return false
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && reply == pongResponse
}

// delegate sends one CAPTURE request and waits, without a deadline unless ctx
// has one, for the user to finish on the resident.
func delegate(ctx context.Context, addr string, dialTimeout time.Duration, outputToStdout bool) (string, error) {
	var d net.Dialer
	d.Timeout = dialTimeout
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	req := requestClipboard
	if outputToStdout {
		req = requestStdout
	}
	if _, err := io.WriteString(conn, req); err != nil {
		return "", err
	}

	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("resident closed the connection: %w", err)
	}
	payload, _ := io.ReadAll(br)
	switch status {
	case statusSuccess:
		return string(payload), nil
	case statusCancelled:
		return "", ErrCancelled
	case statusError:
		return "", errors.New(string(payload))
	default:
		return "", fmt.Errorf("unexpected resident reply %q", status)
	}
}

package singleinstance

// This file defines the API for single-instance ownership and run-once delegation.

import (
	"context"
	"errors"
)

// ErrCancelled is returned to a delegating client when the user aborted or
// discarded the selection on the resident.
var ErrCancelled = errors.New("capture cancelled")

// Server owns the TCP endpoint and answers run-once requests.
type Server interface {
	// Start binds the first port of the configured range and accepts clients.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	Request() Request
	// RespondSuccess sends the uploaded URL.
	RespondSuccess(url string) error
	// RespondError sends an error with human-readable message.
	RespondError(msg string) error
	// RespondCancelled tells the client nothing was uploaded on purpose.
	RespondCancelled() error
	Close() error
}

// Request represents a single run-once client request.
type Request struct {
	OutputToStdout bool
}

// Client attempts to delegate run-once invocation to a resident server.
type Client interface {
	// TryRunOnce scans the port range, performs the handshake and delegates
	// one capture. If no resident is found, returns delegated=false, err=nil.
	TryRunOnce(ctx context.Context, outputToStdout bool) (delegated bool, url string, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTCPServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTCPClient() }

package singleinstance

// Single-instance ownership and command delegation to the resident process.

import (
	"context"
	"strings"
)

type Command string

const (
	CmdStart Command = "START"
	CmdStop  Command = "STOP"
)

// Server owns the TCP endpoint and answers delegated commands.
type Server interface {
	// Start listens on the first port of the configured range.
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
	RespondSuccess(text string) error
	RespondError(msg string) error
	Close() error
}

type Request struct {
	Command Command
}

// Client delegates a command to a resident server.
type Client interface {
	// Send scans the port range for a resident and delivers cmd. When no
	// resident answers it returns delegated=false and a nil error.
	Send(ctx context.Context, cmd Command) (delegated bool, text string, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }

func parseCommand(line string) (Command, bool) {
	switch c := Command(strings.ToUpper(strings.TrimSpace(line))); c {
	case CmdStart, CmdStop:
		return c, true
	default:
		return "", false
	}
}

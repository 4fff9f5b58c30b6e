// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"crypto/tls"
	"errors"
	"time"
)

var (
	ErrConnection = errors.New("connection failed")
	ErrTimeout    = errors.New("operation timed out")
)

// Processor function passed to the Socket.Command function.
// It is passed by the caller to process a command's response
// line by line. Returning false ends the response, e.g. on a
// terminator line.
type Processor func([]byte) bool

// Client is the interface that wraps the basic socket client operations
// and hides the implementation details from the users.
//
// Connect should prepare the connection.
//
// Disconnect should stop any in-flight connections.
//
// Command should send the actual data to the wire and pass
// any results to the processor function.
//
// Implementations should return TCP, UDP or Unix ready sockets.
type Client interface {
	Connect() error
	Disconnect() error
	Command(command string, process Processor) error
}

// Config holds the address (tcp://host:port, udp://host:port, unix:///path or a bare
// path), the timeouts, the TLS configuration and the retry policy of a Socket.
// A zero timeout means one second.
type Config struct {
	Address        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TLSConf        *tls.Config
	// MaxRetries is the number of reconnects after a failure on a reused connection.
	MaxRetries   int
	RetryBackoff time.Duration
}

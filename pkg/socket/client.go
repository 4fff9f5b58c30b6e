// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"bufio"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"
)

// ConnectAndRead connects and passes whatever the peer sends first to process.
func ConnectAndRead(cfg Config, process Processor) error {
	sock := New(cfg)

	if err := sock.Connect(); err != nil {
		return err
	}

	defer func() { _ = sock.Disconnect() }()

	_, err := sock.read(process)
	return err
}

// New returns a new pointer to a socket client given the socket
// type (IP, TCP, UDP, UNIX), a network address (IP/domain:port),
// timeouts and a TLS config. It supports both IPv4 and IPv6 address
// and reuses connection where possible.
func New(cfg Config) *Socket {
	return &Socket{Config: cfg}
}

// Socket is the implementation of a socket client.
type Socket struct {
	Config
	conn net.Conn
	// fresh is set until the first command completed on conn.
	fresh bool
}

// Connect connects to the Socket address on the named network.
// If the address is a domain name it will also perform the DNS resolution.
// Address like :80 will attempt to connect to the localhost.
// The config timeout and TLS config will be used.
func (s *Socket) Connect() error {
	network, address := parseAddress(s.Address)

	var conn net.Conn
	var err error

	d := net.Dialer{Timeout: orDefault(s.ConnectTimeout)}
	if s.TLSConf == nil {
		conn, err = d.Dial(network, address)
	} else {
		conn, err = tls.DialWithDialer(&d, network, address, s.TLSConf)
	}
	if err != nil {
		return classify("connect to "+s.Address, err)
	}

	s.conn = conn
	s.fresh = true
	return nil
}

// Disconnect closes the connection.
// Any in-flight commands will be cancelled and return errors.
func (s *Socket) Disconnect() (err error) {
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	return err
}

// Command writes the command string to the connection and passes the
// response bytes line by line to the process function. It connects
// first if needed. A write failure, or a read failure before the first
// response line, on a reused connection is taken as a stale connection:
// the socket reconnects and retries up to MaxRetries times.
func (s *Socket) Command(command string, process Processor) error {
	if process == nil {
		return errors.New("process func is nil")
	}

	for attempt := 0; ; attempt++ {
		if s.conn == nil {
			if err := s.Connect(); err != nil {
				return err
			}
		}
		reused := !s.fresh

		lines, err := s.command(command, process)
		if err == nil {
			s.fresh = false
			return nil
		}

		_ = s.Disconnect()
		if !reused || lines > 0 || attempt >= s.MaxRetries {
			return err
		}
		if s.RetryBackoff > 0 {
			time.Sleep(s.RetryBackoff)
		}
	}
}

func (s *Socket) command(command string, process Processor) (int, error) {
	if err := s.write(command); err != nil {
		return 0, err
	}
	return s.read(process)
}

func (s *Socket) write(command string) error {
	if s.conn == nil {
		return errors.New("attempt to write on nil connection")
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(orDefault(s.WriteTimeout))); err != nil {
		return classify("write", err)
	}

	_, err := s.conn.Write([]byte(command))
	return classify("write", err)
}

// read feeds lines to process until it returns false, EOF or the read deadline.
// A connection closed before any line arrived is reported as an error.
func (s *Socket) read(process Processor) (int, error) {
	if process == nil {
		return 0, errors.New("process func is nil")
	}
	if s.conn == nil {
		return 0, errors.New("attempt to read on nil connection")
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(orDefault(s.ReadTimeout))); err != nil {
		return 0, classify("read", err)
	}

	var lines int
	sc := bufio.NewScanner(s.conn)
	for sc.Scan() {
		lines++
		if !process(sc.Bytes()) {
			return lines, nil
		}
	}
	if err := sc.Err(); err != nil {
		return lines, classify("read", err)
	}
	if lines == 0 {
		return 0, classify("read", io.EOF)
	}
	return lines, nil
}

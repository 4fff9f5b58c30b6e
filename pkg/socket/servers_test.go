// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"bufio"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// lineServer answers every request line with response. With oneShot it closes
// the connection after the first answer.
type lineServer struct {
	listener net.Listener
	response string
	oneShot  bool
	silent   bool
	accepted atomic.Int32
	wg       sync.WaitGroup
}

type serverOption func(*lineServer)

func oneShot(s *lineServer) { s.oneShot = true }
func silent(s *lineServer)  { s.silent = true }

func newStreamServer(t *testing.T, network, address string, response string, opts ...serverOption) *lineServer {
	t.Helper()
	ln, err := net.Listen(network, address)
	require.NoError(t, err)

	srv := &lineServer{listener: ln, response: response}
	for _, opt := range opts {
		opt(srv)
	}
	srv.wg.Add(1)
	go srv.serve()
	t.Cleanup(srv.close)
	return srv
}

func newTCPServer(t *testing.T, response string, opts ...serverOption) *lineServer {
	return newStreamServer(t, "tcp", "127.0.0.1:0", response, opts...)
}

func newUnixServer(t *testing.T, response string) (*lineServer, string) {
	path := filepath.Join(t.TempDir(), "test.sock")
	return newStreamServer(t, "unix", path, response), path
}

func (s *lineServer) address() string { return "tcp://" + s.listener.Addr().String() }

func (s *lineServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *lineServer) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	for {
		if _, err := rw.ReadString('\n'); err != nil {
			return
		}
		if s.silent {
			continue
		}
		_, _ = rw.WriteString(s.response)
		_ = rw.Flush()
		if s.oneShot {
			return
		}
	}
}

func (s *lineServer) close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

type udpServer struct {
	conn *net.UDPConn
	done chan struct{}
}

func newUDPServer(t *testing.T) *udpServer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	srv := &udpServer{conn: conn, done: make(chan struct{})}
	go srv.serve()
	t.Cleanup(func() {
		_ = srv.conn.Close()
		<-srv.done
	})
	return srv
}

func (u *udpServer) address() string { return "udp://" + u.conn.LocalAddr().String() }

func (u *udpServer) serve() {
	defer close(u.done)
	buffer := make([]byte, 8192)
	for {
		n, addr, err := u.conn.ReadFromUDP(buffer)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
				return
			}
			continue
		}
		if strings.TrimSpace(string(buffer[:n])) == "ping" {
			_, _ = u.conn.WriteToUDP([]byte("pong\n"), addr)
		}
	}
}

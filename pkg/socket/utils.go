// SPDX-License-Identifier: GPL-3.0-or-later

package socket

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

func IsUnixSocket(address string) bool {
	return strings.HasPrefix(address, "/") || strings.HasPrefix(address, "unix://")
}

func IsUdpSocket(address string) bool {
	return strings.HasPrefix(address, "udp://")
}

func parseAddress(address string) (string, string) {
	switch {
	case IsUnixSocket(address):
		address = strings.TrimPrefix(address, "unix://")
		return "unix", address
	case IsUdpSocket(address):
		return "udp", strings.TrimPrefix(address, "udp://")
	default:
		return "tcp", strings.TrimPrefix(address, "tcp://")
	}
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	return d
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrConnection, err)
}

//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package pool

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// Reservation holds the shared port for the lifetime of the pool.
type Reservation struct {
	fd   int
	Port int
}

// ReservePort binds host:port with SO_REUSEPORT without listening on it.
// Port 0 picks a free port.
func ReservePort(host string, port int) (*Reservation, error) {
	ip, err := resolveHost(host)
	if err != nil {
		return nil, err
	}
	family := unix.AF_INET6
	if ip.To4() != nil {
		family = unix.AF_INET
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("reserve socket: %w", err)
	}
	unix.CloseOnExec(fd)
	fail := func(op string, err error) (*Reservation, error) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("reserve %s: %w", op, err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return fail("SO_REUSEPORT", err)
	}
	var sa unix.Sockaddr
	if family == unix.AF_INET6 {
		// Dual stack, matching what net.Listen does for "[::]".
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			return fail("IPV6_V6ONLY", err)
		}
		sa6 := &unix.SockaddrInet6{Port: port}
		copy(sa6.Addr[:], ip.To16())
		sa = sa6
	} else {
		sa4 := &unix.SockaddrInet4{Port: port}
		copy(sa4.Addr[:], ip.To4())
		sa = sa4
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	switch a := bound.(type) {
	case *unix.SockaddrInet6:
		port = a.Port
	case *unix.SockaddrInet4:
		port = a.Port
	}
	return &Reservation{fd: fd, Port: port}, nil
}

// Close releases the reservation. Workers already bound keep the port.
func (r *Reservation) Close() error {
	if r == nil || r.fd < 0 {
		return nil
	}
	err := unix.Close(r.fd)
	r.fd = -1
	return err
}

// Listen opens a listener on host:port with SO_REUSEPORT set so that every
// worker of the pool can bind the same port.
func Listen(ctx context.Context, host string, port int) (net.Listener, error) {
	ip, err := resolveHost(host)
	if err != nil {
		return nil, err
	}
	// Go would open a dual-stack socket for 0.0.0.0; stay in the reserved family.
	network := "tcp"
	if ip.To4() != nil {
		network = "tcp4"
	}
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var serr error
			err := c.Control(func(fd uintptr) {
				serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
			})
			if err != nil {
				return err
			}
			return serr
		},
	}
	return lc.Listen(ctx, network, net.JoinHostPort(ip.String(), strconv.Itoa(port)))
}

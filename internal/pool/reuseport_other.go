//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package pool

import (
	"context"
	"errors"
	"net"
)

var errNoReusePort = errors.New("port sharing (SO_REUSEPORT) is not supported on this platform")

type Reservation struct{ Port int }

func ReservePort(string, int) (*Reservation, error) { return nil, errNoReusePort }

func (r *Reservation) Close() error { return nil }

func Listen(context.Context, string, int) (net.Listener, error) { return nil, errNoReusePort }

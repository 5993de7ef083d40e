//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package pool

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReservePort_SharedByListeners(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "::"} {
		t.Run(host, func(t *testing.T) {
			res, err := ReservePort(host, 0)
			if err != nil && host == "::" {
				t.Skipf("no IPv6: %v", err)
			}
			require.NoError(t, err)
			defer res.Close()
			require.NotZero(t, res.Port)

			var listeners []net.Listener
			for i := 0; i < 3; i++ {
				l, err := Listen(context.Background(), host, res.Port)
				require.NoError(t, err, "listener %d", i)
				listeners = append(listeners, l)
			}
			defer func() {
				for _, l := range listeners {
					_ = l.Close()
				}
			}()

			accepted := make(chan struct{}, 3)
			for _, l := range listeners {
				go func(l net.Listener) {
					c, err := l.Accept()
					if err == nil {
						_ = c.Close()
						accepted <- struct{}{}
					}
				}(l)
			}
			c, err := net.DialTimeout("tcp", net.JoinHostPort(DialHost(host), strconv.Itoa(res.Port)), time.Second)
			require.NoError(t, err)
			_ = c.Close()
			select {
			case <-accepted:
			case <-time.After(2 * time.Second):
				t.Fatal("no listener accepted the connection")
			}
		})
	}
}

func TestReservePort_NotListening(t *testing.T) {
	res, err := ReservePort("127.0.0.1", 0)
	require.NoError(t, err)
	defer res.Close()
	_, err = net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(res.Port)), time.Second)
	assert.Error(t, err, "the reservation alone must refuse connections")
}

func TestDialHost(t *testing.T) {
	assert.Equal(t, "localhost", DialHost("::"))
	assert.Equal(t, "localhost", DialHost(""))
	assert.Equal(t, "localhost", DialHost("0.0.0.0"))
	assert.Equal(t, "10.0.0.1", DialHost("10.0.0.1"))
}

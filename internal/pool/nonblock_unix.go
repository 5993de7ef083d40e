//go:build unix

package pool

import "golang.org/x/sys/unix"

// setNonblock makes an inherited descriptor pollable so reads honor deadlines.
func setNonblock(fd int) error { return unix.SetNonblock(fd, true) }

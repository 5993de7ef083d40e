//go:build !unix

package pool

func setNonblock(int) error { return nil }

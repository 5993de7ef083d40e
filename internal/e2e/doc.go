// Package e2e drives an in-process worker pool through the real client.
// Workers share one SO_REUSEPORT port exactly as the process pool does and
// report synthetic pids, so discovery and round-robin are exercised end to end.
package e2e

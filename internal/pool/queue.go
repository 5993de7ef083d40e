package pool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// SignalQueue is the pool-wide shutdown channel. Put enqueues n signals; each
// Get consumes exactly one, blocking until one is available or ctx is done.
type SignalQueue interface {
	Put(n int) error
	Get(ctx context.Context) error
}

// Descriptor numbers of the queue ends in a worker process (after stdio).
const (
	queueReadFD  = 3
	queueWriteFD = 4
)

// PipeQueue is a SignalQueue shared across processes: one byte in an OS pipe
// per signal. Every worker inherits both ends, so any of them can produce and
// each read of one byte hands the signal to exactly one reader.
type PipeQueue struct {
	r, w *os.File
}

// NewPipeQueue creates the queue in the owner.
func NewPipeQueue() (*PipeQueue, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("shutdown pipe: %w", err)
	}
	return &PipeQueue{r: r, w: w}, nil
}

// ExtraFiles returns the ends in the order a worker expects them
// (exec.Cmd.ExtraFiles puts them at descriptors 3 and 4).
func (q *PipeQueue) ExtraFiles() []*os.File { return []*os.File{q.r, q.w} }

// InheritedPipeQueue opens the queue passed to this worker process.
func InheritedPipeQueue() (*PipeQueue, error) {
	if err := setNonblock(queueReadFD); err != nil {
		return nil, fmt.Errorf("shutdown pipe not inherited: %w", err)
	}
	r := os.NewFile(queueReadFD, "shutdown-r")
	w := os.NewFile(queueWriteFD, "shutdown-w")
	if r == nil || w == nil {
		return nil, errors.New("shutdown pipe not inherited")
	}
	return &PipeQueue{r: r, w: w}, nil
}

func (q *PipeQueue) Put(n int) error {
	if n <= 0 {
		return nil
	}
	_, err := q.w.Write(make([]byte, n))
	return err
}

func (q *PipeQueue) Get(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = q.r.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		// Wake the blocked read.
		_ = q.r.SetReadDeadline(time.Now())
	})
	defer stop()
	var b [1]byte
	for {
		n, err := q.r.Read(b[:])
		if n == 1 {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// Another consumer's cancellation; keep waiting.
			_ = q.r.SetReadDeadline(time.Time{})
			continue
		}
		if err != nil {
			return err
		}
	}
}

func (q *PipeQueue) Close() error {
	return errors.Join(q.r.Close(), q.w.Close())
}

// MemQueue is a SignalQueue for workers running as goroutines of one process.
type MemQueue struct {
	mu      sync.Mutex
	pending int
	ch      chan struct{}
}

func NewMemQueue() *MemQueue {
	return &MemQueue{ch: make(chan struct{})}
}

func (q *MemQueue) Put(n int) error {
	if n <= 0 {
		return nil
	}
	q.mu.Lock()
	q.pending += n
	close(q.ch)
	q.ch = make(chan struct{})
	q.mu.Unlock()
	return nil
}

func (q *MemQueue) Get(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.pending > 0 {
			q.pending--
			q.mu.Unlock()
			return nil
		}
		wait := q.ch
		q.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of unconsumed signals.
func (q *MemQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending
}

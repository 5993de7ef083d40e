package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testQueue(t *testing.T, q SignalQueue) {
	t.Helper()
	require.NoError(t, q.Put(2))
	require.NoError(t, q.Get(context.Background()))
	require.NoError(t, q.Get(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Get(ctx), context.DeadlineExceeded)

	// Each consumer takes exactly one signal.
	const consumers = 5
	var wg sync.WaitGroup
	got := make(chan struct{}, consumers+1)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if q.Get(context.Background()) == nil {
				got <- struct{}{}
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put(consumers))
	wg.Wait()
	assert.Len(t, got, consumers)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel2()
	assert.Error(t, q.Get(ctx2), "no signal may be left over")
}

func TestMemQueue(t *testing.T) {
	q := NewMemQueue()
	testQueue(t, q)
	assert.Equal(t, 0, q.Pending())
	require.NoError(t, q.Put(0))
	assert.Equal(t, 0, q.Pending())
}

func TestPipeQueue(t *testing.T) {
	q, err := NewPipeQueue()
	require.NoError(t, err)
	defer q.Close()
	testQueue(t, q)
	assert.Len(t, q.ExtraFiles(), 2)
}

package registry

import "context"

// slot is a model's execution lock: a channel with room for exactly one
// in-flight call. Waiting can be abandoned through ctx; holding cannot.
type slot chan struct{}

func newSlot() slot { return make(slot, 1) }

// acquire blocks until the slot is free or ctx is done.
// Returns a release func to be deferred.
func (s slot) acquire(ctx context.Context) (func(), error) {
	// Fast path: respect an already-canceled context
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

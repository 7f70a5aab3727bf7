package transport

import (
	"context"
	"sync"
)

// Future is a pending receive. It resolves exactly once, with either a
// payload or an error.
type Future struct {
	done    chan struct{}
	once    sync.Once
	data    []byte
	err     error
	release func()
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve reports whether this call settled the future
func (f *Future) resolve(data []byte, err error) bool {
	settled := false
	f.once.Do(func() {
		f.data, f.err = data, err
		close(f.done)
		settled = true
	})
	return settled
}

// Wait blocks until the payload arrives or ctx is done
func (f *Future) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		if f.release != nil {
			f.release()
		}
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the future resolves. Unlike Wait it leaves the
// mailbox slot in place.
func (f *Future) Done() <-chan struct{} { return f.done }

// Ready reports whether Wait would return without blocking
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

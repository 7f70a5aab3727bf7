package transport

import (
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// registry holds the mailboxes of transports that buffer deliveries
// themselves. A delivery may create the box before anyone listens.
type registry struct {
	kind  string
	boxes *xsync.Map[string, *namedBox]
	opts  options
}

type namedBox struct {
	*inbox
	listening atomic.Bool
}

func newRegistry(kind string, o options) registry {
	return registry{kind: kind, boxes: xsync.NewMap[string, *namedBox](), opts: o}
}

func (r registry) box(name string) *namedBox {
	b, _ := r.boxes.LoadOrCompute(name, func() (*namedBox, bool) {
		return &namedBox{inbox: newInbox(name, r.kind, r.opts)}, false
	})
	return b
}

func (r registry) listen(name string) (*namedBox, error) {
	b := r.box(name)
	if !b.listening.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyListening, name)
	}
	b.onClose = func() error {
		r.boxes.Delete(name)
		return nil
	}
	return b, nil
}

func (r registry) closeAll() {
	r.boxes.Range(func(_ string, b *namedBox) bool {
		_ = b.Close()
		return true
	})
}

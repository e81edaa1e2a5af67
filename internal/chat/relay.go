package chat

import (
	"context"
	"sync/atomic"
)

// relayState tracks the lifecycle of one streaming relay:
// idle -> streaming -> {done | failed}. Fragments are forwarded only while
// streaming, and there is no transition back once done or failed is reached.
type relayState int32

const (
	relayIdle relayState = iota
	relayStreaming
	relayDone
	relayFailed
)

const defaultStreamBuffer = 16

// relay is the bounded pipe between the upstream completion stream and the
// outbound sink. The producer pushes fragments, the consumer drains them in
// FIFO order, so delivery preserves arrival order one-to-one. The bounded
// buffer gives the pipeline backpressure: a slow sink eventually blocks the
// upstream reader instead of buffering without limit.
type relay struct {
	fragments chan string
	state     atomic.Int32
}

func newRelay(buffer int) *relay {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &relay{fragments: make(chan string, buffer)}
}

// push forwards one fragment. The first push moves the relay from idle to
// streaming. Returns false when the relay is already terminal or the context
// is canceled (caller disconnect).
func (r *relay) push(ctx context.Context, fragment string) bool {
	switch relayState(r.state.Load()) {
	case relayDone, relayFailed:
		return false
	case relayIdle:
		r.state.Store(int32(relayStreaming))
	}
	select {
	case r.fragments <- fragment:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish marks a clean upstream end-of-stream.
func (r *relay) finish() {
	r.state.Store(int32(relayDone))
}

// fail marks an upstream transport error; no terminal marker follows.
func (r *relay) fail() {
	r.state.Store(int32(relayFailed))
}

// closeInput closes the producer side so the consumer drains and exits.
func (r *relay) closeInput() {
	close(r.fragments)
}

func (r *relay) out() <-chan string {
	return r.fragments
}

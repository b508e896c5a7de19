// ABOUTME: Channel-based event streaming for chat completion responses
// ABOUTME: Bounded EventStream: one producer goroutine, backpressure via blocking Send

package ai

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the event buffer used when none is configured.
const DefaultBufferSize = 64

// EventStream provides channel-based access to streaming events.
// Consumers range over Events() and check Result() when done.
//
// Design: Send writes to an internal events channel that is never closed
// externally. Finish closes only the done channel. A drainer goroutine
// forwards events to the consumer-facing out channel, closing it when
// done fires and all buffered events are drained. This eliminates the
// send-on-closed-channel race between Send and Finish.
type EventStream struct {
	events chan Event // internal: producers write here via Send
	out    chan Event // external: consumers read via Events()
	done   chan struct{}
	result atomic.Pointer[Response]
	once   sync.Once
}

// NewEventStream creates a new EventStream with the given buffer size.
func NewEventStream(bufSize int) *EventStream {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	s := &EventStream{
		events: make(chan Event, bufSize),
		out:    make(chan Event, bufSize),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

// drain forwards events from the internal channel to the consumer channel.
// Closes out when done fires and all buffered events are forwarded.
func (s *EventStream) drain() {
	defer close(s.out)
	for {
		select {
		case ev := <-s.events:
			s.out <- ev
		case <-s.done:
			// Drain remaining buffered events.
			for {
				select {
				case ev := <-s.events:
					s.out <- ev
				default:
					return
				}
			}
		}
	}
}

// Events returns a read-only channel of stream events in source order.
// The channel is closed when the stream is complete.
func (s *EventStream) Events() <-chan Event {
	return s.out
}

// Send blocks until the event is buffered. Returns false if the stream is
// finished or ctx ends first.
func (s *EventStream) Send(ctx context.Context, event Event) bool {
	select {
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	default:
	}
	select {
	case s.events <- event:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Finish completes the stream with a final result. Only the first call has
// any effect. A nil resp is recorded as an empty completed Response.
func (s *EventStream) Finish(resp *Response) {
	s.once.Do(func() {
		if resp == nil {
			resp = &Response{}
		}
		s.result.Store(resp)
		close(s.done)
	})
}

// FinishWithError reports err once as an EventError and completes the
// stream as failed.
func (s *EventStream) FinishWithError(ctx context.Context, resp *Response, err error) {
	if resp == nil {
		resp = &Response{}
	}
	resp.Outcome = OutcomeFailed
	resp.Err = err
	s.Send(ctx, Event{Type: EventError, Err: err})
	s.Finish(resp)
}

// Cancel completes the stream as cancelled without emitting any event.
func (s *EventStream) Cancel(resp *Response) {
	if resp == nil {
		resp = &Response{}
	}
	resp.Outcome = OutcomeCancelled
	resp.Err = nil
	s.Finish(resp)
}

// Result blocks until the stream is complete and returns the final response.
func (s *EventStream) Result() *Response {
	<-s.done
	return s.result.Load()
}

// Done returns a channel that is closed when the stream completes.
func (s *EventStream) Done() <-chan struct{} {
	return s.done
}

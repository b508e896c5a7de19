// ABOUTME: Tests for EventStream send/receive, finish, cancel and done channel behavior
// ABOUTME: Validates channel-based streaming lifecycle, ordering and result retrieval

package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEventStreamSendAndReceive(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(10)

	sent := Event{Type: EventContent, Text: "hello"}
	if ok := stream.Send(context.Background(), sent); !ok {
		t.Fatal("Send returned false; expected true")
	}

	select {
	case got := <-stream.Events():
		if got.Type != sent.Type || got.Text != sent.Text {
			t.Errorf("got %+v, want %+v", got, sent)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventStreamPreservesOrder(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(2)
	go func() {
		for i := range 100 {
			stream.Send(context.Background(), Event{Type: EventContent, Text: string(rune('A' + i%26))})
		}
		stream.Finish(&Response{Text: "done"})
	}()

	var n int
	for ev := range stream.Events() {
		if want := string(rune('A' + n%26)); ev.Text != want {
			t.Fatalf("event %d = %q, want %q", n, ev.Text, want)
		}
		n++
	}
	if n != 100 {
		t.Errorf("received %d events, want 100", n)
	}
	if stream.Result().Text != "done" {
		t.Errorf("Result().Text = %q", stream.Result().Text)
	}
}

func TestEventStreamFinishWithResult(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(10)
	stream.Finish(&Response{Model: "test-model", FinishReason: "stop", Usage: Usage{InputTokens: 10, OutputTokens: 5}})

	result := stream.Result()
	if result.Model != "test-model" || result.Outcome != OutcomeCompleted {
		t.Errorf("result = %+v", result)
	}
	if r := result.CompletionReason(); r == nil || *r != "stop" {
		t.Errorf("CompletionReason() = %v, want stop", r)
	}

	if _, open := <-stream.Events(); open {
		t.Error("Events channel still open after Finish")
	}
}

func TestEventStreamFinishWithError(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(10)
	testErr := errors.New("test error")

	stream.FinishWithError(context.Background(), &Response{Text: "partial"}, testErr)

	var errorEvents int
	for ev := range stream.Events() {
		if ev.Type == EventError {
			if !errors.Is(ev.Err, testErr) {
				t.Errorf("got error %v, want %v", ev.Err, testErr)
			}
			errorEvents++
		}
	}
	if errorEvents != 1 {
		t.Errorf("received %d error events, want 1", errorEvents)
	}

	result := stream.Result()
	if result.Outcome != OutcomeFailed || !errors.Is(result.Err, testErr) || result.Text != "partial" {
		t.Errorf("result = %+v", result)
	}
}

func TestEventStreamCancel(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(10)
	stream.Cancel(nil)

	for ev := range stream.Events() {
		t.Errorf("unexpected event after Cancel: %+v", ev)
	}
	if got := stream.Result().Outcome; got != OutcomeCancelled {
		t.Errorf("Outcome = %s, want cancelled", got)
	}
	if stream.Send(context.Background(), Event{Type: EventContent}) {
		t.Error("Send succeeded on a finished stream")
	}
}

func TestEventStreamSendRespectsContext(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(1)
	ctx, cancel := context.WithCancel(context.Background())

	// Fill the internal buffer and the consumer buffer without reading.
	for stream.Send(ctx, Event{Type: EventContent}) {
		if len(stream.events) == cap(stream.events) && len(stream.out) == cap(stream.out) {
			break
		}
	}

	sent := make(chan bool, 1)
	go func() { sent <- stream.Send(ctx, Event{Type: EventContent, Text: "blocked"}) }()
	cancel()

	select {
	case ok := <-sent:
		if ok {
			t.Error("Send returned true after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock on cancellation")
	}
	stream.Finish(nil)
	for range stream.Events() {
	}
}

func TestEventStreamDoneChannel(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(10)

	select {
	case <-stream.Done():
		t.Fatal("Done() closed before Finish")
	default:
	}

	stream.Finish(nil)

	select {
	case <-stream.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after Finish")
	}
	if stream.Result() == nil {
		t.Error("Result() is nil after Finish(nil)")
	}
}

func TestEventStreamDoubleFinish(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(10)

	// Double finish should not panic (sync.Once guarantees this).
	stream.Finish(&Response{Model: "first"})
	stream.Finish(&Response{Model: "second"})

	if result := stream.Result(); result.Model != "first" {
		t.Errorf("expected first finish result, got %+v", result)
	}
}

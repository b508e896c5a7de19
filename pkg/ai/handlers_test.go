// ABOUTME: Tests for Dispatch: callback routing, ordering and the exactly-once completion rule
// ABOUTME: Streams are built by hand so each outcome can be exercised directly

package ai

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/mauromedda/chatstream/pkg/ai/block"
	"github.com/mauromedda/chatstream/pkg/ai/toolcall"
)

func recordingHandlers(log *[]string, completions *int, reason **string) Handlers {
	return Handlers{
		OnContent:        func(text string) { *log = append(*log, "content:"+text) },
		OnToolCallDelta:  func(d toolcall.Delta) { *log = append(*log, "delta:"+d.Arguments) },
		OnKnowledgeRefs:  func(refs []block.KnowledgeRef) { *log = append(*log, "refs:"+refs[0].ID) },
		OnMCPTool:        func(_ []block.MCPTool, pending bool) { *log = append(*log, map[bool]string{true: "mcp:pending", false: "mcp:done"}[pending]) },
		OnOfficeToolCall: func(calls []block.OfficeToolCall) { *log = append(*log, "office:"+calls[0].Name) },
		OnThinking:       func(info block.Thinking) { *log = append(*log, "thinking:"+info.Text) },
		OnDocumentUpdate: func(info block.DocumentUpdate) { *log = append(*log, "doc:"+info.Path) },
		OnFinishReason:   func(reason string) { *log = append(*log, "finish:"+reason) },
		OnDiagnostic:     func(err error) { *log = append(*log, "diag:"+err.Error()) },
		OnRetry:          func(info RetryInfo) { *log = append(*log, "retry") },
		OnError:          func(err error) { *log = append(*log, "error:"+err.Error()) },
		OnComplete: func(r *string) {
			*completions++
			*reason = r
		},
	}
}

func TestDispatchRoutesEventsInOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stream := NewEventStream(4)
	go func() {
		stream.Send(ctx, Event{Type: EventRetry, Retry: &RetryInfo{Attempt: 1}})
		stream.Send(ctx, Event{Type: EventContent, Text: "Hel"})
		stream.Send(ctx, Event{Type: EventThinking, Block: &block.Block{Type: block.TypeThinking, Thinking: &block.Thinking{Text: "t"}}})
		stream.Send(ctx, Event{Type: EventKnowledgeRefs, Block: &block.Block{Type: block.TypeKnowledgeRefs, KnowledgeRefs: []block.KnowledgeRef{{ID: "k"}}}})
		stream.Send(ctx, Event{Type: EventMCPTool, Block: &block.Block{Type: block.TypeMCPToolPending, MCPTools: []block.MCPTool{{Name: "s"}}}})
		stream.Send(ctx, Event{Type: EventMCPTool, Block: &block.Block{Type: block.TypeMCPTool, MCPTools: []block.MCPTool{{Name: "s"}}}})
		stream.Send(ctx, Event{Type: EventOfficeToolCall, Block: &block.Block{Type: block.TypeOfficeToolCall, OfficeToolCalls: []block.OfficeToolCall{{Name: "w"}}}})
		stream.Send(ctx, Event{Type: EventDocumentUpdated, Block: &block.Block{Type: block.TypeOfficeDocUpdated, DocumentUpdate: &block.DocumentUpdate{Path: "a.docx"}}})
		stream.Send(ctx, Event{Type: EventToolCallDelta, ToolCall: &toolcall.Delta{Arguments: "{}"}})
		stream.Send(ctx, Event{Type: EventDiagnostic, Err: errors.New("bad block")})
		stream.Send(ctx, Event{Type: EventContent, Text: "lo"})
		stream.Send(ctx, Event{Type: EventFinish, Text: "stop"})
		stream.Finish(&Response{Text: "Hello", FinishReason: "stop"})
	}()

	var log []string
	var completions int
	var reason *string
	resp := Dispatch(stream, recordingHandlers(&log, &completions, &reason))

	want := []string{
		"retry", "content:Hel", "thinking:t", "refs:k", "mcp:pending", "mcp:done",
		"office:w", "doc:a.docx", "delta:{}", "diag:bad block", "content:lo", "finish:stop",
	}
	if !slices.Equal(log, want) {
		t.Errorf("callbacks = %v\nwant %v", log, want)
	}
	if completions != 1 || reason == nil || *reason != "stop" {
		t.Errorf("OnComplete called %d times with %v", completions, reason)
	}
	if resp.Text != "Hello" {
		t.Errorf("resp.Text = %q", resp.Text)
	}
}

func TestDispatchCompletionWithoutReason(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(4)
	go stream.Finish(&Response{})

	var completions int
	reason := new(string)
	Dispatch(stream, Handlers{OnComplete: func(r *string) { completions++; reason = r }})
	if completions != 1 || reason != nil {
		t.Errorf("OnComplete called %d times with %v, want once with nil", completions, reason)
	}
}

func TestDispatchFailedStream(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(4)
	go stream.FinishWithError(context.Background(), nil, errors.New("upstream down"))

	var log []string
	var completions int
	var reason *string
	resp := Dispatch(stream, recordingHandlers(&log, &completions, &reason))

	if !slices.Equal(log, []string{"error:upstream down"}) {
		t.Errorf("callbacks = %v", log)
	}
	if completions != 1 {
		t.Errorf("OnComplete called %d times, want 1", completions)
	}
	if resp.Outcome != OutcomeFailed {
		t.Errorf("Outcome = %s", resp.Outcome)
	}
}

func TestDispatchCancelledStream(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(4)
	go func() {
		stream.Send(context.Background(), Event{Type: EventContent, Text: "partial"})
		stream.Cancel(nil)
	}()

	var log []string
	var completions int
	var reason *string
	resp := Dispatch(stream, recordingHandlers(&log, &completions, &reason))

	if completions != 0 {
		t.Errorf("OnComplete called %d times after cancellation", completions)
	}
	for _, entry := range log {
		if entry != "content:partial" {
			t.Errorf("unexpected callback %q", entry)
		}
	}
	if resp.Outcome != OutcomeCancelled {
		t.Errorf("Outcome = %s", resp.Outcome)
	}
}

func TestDispatchNilHandlers(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(4)
	go func() {
		stream.Send(context.Background(), Event{Type: EventContent, Text: "x"})
		stream.Send(context.Background(), Event{Type: EventThinking})
		stream.Finish(nil)
	}()

	if resp := Dispatch(stream, Handlers{}); resp.Outcome != OutcomeCompleted {
		t.Errorf("Outcome = %s", resp.Outcome)
	}
}

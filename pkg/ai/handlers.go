// ABOUTME: Caller-facing callbacks and Dispatch, which drains an EventStream into them
// ABOUTME: OnComplete runs exactly once for completed or failed streams, never for cancelled ones

package ai

import (
	"github.com/mauromedda/chatstream/pkg/ai/block"
	"github.com/mauromedda/chatstream/pkg/ai/toolcall"
)

// Handlers receives stream events. Nil callbacks are skipped.
type Handlers struct {
	OnContent        func(text string)
	OnToolCallDelta  func(delta toolcall.Delta)
	OnKnowledgeRefs  func(refs []block.KnowledgeRef)
	OnMCPTool        func(tools []block.MCPTool, pending bool)
	OnOfficeToolCall func(calls []block.OfficeToolCall)
	OnThinking       func(info block.Thinking)
	OnDocumentUpdate func(info block.DocumentUpdate)
	OnFinishReason   func(reason string)
	OnDiagnostic     func(err error)
	OnRetry          func(info RetryInfo)
	OnError          func(err error)
	OnComplete       func(reason *string)
}

// Dispatch drains stream, invoking h synchronously in event order, and
// returns the final Response once the stream ends.
func Dispatch(stream *EventStream, h Handlers) *Response {
	for ev := range stream.Events() {
		h.dispatch(ev)
	}

	resp := stream.Result()
	switch resp.Outcome {
	case OutcomeCompleted, OutcomeFailed:
		if h.OnComplete != nil {
			h.OnComplete(resp.CompletionReason())
		}
	case OutcomeCancelled:
	}
	return resp
}

func (h Handlers) dispatch(ev Event) {
	switch ev.Type {
	case EventContent:
		if h.OnContent != nil {
			h.OnContent(ev.Text)
		}
	case EventToolCallDelta:
		if h.OnToolCallDelta != nil && ev.ToolCall != nil {
			h.OnToolCallDelta(*ev.ToolCall)
		}
	case EventKnowledgeRefs:
		if h.OnKnowledgeRefs != nil && ev.Block != nil {
			h.OnKnowledgeRefs(ev.Block.KnowledgeRefs)
		}
	case EventMCPTool:
		if h.OnMCPTool != nil && ev.Block != nil {
			h.OnMCPTool(ev.Block.MCPTools, ev.Block.Pending())
		}
	case EventOfficeToolCall:
		if h.OnOfficeToolCall != nil && ev.Block != nil {
			h.OnOfficeToolCall(ev.Block.OfficeToolCalls)
		}
	case EventThinking:
		if h.OnThinking != nil && ev.Block != nil && ev.Block.Thinking != nil {
			h.OnThinking(*ev.Block.Thinking)
		}
	case EventDocumentUpdated:
		if h.OnDocumentUpdate != nil && ev.Block != nil && ev.Block.DocumentUpdate != nil {
			h.OnDocumentUpdate(*ev.Block.DocumentUpdate)
		}
	case EventFinish:
		if h.OnFinishReason != nil {
			h.OnFinishReason(ev.Text)
		}
	case EventDiagnostic:
		if h.OnDiagnostic != nil {
			h.OnDiagnostic(ev.Err)
		}
	case EventRetry:
		if h.OnRetry != nil && ev.Retry != nil {
			h.OnRetry(*ev.Retry)
		}
	case EventError:
		if h.OnError != nil {
			h.OnError(ev.Err)
		}
	}
}

// ABOUTME: Core types: stream events, final Response and outcome, request messages and tools
// ABOUTME: Shared by every provider; wire-format agnostic

package ai

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mauromedda/chatstream/pkg/ai/block"
	"github.com/mauromedda/chatstream/pkg/ai/toolcall"
)

// Role represents a message role in the conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one conversation turn.
type Message struct {
	Role       Role            `json:"role"`
	Content    string          `json:"content"`
	ToolCalls  []toolcall.Call `json:"tool_calls,omitempty"`  // assistant turns
	ToolCallID string          `json:"tool_call_id,omitempty"` // tool result turns
}

// NewTextMessage creates a plain text message.
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Content: text}
}

// Tool defines a tool the model can invoke.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// Request describes one streamed chat completion.
type Request struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens,omitempty"`
}

// EventType identifies the kind of stream event.
type EventType int

const (
	EventContent         EventType = iota // Text
	EventToolCallDelta                    // ToolCall
	EventKnowledgeRefs                    // Block
	EventMCPTool                          // Block (pending or finished)
	EventOfficeToolCall                   // Block
	EventThinking                         // Block
	EventDocumentUpdated                  // Block
	EventFinish                           // Text holds the finish reason
	EventDiagnostic                       // Err, recoverable
	EventRetry                            // Retry
	EventError                            // Err, terminal
)

func (t EventType) String() string {
	switch t {
	case EventContent:
		return "content"
	case EventToolCallDelta:
		return "tool_call_delta"
	case EventKnowledgeRefs:
		return "knowledge_refs"
	case EventMCPTool:
		return "mcp_tool"
	case EventOfficeToolCall:
		return "office_tool_call"
	case EventThinking:
		return "thinking"
	case EventDocumentUpdated:
		return "document_updated"
	case EventFinish:
		return "finish"
	case EventDiagnostic:
		return "diagnostic"
	case EventRetry:
		return "retry"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// RetryInfo describes a failed pre-stream attempt about to be retried.
type RetryInfo struct {
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         error
}

// Event is a single typed event produced by a stream.
type Event struct {
	Type     EventType
	Text     string
	ToolCall *toolcall.Delta
	Block    *block.Block
	Retry    *RetryInfo
	Err      error
}

// Outcome is the terminal state of a stream.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Response is the final result of a stream.
type Response struct {
	ID           string
	Model        string
	Text         string // visible text with out-of-band blocks removed
	ToolCalls    []toolcall.Call
	FinishReason string
	Usage        Usage
	Outcome      Outcome
	Err          error // set when Outcome is OutcomeFailed
}

// CompletionReason returns the finish reason, or nil when none was reported.
func (r *Response) CompletionReason() *string {
	if r == nil || r.FinishReason == "" {
		return nil
	}
	reason := r.FinishReason
	return &reason
}

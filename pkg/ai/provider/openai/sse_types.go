// ABOUTME: SSE response types for OpenAI Chat Completions streaming
// ABOUTME: Decoded by the hand-written easyjson lexers in sse_decode.go (no codegen)

package openai

import "github.com/mauromedda/chatstream/pkg/ai/block"

// chatCompletionChunk is the top-level SSE chunk for streaming responses.
type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *chunkUsage   `json:"usage,omitempty"`
	Error   *chunkError   `json:"error,omitempty"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason string     `json:"finish_reason"`
}

type chunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   string          `json:"content,omitempty"`
	ToolCalls []toolCallDelta `json:"tool_calls,omitempty"`
}

type toolCallDelta struct {
	Index    int               `json:"index"`
	ID       string            `json:"id,omitempty"`
	Type     string            `json:"type,omitempty"`
	Function toolCallFuncDelta `json:"function"`
}

type toolCallFuncDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type chunkUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chunkError is an error object sent in place of a chunk by
// OpenAI-compatible servers that fail after the stream has started.
type chunkError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (e *chunkError) upstream() *block.UpstreamError {
	info := block.ErrorInfo{Message: e.Message, Code: e.Code}
	if info.Code == "" {
		info.Code = e.Type
	}
	return info.Err()
}

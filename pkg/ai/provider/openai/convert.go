// ABOUTME: Request building: converts an ai.Request into the Chat Completions wire format
// ABOUTME: Handles messages, tools, and assistant tool calls; streaming is always enabled

package openai

import (
	"encoding/json"

	"github.com/mauromedda/chatstream/pkg/ai"
)

type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Tools         []toolDef      `json:"tools,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Temperature   float64        `json:"temperature,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []toolCallReq `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type toolCallReq struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function toolCallFuncReq `json:"function"`
}

type toolCallFuncReq struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolDef struct {
	Type     string      `json:"type"`
	Function toolFuncDef `json:"function"`
}

type toolFuncDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

func buildRequestBody(req *ai.Request, compat CompatMode) chatRequest {
	body := chatRequest{
		Model:       req.Model,
		Messages:    convertMessages(req),
		Tools:       convertTools(req.Tools),
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if compat != CompatOllama {
		body.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return body
}

func convertMessages(req *ai.Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)

	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: string(ai.RoleSystem), Content: req.System})
	}

	for _, m := range req.Messages {
		msg := chatMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, c := range m.ToolCalls {
			args := string(c.Arguments)
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, toolCallReq{
				ID:   c.ID,
				Type: "function",
				Function: toolCallFuncReq{
					Name:      c.Name,
					Arguments: args,
				},
			})
		}
		msgs = append(msgs, msg)
	}

	return msgs
}

func convertTools(tools []ai.Tool) []toolDef {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]toolDef, len(tools))
	for i, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = emptySchema
		}
		defs[i] = toolDef{
			Type: "function",
			Function: toolFuncDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		}
	}
	return defs
}

// ABOUTME: Out-of-band block types: closed Type enum and the typed payload of each block kind
// ABOUTME: Block is a tagged union; exactly one payload field is set, selected by Type

package block

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of an out-of-band block.
type Type int

const (
	TypeKnowledgeRefs Type = iota + 1
	TypeMCPTool
	TypeMCPToolPending
	TypeOfficeToolCall
	TypeThinking
	TypeOfficeDocUpdated
	TypeError
)

var typeTags = map[string]Type{
	"KNOWLEDGE_REFS":     TypeKnowledgeRefs,
	"MCP_TOOL":           TypeMCPTool,
	"MCP_TOOL_PENDING":   TypeMCPToolPending,
	"OFFICE_TOOL_CALL":   TypeOfficeToolCall,
	"THINKING":           TypeThinking,
	"OFFICE_DOC_UPDATED": TypeOfficeDocUpdated,
	"ERROR":              TypeError,
}

// ParseType maps a wire tag to its Type.
func ParseType(tag string) (Type, bool) {
	t, ok := typeTags[tag]
	return t, ok
}

// String returns the wire tag.
func (t Type) String() string {
	switch t {
	case TypeKnowledgeRefs:
		return "KNOWLEDGE_REFS"
	case TypeMCPTool:
		return "MCP_TOOL"
	case TypeMCPToolPending:
		return "MCP_TOOL_PENDING"
	case TypeOfficeToolCall:
		return "OFFICE_TOOL_CALL"
	case TypeThinking:
		return "THINKING"
	case TypeOfficeDocUpdated:
		return "OFFICE_DOC_UPDATED"
	case TypeError:
		return "ERROR"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// KnowledgeRef is one knowledge-base citation.
type KnowledgeRef struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content,omitempty"`
	Source  string  `json:"source,omitempty"`
	URL     string  `json:"url,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// MCPTool describes an MCP tool invocation and, once finished, its result.
type MCPTool struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Server    string          `json:"server,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Status    string          `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// OfficeToolCall is a tool call routed to the Office document adapters.
type OfficeToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Thinking carries a reasoning trace fragment.
type Thinking struct {
	Text  string `json:"text"`
	Stage string `json:"stage,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// DocumentUpdate notifies that an Office document was modified.
type DocumentUpdate struct {
	Path    string `json:"path,omitempty"`
	Kind    string `json:"kind,omitempty"` // word, excel, ppt
	Summary string `json:"summary,omitempty"`
}

// ErrorInfo is an error reported by the upstream service inside the stream.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Block is one decoded out-of-band block.
type Block struct {
	Type Type

	KnowledgeRefs   []KnowledgeRef   // TypeKnowledgeRefs
	MCPTools        []MCPTool        // TypeMCPTool, TypeMCPToolPending
	OfficeToolCalls []OfficeToolCall // TypeOfficeToolCall
	Thinking        *Thinking        // TypeThinking
	DocumentUpdate  *DocumentUpdate  // TypeOfficeDocUpdated
	Error           *ErrorInfo       // TypeError
}

// Pending reports whether an MCP tool block announces calls still running.
func (b Block) Pending() bool {
	return b.Type == TypeMCPToolPending
}

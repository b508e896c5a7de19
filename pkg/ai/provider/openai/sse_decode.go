// ABOUTME: Hand-written easyjson decoders for the streaming chunk types in sse_types.go
// ABOUTME: Accepts numeric error codes and object-valued arguments; not generated, do not regenerate

package openai

import (
	"fmt"

	"github.com/mailru/easyjson/jlexer"
)

func easyjsonDecodeChatCompletionChunk(in *jlexer.Lexer, out *chatCompletionChunk) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "id":
			out.ID = in.String()
		case "object":
			out.Object = in.String()
		case "created":
			out.Created = in.Int64()
		case "model":
			out.Model = in.String()
		case "choices":
			in.Delim('[')
			if out.Choices == nil {
				if !in.IsDelim(']') {
					out.Choices = make([]chunkChoice, 0, 1)
				} else {
					out.Choices = []chunkChoice{}
				}
			} else {
				out.Choices = (out.Choices)[:0]
			}
			for !in.IsDelim(']') {
				var v chunkChoice
				(&v).UnmarshalEasyJSON(in)
				out.Choices = append(out.Choices, v)
				in.WantComma()
			}
			in.Delim(']')
		case "usage":
			if out.Usage == nil {
				out.Usage = new(chunkUsage)
			}
			out.Usage.UnmarshalEasyJSON(in)
		case "error":
			if out.Error == nil {
				out.Error = new(chunkError)
			}
			out.Error.UnmarshalEasyJSON(in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalJSON supports json.Unmarshaler interface
func (v *chatCompletionChunk) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	easyjsonDecodeChatCompletionChunk(&r, v)
	return r.Error()
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *chatCompletionChunk) UnmarshalEasyJSON(l *jlexer.Lexer) {
	easyjsonDecodeChatCompletionChunk(l, v)
}

func easyjsonDecodeChunkChoice(in *jlexer.Lexer, out *chunkChoice) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "index":
			out.Index = in.Int()
		case "delta":
			(&out.Delta).UnmarshalEasyJSON(in)
		case "finish_reason":
			out.FinishReason = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *chunkChoice) UnmarshalEasyJSON(l *jlexer.Lexer) {
	easyjsonDecodeChunkChoice(l, v)
}

func easyjsonDecodeChunkDelta(in *jlexer.Lexer, out *chunkDelta) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "role":
			out.Role = in.String()
		case "content":
			out.Content = in.String()
		case "tool_calls":
			in.Delim('[')
			if out.ToolCalls == nil {
				if !in.IsDelim(']') {
					out.ToolCalls = make([]toolCallDelta, 0, 1)
				} else {
					out.ToolCalls = []toolCallDelta{}
				}
			} else {
				out.ToolCalls = (out.ToolCalls)[:0]
			}
			for !in.IsDelim(']') {
				var v toolCallDelta
				(&v).UnmarshalEasyJSON(in)
				out.ToolCalls = append(out.ToolCalls, v)
				in.WantComma()
			}
			in.Delim(']')
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *chunkDelta) UnmarshalEasyJSON(l *jlexer.Lexer) {
	easyjsonDecodeChunkDelta(l, v)
}

func easyjsonDecodeToolCallDelta(in *jlexer.Lexer, out *toolCallDelta) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "index":
			out.Index = in.Int()
		case "id":
			out.ID = in.String()
		case "type":
			out.Type = in.String()
		case "function":
			(&out.Function).UnmarshalEasyJSON(in)
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *toolCallDelta) UnmarshalEasyJSON(l *jlexer.Lexer) {
	easyjsonDecodeToolCallDelta(l, v)
}

func easyjsonDecodeToolCallFuncDelta(in *jlexer.Lexer, out *toolCallFuncDelta) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "name":
			out.Name = in.String()
		case "arguments":
			// Some compatible servers send the arguments as an object.
			if in.IsDelim('{') {
				out.Arguments = string(in.Raw())
			} else {
				out.Arguments = in.String()
			}
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *toolCallFuncDelta) UnmarshalEasyJSON(l *jlexer.Lexer) {
	easyjsonDecodeToolCallFuncDelta(l, v)
}

func easyjsonDecodeChunkUsage(in *jlexer.Lexer, out *chunkUsage) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "prompt_tokens":
			out.PromptTokens = in.Int()
		case "completion_tokens":
			out.CompletionTokens = in.Int()
		case "total_tokens":
			out.TotalTokens = in.Int()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *chunkUsage) UnmarshalEasyJSON(l *jlexer.Lexer) {
	easyjsonDecodeChunkUsage(l, v)
}

// easyjsonDecodeChunkError accepts {"message","type","code"} with a string
// or numeric code, or a bare string message.
func easyjsonDecodeChunkError(in *jlexer.Lexer, out *chunkError) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	if !in.IsDelim('{') {
		out.Message = in.String()
		if isTopLevel {
			in.Consumed()
		}
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "message":
			out.Message = in.String()
		case "type":
			out.Type = in.String()
		case "code":
			switch code := in.Interface().(type) {
			case string:
				out.Code = code
			case float64:
				out.Code = fmt.Sprint(code)
			}
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// UnmarshalEasyJSON supports easyjson.Unmarshaler interface
func (v *chunkError) UnmarshalEasyJSON(l *jlexer.Lexer) {
	easyjsonDecodeChunkError(l, v)
}

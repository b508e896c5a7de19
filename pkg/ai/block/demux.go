// ABOUTME: Demultiplexer that strips sentinel-delimited out-of-band blocks from content text
// ABOUTME: Decodes each block by tag; malformed or unknown blocks are logged and dropped

package block

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	cslog "github.com/mauromedda/chatstream/internal/log"
)

// DefaultSentinel delimits blocks inside content text.
const DefaultSentinel byte = 0x00

var errNotObject = errors.New("expected a JSON object")

// Option configures a Demuxer.
type Option func(*Demuxer)

// WithSentinel sets the delimiter byte. Only ASCII bytes are accepted;
// other values leave the default in place.
func WithSentinel(b byte) Option {
	return func(d *Demuxer) {
		if b < 0x80 {
			d.sentinel = b
		}
	}
}

// Result is the outcome of processing one piece of content text.
type Result struct {
	Visible   string  // text with every matched block removed
	Blocks    []Block // decoded blocks in order of appearance
	Positions []int   // offset in Visible at which Blocks[i] appeared
	Errs      []error // recoverable problems (*DecodeError, *UnknownTagError)
}

// Demuxer extracts out-of-band blocks. It holds no per-stream state and is
// safe for concurrent use.
type Demuxer struct {
	sentinel byte
	pattern  *regexp.Regexp
	partial  *regexp.Regexp
}

// New creates a Demuxer.
func New(opts ...Option) *Demuxer {
	d := &Demuxer{sentinel: DefaultSentinel}
	for _, o := range opts {
		o(d)
	}
	s := fmt.Sprintf(`\x%02x`, d.sentinel)
	// SENTINEL TAG SENTINEL BODY SENTINEL, body matched non-greedily.
	d.pattern = regexp.MustCompile(s + `([A-Za-z0-9_]+)` + s + `(?s:(.*?))` + s)
	// A block cut off before its closing sentinel.
	d.partial = regexp.MustCompile(`^` + s + `[A-Za-z0-9_]*(?:` + s + `[^` + s + `]*)?$`)
	return d
}

// Sentinel returns the delimiter byte.
func (d *Demuxer) Sentinel() byte {
	return d.sentinel
}

// Split divides text into a prefix that can be processed now and a trailing
// block that is still missing its closing sentinel. pending is empty unless
// text ends inside a well-formed block prefix.
func (d *Demuxer) Split(text string) (ready, pending string) {
	start := 0
	if locs := d.pattern.FindAllStringIndex(text, -1); len(locs) > 0 {
		start = locs[len(locs)-1][1]
	}
	for i := start; i < len(text); i++ {
		if text[i] == d.sentinel && d.partial.MatchString(text[i:]) {
			return text[:i], text[i:]
		}
	}
	return text, ""
}

// Process scans text for blocks. An opening sentinel without its closing
// counterpart is left in Visible as literal text.
func (d *Demuxer) Process(text string) Result {
	if strings.IndexByte(text, d.sentinel) < 0 {
		return Result{Visible: text}
	}

	matches := d.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return Result{Visible: text}
	}

	var res Result
	var visible strings.Builder
	visible.Grow(len(text))
	last := 0
	for _, m := range matches {
		visible.WriteString(text[last:m[0]])
		last = m[1]

		tag := text[m[2]:m[3]]
		body := text[m[4]:m[5]]
		b, err := decode(tag, body)
		if err != nil {
			cslog.Warn("block: dropping %s block: %v (body: %s)", cslog.Preview(tag), err, cslog.Preview(body))
			res.Errs = append(res.Errs, err)
			continue
		}
		res.Blocks = append(res.Blocks, b)
		res.Positions = append(res.Positions, visible.Len())
	}
	visible.WriteString(text[last:])
	res.Visible = visible.String()
	return res
}

// decode turns one block body into a typed Block.
func decode(tag, body string) (Block, error) {
	t, ok := ParseType(tag)
	if !ok {
		return Block{}, &UnknownTagError{Tag: tag}
	}

	b := Block{Type: t}
	var err error
	switch t {
	case TypeKnowledgeRefs:
		b.KnowledgeRefs, err = decodeList[KnowledgeRef](body)
	case TypeMCPTool, TypeMCPToolPending:
		b.MCPTools, err = decodeList[MCPTool](body)
	case TypeOfficeToolCall:
		b.OfficeToolCalls, err = decodeList[OfficeToolCall](body)
	case TypeThinking:
		b.Thinking, err = decodeOne[Thinking](body)
	case TypeOfficeDocUpdated:
		b.DocumentUpdate, err = decodeOne[DocumentUpdate](body)
	case TypeError:
		b.Error, err = decodeError(body)
	default:
		return Block{}, &UnknownTagError{Tag: tag}
	}
	if err != nil {
		return Block{}, &DecodeError{Type: t, Body: body, Err: err}
	}
	return b, nil
}

// decodeList accepts either a JSON array of T or a single T object.
func decodeList[T any](body string) ([]T, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, "{") {
		one, err := decodeOne[T](trimmed)
		if err != nil {
			return nil, err
		}
		return []T{*one}, nil
	}
	var list []T
	if err := json.Unmarshal([]byte(trimmed), &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []T{}
	}
	return list, nil
}

func decodeOne[T any](body string) (*T, error) {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, errNotObject
	}
	var v T
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeError accepts {"message":..,"code":..} with a string or numeric
// code, or a bare JSON string.
func decodeError(body string) (*ErrorInfo, error) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, `"`) {
		var msg string
		if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
			return nil, err
		}
		return &ErrorInfo{Message: msg}, nil
	}

	var raw struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
		Code    json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, err
	}
	info := &ErrorInfo{Message: raw.Message, Code: rawString(raw.Code)}
	if info.Message == "" && len(raw.Error) > 0 {
		// {"error": "..."} or a nested {"error": {"message": ...}}.
		if nested, err := decodeError(string(raw.Error)); err == nil {
			info.Message = nested.Message
			if info.Code == "" {
				info.Code = nested.Code
			}
		}
	}
	return info, nil
}

// rawString renders a JSON string or number as plain text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

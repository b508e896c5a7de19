// ABOUTME: Tests for the block demultiplexer: extraction, stripping, malformed and unknown blocks
// ABOUTME: Includes the strip/concatenate round trip across multiple content pieces

package block

import (
	"errors"
	"strings"
	"testing"
)

const sep = "\x00"

func TestProcessThinkingBlock(t *testing.T) {
	t.Parallel()

	res := New().Process(sep + "THINKING" + sep + `{"text":"step1"}` + sep + "visible text")

	if res.Visible != "visible text" {
		t.Errorf("Visible = %q, want %q", res.Visible, "visible text")
	}
	if len(res.Blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(res.Blocks))
	}
	b := res.Blocks[0]
	if b.Type != TypeThinking || b.Thinking == nil || b.Thinking.Text != "step1" {
		t.Errorf("block = %+v, want thinking step1", b)
	}
	if len(res.Errs) != 0 {
		t.Errorf("unexpected errors: %v", res.Errs)
	}
}

func TestProcessPlainText(t *testing.T) {
	t.Parallel()

	res := New().Process("no blocks here")
	if res.Visible != "no blocks here" || len(res.Blocks) != 0 {
		t.Errorf("res = %+v", res)
	}
}

func TestProcessEveryType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag   string
		body  string
		check func(t *testing.T, b Block)
	}{
		{
			tag:  "KNOWLEDGE_REFS",
			body: `[{"id":"k1","title":"Doc","score":0.9},{"id":"k2"}]`,
			check: func(t *testing.T, b Block) {
				if len(b.KnowledgeRefs) != 2 || b.KnowledgeRefs[0].Title != "Doc" {
					t.Errorf("KnowledgeRefs = %+v", b.KnowledgeRefs)
				}
			},
		},
		{
			tag:  "MCP_TOOL",
			body: `[{"name":"search","server":"web","result":{"hits":3},"status":"done"}]`,
			check: func(t *testing.T, b Block) {
				if len(b.MCPTools) != 1 || b.MCPTools[0].Name != "search" || b.Pending() {
					t.Errorf("MCPTools = %+v", b.MCPTools)
				}
				if string(b.MCPTools[0].Result) != `{"hits":3}` {
					t.Errorf("Result = %s", b.MCPTools[0].Result)
				}
			},
		},
		{
			tag:  "MCP_TOOL_PENDING",
			body: `{"name":"search","status":"running"}`,
			check: func(t *testing.T, b Block) {
				if len(b.MCPTools) != 1 || !b.Pending() {
					t.Errorf("pending block = %+v", b)
				}
			},
		},
		{
			tag:  "OFFICE_TOOL_CALL",
			body: `[{"id":"c1","name":"word_insert_text","arguments":{"text":"hi"}}]`,
			check: func(t *testing.T, b Block) {
				if len(b.OfficeToolCalls) != 1 || b.OfficeToolCalls[0].Name != "word_insert_text" {
					t.Errorf("OfficeToolCalls = %+v", b.OfficeToolCalls)
				}
			},
		},
		{
			tag:  "OFFICE_DOC_UPDATED",
			body: `{"path":"report.docx","kind":"word"}`,
			check: func(t *testing.T, b Block) {
				if b.DocumentUpdate == nil || b.DocumentUpdate.Path != "report.docx" {
					t.Errorf("DocumentUpdate = %+v", b.DocumentUpdate)
				}
			},
		},
		{
			tag:  "ERROR",
			body: `{"message":"quota exceeded","code":429}`,
			check: func(t *testing.T, b Block) {
				if b.Error == nil || b.Error.Message != "quota exceeded" || b.Error.Code != "429" {
					t.Errorf("Error = %+v", b.Error)
				}
			},
		},
		{
			tag:  "ERROR",
			body: `{"error":{"message":"nested","code":"E1"}}`,
			check: func(t *testing.T, b Block) {
				if b.Error == nil || b.Error.Message != "nested" || b.Error.Code != "E1" {
					t.Errorf("Error = %+v", b.Error)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			t.Parallel()

			res := New().Process("a" + sep + tt.tag + sep + tt.body + sep + "b")
			if res.Visible != "ab" {
				t.Errorf("Visible = %q, want %q", res.Visible, "ab")
			}
			if len(res.Errs) != 0 {
				t.Fatalf("unexpected errors: %v", res.Errs)
			}
			if len(res.Blocks) != 1 {
				t.Fatalf("got %d blocks, want 1", len(res.Blocks))
			}
			if got := res.Blocks[0].Type.String(); got != tt.tag {
				t.Errorf("Type = %s, want %s", got, tt.tag)
			}
			tt.check(t, res.Blocks[0])
		})
	}
}

func TestProcessMultipleBlocks(t *testing.T) {
	t.Parallel()

	text := "one " + sep + "THINKING" + sep + `{"text":"a"}` + sep + "two " +
		sep + "THINKING" + sep + `{"text":"b"}` + sep + "three"
	res := New().Process(text)

	if res.Visible != "one two three" {
		t.Errorf("Visible = %q", res.Visible)
	}
	if len(res.Blocks) != 2 || res.Blocks[0].Thinking.Text != "a" || res.Blocks[1].Thinking.Text != "b" {
		t.Errorf("Blocks = %+v", res.Blocks)
	}
	if len(res.Positions) != 2 || res.Positions[0] != len("one ") || res.Positions[1] != len("one two ") {
		t.Errorf("Positions = %v", res.Positions)
	}
}

func TestProcessMalformedBlockSkipped(t *testing.T) {
	t.Parallel()

	text := sep + "THINKING" + sep + `{"text":` + sep + "mid " +
		sep + "THINKING" + sep + `{"text":"ok"}` + sep + "end"
	res := New().Process(text)

	if res.Visible != "mid end" {
		t.Errorf("Visible = %q, want %q", res.Visible, "mid end")
	}
	if len(res.Blocks) != 1 || res.Blocks[0].Thinking.Text != "ok" {
		t.Errorf("Blocks = %+v", res.Blocks)
	}
	if len(res.Errs) != 1 {
		t.Fatalf("Errs = %v, want one decode error", res.Errs)
	}
	var decErr *DecodeError
	if !errors.As(res.Errs[0], &decErr) || decErr.Type != TypeThinking {
		t.Errorf("err = %v, want *DecodeError for THINKING", res.Errs[0])
	}
}

func TestProcessUnknownTag(t *testing.T) {
	t.Parallel()

	res := New().Process("x" + sep + "FUTURE_THING" + sep + `{}` + sep + "y")

	if res.Visible != "xy" {
		t.Errorf("Visible = %q", res.Visible)
	}
	var tagErr *UnknownTagError
	if len(res.Errs) != 1 || !errors.As(res.Errs[0], &tagErr) || tagErr.Tag != "FUTURE_THING" {
		t.Errorf("Errs = %v, want UnknownTagError", res.Errs)
	}
}

func TestProcessUnterminatedBlockIsLiteral(t *testing.T) {
	t.Parallel()

	text := "before " + sep + "THINKING" + sep + `{"text":"cut`
	res := New().Process(text)

	if res.Visible != text {
		t.Errorf("Visible = %q, want the input unchanged", res.Visible)
	}
	if len(res.Blocks) != 0 || len(res.Errs) != 0 {
		t.Errorf("res = %+v, want no blocks and no errors", res)
	}
}

func TestSplit(t *testing.T) {
	t.Parallel()

	full := sep + "THINKING" + sep + `{"text":"t"}` + sep
	tests := []struct {
		name        string
		text        string
		wantReady   string
		wantPending string
	}{
		{"plain", "hello", "hello", ""},
		{"complete block", "a" + full + "b", "a" + full + "b", ""},
		{"open body", "before " + sep + "THINKING" + sep + `{"text":"cut`, "before ", sep + "THINKING" + sep + `{"text":"cut`},
		{"open tag", "a" + full + "b" + sep + "THI", "a" + full + "b", sep + "THI"},
		{"lone trailing sentinel", "text" + sep, "text", sep},
		{"multiline body", sep + "THINKING" + sep + "{\n", "", sep + "THINKING" + sep + "{\n"},
		{"stray sentinel", "a" + sep + "b c", "a" + sep + "b c", ""},
		{"stray then open", "a" + sep + "b c" + sep, "a" + sep + "b c", sep},
	}

	d := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ready, pending := d.Split(tt.text)
			if ready != tt.wantReady || pending != tt.wantPending {
				t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tt.text, ready, pending, tt.wantReady, tt.wantPending)
			}
			if ready+pending != tt.text {
				t.Errorf("Split(%q) lost bytes", tt.text)
			}
		})
	}
}

func TestProcessCustomSentinel(t *testing.T) {
	t.Parallel()

	d := New(WithSentinel(0x1e))
	res := d.Process("a\x1eTHINKING\x1e{\"text\":\"t\"}\x1eb")
	if res.Visible != "ab" || len(res.Blocks) != 1 {
		t.Errorf("res = %+v", res)
	}
	if d.Sentinel() != 0x1e {
		t.Errorf("Sentinel() = %#x", d.Sentinel())
	}
	if New(WithSentinel(0xff)).Sentinel() != DefaultSentinel {
		t.Error("non-ASCII sentinel should be rejected")
	}
}

func TestProcessRoundTrip(t *testing.T) {
	t.Parallel()

	pieces := []string{
		"The answer " + sep + "KNOWLEDGE_REFS" + sep + `[{"id":"r1"}]` + sep + "is ",
		sep + "THINKING" + sep + `{"text":"hmm"}` + sep,
		"forty-two" + sep + "OFFICE_DOC_UPDATED" + sep + `{"path":"a.xlsx"}` + sep + ".",
	}

	d := New()
	var visible strings.Builder
	var blocks int
	for _, p := range pieces {
		res := d.Process(p)
		visible.WriteString(res.Visible)
		blocks += len(res.Blocks)
	}

	if got := visible.String(); got != "The answer is forty-two." {
		t.Errorf("visible = %q", got)
	}
	if strings.Contains(visible.String(), sep) {
		t.Error("sentinel bytes remain in visible text")
	}
	if blocks != 3 {
		t.Errorf("decoded %d blocks, want 3", blocks)
	}
}

func TestErrorInfoErr(t *testing.T) {
	t.Parallel()

	err := ErrorInfo{Message: "boom", Code: "E42"}.Err()
	if err.Error() != "upstream error (E42): boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if got := (ErrorInfo{}).Err().Message; got != "unspecified error" {
		t.Errorf("empty message = %q", got)
	}
}

func BenchmarkProcess(b *testing.B) {
	d := New()
	text := strings.Repeat("plain visible text ", 20) +
		sep + "THINKING" + sep + `{"text":"step"}` + sep +
		strings.Repeat("more text ", 20) +
		sep + "KNOWLEDGE_REFS" + sep + `[{"id":"a"},{"id":"b"}]` + sep

	for b.Loop() {
		_ = d.Process(text)
	}
}

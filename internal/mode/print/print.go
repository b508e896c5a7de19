// ABOUTME: Headless output for a single stream with text, JSON, and stream-JSON formatters
// ABOUTME: Wires ai.Handlers callbacks to a formatter; text mode styles with lipgloss and renders markdown with glamour

package print

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/mauromedda/chatstream/pkg/ai"
	"github.com/mauromedda/chatstream/pkg/ai/block"
)

// Config configures how a stream is printed.
type Config struct {
	OutputFormat string // "text" (default), "json", "stream-json"
	Markdown     bool   // text only: render the final text as markdown instead of streaming it
	Color        bool   // text only: style side-channel output
	Verbose      bool   // include diagnostics and usage
	Width        int    // word-wrap width for markdown; 0 = 80
	Stdout       io.Writer
	Stderr       io.Writer
}

func (c *Config) withDefaults() {
	if c.OutputFormat == "" {
		c.OutputFormat = "text"
	}
	if c.Width <= 0 {
		c.Width = 80
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
}

// Run drains stream, printing every event, and returns the final Response.
func Run(stream *ai.EventStream, cfg Config) *ai.Response {
	cfg.withDefaults()
	f := newFormatter(cfg)

	f.start()
	resp := ai.Dispatch(stream, handlers(f))
	f.end(resp)
	return resp
}

func handlers(f formatter) ai.Handlers {
	return ai.Handlers{
		OnContent:        f.text,
		OnKnowledgeRefs:  func(refs []block.KnowledgeRef) { f.block(block.TypeKnowledgeRefs, refs) },
		OnOfficeToolCall: func(calls []block.OfficeToolCall) { f.block(block.TypeOfficeToolCall, calls) },
		OnThinking:       func(info block.Thinking) { f.block(block.TypeThinking, info) },
		OnDocumentUpdate: func(info block.DocumentUpdate) { f.block(block.TypeOfficeDocUpdated, info) },
		OnMCPTool: func(tools []block.MCPTool, pending bool) {
			typ := block.TypeMCPTool
			if pending {
				typ = block.TypeMCPToolPending
			}
			f.block(typ, tools)
		},
		OnRetry:      f.retry,
		OnDiagnostic: f.diagnostic,
		OnError:      f.err,
	}
}

// formatter abstracts output formatting.
type formatter interface {
	start()
	text(s string)
	block(typ block.Type, payload any)
	retry(info ai.RetryInfo)
	diagnostic(err error)
	err(e error)
	end(resp *ai.Response)
}

func newFormatter(cfg Config) formatter {
	switch cfg.OutputFormat {
	case "json":
		return &jsonFormatter{out: cfg.Stdout, verbose: cfg.Verbose}
	case "stream-json":
		return &streamJSONFormatter{out: cfg.Stdout, verbose: cfg.Verbose}
	default:
		return newTextFormatter(cfg)
	}
}

// styles for side-channel lines in text mode.
type styles struct {
	label lipgloss.Style
	dim   lipgloss.Style
	warn  lipgloss.Style
	error lipgloss.Style
}

func newStyles(color bool) styles {
	if !color {
		plain := lipgloss.NewStyle()
		return styles{label: plain, dim: plain, warn: plain, error: plain}
	}
	return styles{
		label: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")),
		dim:   lipgloss.NewStyle().Faint(true),
		warn:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		error: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
	}
}

// textFormatter streams text to stdout and side-channel events to stderr.
type textFormatter struct {
	cfg   Config
	st    styles
	wrote bool
}

func newTextFormatter(cfg Config) *textFormatter {
	return &textFormatter{cfg: cfg, st: newStyles(cfg.Color)}
}

func (f *textFormatter) start() {}

func (f *textFormatter) text(s string) {
	if f.cfg.Markdown {
		return
	}
	f.wrote = true
	fmt.Fprint(f.cfg.Stdout, s)
}

func (f *textFormatter) line(label string, style lipgloss.Style, msg string) {
	fmt.Fprintf(f.cfg.Stderr, "%s %s\n", f.st.label.Render("["+label+"]"), style.Render(msg))
}

func (f *textFormatter) block(typ block.Type, payload any) {
	f.line(strings.ToLower(typ.String()), f.st.dim, summarize(payload))
}

func (f *textFormatter) retry(info ai.RetryInfo) {
	f.line("retry", f.st.warn, fmt.Sprintf("attempt %d/%d failed (%v); retrying in %s", info.Attempt, info.MaxAttempts, info.Err, info.Delay))
}

func (f *textFormatter) diagnostic(err error) {
	if f.cfg.Verbose {
		f.line("diagnostic", f.st.warn, err.Error())
	}
}

func (f *textFormatter) err(e error) {
	fmt.Fprintln(f.cfg.Stderr, f.st.error.Render("error: "+e.Error()))
}

func (f *textFormatter) end(resp *ai.Response) {
	if f.cfg.Markdown && resp.Text != "" {
		fmt.Fprintln(f.cfg.Stdout, renderMarkdown(resp.Text, f.cfg.Width, f.cfg.Color))
	} else if f.wrote {
		fmt.Fprintln(f.cfg.Stdout)
	}

	for _, c := range resp.ToolCalls {
		f.line("tool call", f.st.dim, fmt.Sprintf("%s %s %s", c.ID, c.Name, c.Arguments))
	}
	if f.cfg.Verbose {
		f.line("done", f.st.dim, fmt.Sprintf("outcome=%s finish=%q tokens=%d/%d", resp.Outcome, resp.FinishReason, resp.Usage.InputTokens, resp.Usage.OutputTokens))
	}
}

// renderMarkdown renders md for the terminal, falling back to the raw text.
func renderMarkdown(md string, width int, color bool) string {
	style := glamour.WithAutoStyle()
	if !color {
		style = glamour.WithStandardStyle("notty")
	}
	renderer, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(rendered, "\n ")
}

// summarize produces a one-line description of a block payload.
func summarize(payload any) string {
	switch p := payload.(type) {
	case []block.KnowledgeRef:
		titles := make([]string, 0, len(p))
		for _, r := range p {
			titles = append(titles, firstNonEmpty(r.Title, r.ID, r.URL))
		}
		return fmt.Sprintf("%d references: %s", len(p), strings.Join(titles, ", "))
	case []block.MCPTool:
		names := make([]string, 0, len(p))
		for _, t := range p {
			name := t.Name
			if t.Status != "" {
				name += " (" + t.Status + ")"
			}
			names = append(names, name)
		}
		return strings.Join(names, ", ")
	case []block.OfficeToolCall:
		names := make([]string, 0, len(p))
		for _, c := range p {
			names = append(names, c.Name)
		}
		return strings.Join(names, ", ")
	case block.Thinking:
		return p.Text
	case block.DocumentUpdate:
		return strings.TrimSpace(firstNonEmpty(p.Path, p.Kind) + " " + p.Summary)
	default:
		return fmt.Sprint(p)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// jsonBlock is an out-of-band block in JSON output.
type jsonBlock struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type jsonToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type jsonOutput struct {
	ID           string         `json:"id,omitempty"`
	Model        string         `json:"model,omitempty"`
	Text         string         `json:"text"`
	ToolCalls    []jsonToolCall `json:"tool_calls,omitempty"`
	Blocks       []jsonBlock    `json:"blocks,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Outcome      string         `json:"outcome"`
	Usage        *ai.Usage      `json:"usage,omitempty"`
	Retries      int            `json:"retries,omitempty"`
	Diagnostics  []string       `json:"diagnostics,omitempty"`
	Errors       []string       `json:"errors,omitempty"`
}

func toolCalls(resp *ai.Response) []jsonToolCall {
	out := make([]jsonToolCall, 0, len(resp.ToolCalls))
	for _, c := range resp.ToolCalls {
		out = append(out, jsonToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	return out
}

// jsonFormatter collects all output and writes a single JSON object at the end.
type jsonFormatter struct {
	out     io.Writer
	verbose bool
	result  jsonOutput
}

func (f *jsonFormatter) start()        {}
func (f *jsonFormatter) text(s string) {}
func (f *jsonFormatter) block(typ block.Type, payload any) {
	f.result.Blocks = append(f.result.Blocks, jsonBlock{Type: typ.String(), Data: payload})
}
func (f *jsonFormatter) retry(ai.RetryInfo) { f.result.Retries++ }
func (f *jsonFormatter) diagnostic(err error) {
	if f.verbose {
		f.result.Diagnostics = append(f.result.Diagnostics, err.Error())
	}
}
func (f *jsonFormatter) err(e error) { f.result.Errors = append(f.result.Errors, e.Error()) }
func (f *jsonFormatter) end(resp *ai.Response) {
	f.result.ID = resp.ID
	f.result.Model = resp.Model
	f.result.Text = resp.Text
	f.result.ToolCalls = toolCalls(resp)
	f.result.FinishReason = resp.FinishReason
	f.result.Outcome = resp.Outcome.String()
	if resp.Usage != (ai.Usage{}) {
		usage := resp.Usage
		f.result.Usage = &usage
	}
	writeJSON(f.out, f.result)
}

// streamJSONFormatter outputs one JSON line per event.
type streamJSONFormatter struct {
	out     io.Writer
	verbose bool
}

type streamEvent struct {
	Type         string         `json:"type"`
	Text         string         `json:"text,omitempty"`
	Block        string         `json:"block,omitempty"`
	Data         any            `json:"data,omitempty"`
	Attempt      int            `json:"attempt,omitempty"`
	DelayMS      int64          `json:"delay_ms,omitempty"`
	ToolCalls    []jsonToolCall `json:"tool_calls,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Outcome      string         `json:"outcome,omitempty"`
	Error        string         `json:"error,omitempty"`
}

func (f *streamJSONFormatter) start() {
	writeJSON(f.out, streamEvent{Type: "start"})
}

func (f *streamJSONFormatter) text(s string) {
	writeJSON(f.out, streamEvent{Type: "text", Text: s})
}

func (f *streamJSONFormatter) block(typ block.Type, payload any) {
	writeJSON(f.out, streamEvent{Type: "block", Block: typ.String(), Data: payload})
}

func (f *streamJSONFormatter) retry(info ai.RetryInfo) {
	ev := streamEvent{Type: "retry", Attempt: info.Attempt, DelayMS: info.Delay.Milliseconds()}
	if info.Err != nil {
		ev.Error = info.Err.Error()
	}
	writeJSON(f.out, ev)
}

func (f *streamJSONFormatter) diagnostic(err error) {
	if f.verbose {
		writeJSON(f.out, streamEvent{Type: "diagnostic", Error: err.Error()})
	}
}

func (f *streamJSONFormatter) err(e error) {
	writeJSON(f.out, streamEvent{Type: "error", Error: e.Error()})
}

func (f *streamJSONFormatter) end(resp *ai.Response) {
	writeJSON(f.out, streamEvent{
		Type:         "end",
		ToolCalls:    toolCalls(resp),
		FinishReason: resp.FinishReason,
		Outcome:      resp.Outcome.String(),
	})
}

func writeJSON(w io.Writer, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintln(w, string(data))
}

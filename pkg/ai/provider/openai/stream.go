// ABOUTME: Stream orchestrator: reads SSE chunks, demultiplexes blocks, accumulates tool calls
// ABOUTME: One goroutine per stream pushes typed events onto a bounded ai.EventStream

package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mailru/easyjson"

	cslog "github.com/mauromedda/chatstream/internal/log"
	"github.com/mauromedda/chatstream/pkg/ai"
	"github.com/mauromedda/chatstream/pkg/ai/block"
	"github.com/mauromedda/chatstream/pkg/ai/internal/sse"
	"github.com/mauromedda/chatstream/pkg/ai/toolcall"
)

// ChunkError reports an SSE event whose data is not a valid chunk.
type ChunkError struct {
	Data string
	Err  error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("malformed chunk: %v", e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

// errStopped means the stream can no longer accept events.
var errStopped = errors.New("stream stopped")

// ConsumeOption configures Consume.
type ConsumeOption func(*consumeConfig)

type consumeConfig struct {
	bufferSize   int
	sentinel     byte
	maxLineBytes int
}

func defaultConsumeConfig() consumeConfig {
	return consumeConfig{
		bufferSize:   ai.DefaultBufferSize,
		sentinel:     block.DefaultSentinel,
		maxLineBytes: sse.DefaultMaxLineBytes,
	}
}

// WithBufferSize sets the event buffer of the returned stream.
func WithBufferSize(n int) ConsumeOption {
	return func(c *consumeConfig) { c.bufferSize = n }
}

// WithSentinel sets the byte delimiting out-of-band blocks.
func WithSentinel(b byte) ConsumeOption {
	return func(c *consumeConfig) { c.sentinel = b }
}

// WithMaxLineBytes bounds a single SSE line; longer lines are skipped.
func WithMaxLineBytes(n int) ConsumeOption {
	return func(c *consumeConfig) { c.maxLineBytes = n }
}

// Consume runs the read loop over an already-open response body and returns
// the stream of typed events. If body is an io.Closer it is closed when the
// loop exits, or as soon as ctx is cancelled to unblock a pending read.
func Consume(ctx context.Context, body io.Reader, opts ...ConsumeOption) *ai.EventStream {
	cfg := defaultConsumeConfig()
	for _, o := range opts {
		o(&cfg)
	}
	stream := ai.NewEventStream(cfg.bufferSize)
	go newReadLoop(cfg, stream).run(ctx, body)
	return stream
}

// readLoop owns all per-stream state; it is used by a single goroutine.
type readLoop struct {
	stream     *ai.EventStream
	demux      *block.Demuxer
	calls      *toolcall.Accumulator
	sseOpt     []sse.Option
	resp       ai.Response
	text       strings.Builder
	pending    string // unclosed block carried to the next content delta
	maxPending int
}

func newReadLoop(cfg consumeConfig, stream *ai.EventStream) *readLoop {
	maxPending := cfg.maxLineBytes
	if maxPending <= 0 {
		maxPending = sse.DefaultMaxLineBytes
	}
	return &readLoop{
		stream:     stream,
		demux:      block.New(block.WithSentinel(cfg.sentinel)),
		calls:      toolcall.New(),
		sseOpt:     []sse.Option{sse.WithMaxLineBytes(cfg.maxLineBytes)},
		maxPending: maxPending,
	}
}

func (l *readLoop) run(parent context.Context, body io.Reader) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	if c, ok := body.(io.Closer); ok {
		context.AfterFunc(ctx, func() { _ = c.Close() })
	}

	reader := sse.NewReader(body, l.sseOpt...)
	for {
		ev, err := reader.Next(ctx)
		if err != nil {
			switch {
			case parent.Err() != nil:
				l.cancelled()
			case errors.Is(err, io.EOF):
				cslog.Debug("stream: transport ended without [DONE]")
				l.end(ctx)
			default:
				l.fail(ctx, fmt.Errorf("reading stream: %w", err))
			}
			return
		}

		if ev.Done {
			l.end(ctx)
			return
		}

		if err := l.handleEvent(ctx, ev); err != nil {
			if parent.Err() != nil || errors.Is(err, errStopped) {
				l.cancelled()
			} else {
				l.fail(ctx, err)
			}
			return
		}
	}
}

func (l *readLoop) send(ctx context.Context, ev ai.Event) error {
	if !l.stream.Send(ctx, ev) {
		return errStopped
	}
	return nil
}

func (l *readLoop) diagnose(ctx context.Context, err error) error {
	return l.send(ctx, ai.Event{Type: ai.EventDiagnostic, Err: err})
}

// handleEvent processes one SSE event. A non-nil error ends the stream.
func (l *readLoop) handleEvent(ctx context.Context, ev sse.Event) error {
	if strings.TrimSpace(ev.Data) == "" {
		return nil
	}

	var chunk chatCompletionChunk
	if err := easyjson.Unmarshal([]byte(ev.Data), &chunk); err != nil {
		cslog.Warn("stream: skipping malformed chunk: %v (data: %s)", err, cslog.Preview(ev.Data))
		return l.diagnose(ctx, &ChunkError{Data: ev.Data, Err: err})
	}
	if chunk.Error != nil {
		return chunk.Error.upstream()
	}

	if chunk.ID != "" && l.resp.ID == "" {
		l.resp.ID = chunk.ID
	}
	if chunk.Model != "" {
		l.resp.Model = chunk.Model
	}
	if chunk.Usage != nil {
		l.resp.Usage = ai.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
			TotalTokens:  chunk.Usage.TotalTokens,
		}
	}

	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" {
			if err := l.handleContent(ctx, choice.Delta.Content); err != nil {
				return err
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			delta := toolcall.Delta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
			l.calls.Add(delta)
			if err := l.send(ctx, ai.Event{Type: ai.EventToolCallDelta, ToolCall: &delta}); err != nil {
				return err
			}
		}

		// Surfaced even when the chunk carries no text.
		if choice.FinishReason != "" {
			l.resp.FinishReason = choice.FinishReason
			if err := l.send(ctx, ai.Event{Type: ai.EventFinish, Text: choice.FinishReason}); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleContent splits text into visible pieces and blocks, emitting them in
// source order. A block whose closing sentinel has not arrived yet waits for
// the next delta, up to maxPending bytes. An ERROR block ends the stream.
func (l *readLoop) handleContent(ctx context.Context, text string) error {
	text = l.pending + text
	ready, pending := l.demux.Split(text)
	if len(pending) > l.maxPending {
		cslog.Warn("stream: unclosed block exceeds %d bytes; emitting as text", l.maxPending)
		ready, pending = text, ""
	}
	l.pending = pending
	return l.process(ctx, ready)
}

func (l *readLoop) process(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	res := l.demux.Process(text)

	for _, err := range res.Errs {
		if sendErr := l.diagnose(ctx, err); sendErr != nil {
			return sendErr
		}
	}

	prev := 0
	for i, b := range res.Blocks {
		pos := res.Positions[i]
		if err := l.emitText(ctx, res.Visible[prev:pos]); err != nil {
			return err
		}
		prev = pos
		if err := l.emitBlock(ctx, b); err != nil {
			return err
		}
	}
	return l.emitText(ctx, res.Visible[prev:])
}

func (l *readLoop) emitText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	l.text.WriteString(text)
	return l.send(ctx, ai.Event{Type: ai.EventContent, Text: text})
}

func (l *readLoop) emitBlock(ctx context.Context, b block.Block) error {
	var typ ai.EventType
	switch b.Type {
	case block.TypeKnowledgeRefs:
		typ = ai.EventKnowledgeRefs
	case block.TypeMCPTool, block.TypeMCPToolPending:
		typ = ai.EventMCPTool
	case block.TypeOfficeToolCall:
		typ = ai.EventOfficeToolCall
	case block.TypeThinking:
		typ = ai.EventThinking
	case block.TypeOfficeDocUpdated:
		typ = ai.EventDocumentUpdated
	case block.TypeError:
		return b.Error.Err()
	default:
		return l.diagnose(ctx, &block.UnknownTagError{Tag: b.Type.String()})
	}
	return l.send(ctx, ai.Event{Type: typ, Block: &b})
}

// end finalizes tool calls and completes the stream normally. A block that
// never closed is emitted as literal text.
func (l *readLoop) end(ctx context.Context) {
	if l.pending != "" {
		pending := l.pending
		l.pending = ""
		cslog.Debug("stream: unclosed block at end of stream (%s)", cslog.Preview(pending))
		if err := l.process(ctx, pending); err != nil {
			if errors.Is(err, errStopped) {
				l.cancelled()
			} else {
				l.fail(ctx, err)
			}
			return
		}
	}

	calls, errs := l.calls.Finalize()
	for _, err := range errs {
		if l.diagnose(ctx, err) != nil {
			l.cancelled()
			return
		}
	}
	l.resp.ToolCalls = calls
	l.resp.Text = l.text.String()
	l.resp.Outcome = ai.OutcomeCompleted
	cslog.Debug("stream: completed (finish=%q, %d tool calls, %d chars)", l.resp.FinishReason, len(calls), len(l.resp.Text))
	l.stream.Finish(&l.resp)
}

func (l *readLoop) fail(ctx context.Context, err error) {
	cslog.Warn("stream: failed: %v", err)
	l.resp.Text = l.text.String()
	l.stream.FinishWithError(ctx, &l.resp, err)
}

func (l *readLoop) cancelled() {
	cslog.Debug("stream: cancelled")
	l.resp.Text = l.text.String()
	l.stream.Cancel(&l.resp)
}

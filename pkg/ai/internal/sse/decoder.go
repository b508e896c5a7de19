// ABOUTME: Incremental Server-Sent Events decoder fed with arbitrary byte chunks
// ABOUTME: Holds back split runes and partial lines; emits events only on blank-line terminators

package sse

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	cslog "github.com/mauromedda/chatstream/internal/log"
)

// DoneMarker is the data payload that terminates an OpenAI-style stream.
const DoneMarker = "[DONE]"

// DefaultMaxLineBytes bounds a single buffered line.
const DefaultMaxLineBytes = 1024 * 1024

// Event represents a single Server-Sent Event.
type Event struct {
	Type string
	Data string
	ID   string
	Done bool // Data is the [DONE] marker
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxLineBytes overrides the maximum length of one line.
// Longer lines are discarded up to their terminator.
func WithMaxLineBytes(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// Decoder turns raw byte chunks into complete events. It is not safe for
// concurrent use; one Decoder belongs to one stream.
type Decoder struct {
	text    transform.Transformer
	pending []byte // undecoded tail (incomplete UTF-8 sequence)
	maxLine int

	line    strings.Builder
	skip    bool // discarding an oversized line until its terminator
	afterCR bool // last terminator was \r; a leading \n belongs to it

	ev        Event
	dataLines []string
	hasData   bool
}

// NewDecoder creates a Decoder. A leading UTF-8 BOM is stripped.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{
		text:    unicode.BOMOverride(unicode.UTF8.NewDecoder()),
		maxLine: DefaultMaxLineBytes,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Feed consumes one chunk and returns the events it completed, in order.
func (d *Decoder) Feed(chunk []byte) []Event {
	if len(chunk) == 0 {
		return nil
	}
	return d.scan(d.decode(chunk, false))
}

// Flush ends the stream: held-back bytes are decoded, the unterminated last
// line is processed, and the pending event is returned if it has data.
// The Decoder is reset afterwards.
func (d *Decoder) Flush() (Event, bool) {
	defer d.reset()

	// Text decoded here never holds a line break (only an incomplete rune
	// was pending), so scanning it cannot complete an event.
	d.scan(d.decode(nil, true))
	if d.line.Len() > 0 || d.skip {
		d.endLine()
	}
	if !d.hasData {
		return Event{}, false
	}
	return d.dispatch(), true
}

// decode converts bytes to text, keeping an incomplete trailing rune for
// the next call unless atEOF.
func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := append(d.pending, chunk...)
	d.pending = nil

	var out bytes.Buffer
	dst := make([]byte, len(src)+16)
	for {
		nDst, nSrc, err := d.text.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) {
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
			continue
		}
		if errors.Is(err, transform.ErrShortSrc) && len(src) > 0 {
			d.pending = bytes.Clone(src)
		}
		return out.String()
	}
}

// scan splits text into lines; the last unterminated line stays buffered.
func (d *Decoder) scan(text string) []Event {
	if d.afterCR && len(text) > 0 {
		d.afterCR = false
		if text[0] == '\n' {
			text = text[1:]
		}
	}

	var events []Event
	for len(text) > 0 {
		i := strings.IndexAny(text, "\r\n")
		if i < 0 {
			d.appendLine(text)
			break
		}

		d.appendLine(text[:i])
		next := i + 1
		if text[i] == '\r' {
			switch {
			case next < len(text) && text[next] == '\n':
				next++
			case next == len(text):
				d.afterCR = true
			}
		}
		text = text[next:]

		if ev, ok := d.endLine(); ok {
			events = append(events, ev)
		}
	}
	return events
}

// appendLine adds text to the current line, switching to skip mode when the
// line outgrows the limit.
func (d *Decoder) appendLine(s string) {
	if s == "" || d.skip {
		return
	}
	if d.line.Len()+len(s) > d.maxLine {
		cslog.Warn("sse: discarding line longer than %d bytes", d.maxLine)
		d.line.Reset()
		d.skip = true
		return
	}
	d.line.WriteString(s)
}

// endLine interprets the completed line and reports a dispatched event.
func (d *Decoder) endLine() (Event, bool) {
	if d.skip {
		d.skip = false
		d.line.Reset()
		return Event{}, false
	}

	line := d.line.String()
	d.line.Reset()

	if line == "" {
		if !d.hasData {
			d.ev = Event{}
			return Event{}, false
		}
		return d.dispatch(), true
	}

	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	field, value := parseLine(line)
	switch field {
	case "data":
		d.dataLines = append(d.dataLines, value)
		d.hasData = true
	case "event":
		d.ev.Type = value
	case "id":
		d.ev.ID = value
	default:
		cslog.Debug("sse: ignoring field %q", cslog.Preview(field))
	}
	return Event{}, false
}

// dispatch builds the pending event and clears per-event state.
func (d *Decoder) dispatch() Event {
	ev := d.ev
	ev.Data = strings.Join(d.dataLines, "\n")
	ev.Done = strings.TrimSpace(ev.Data) == DoneMarker

	d.ev = Event{}
	d.dataLines = d.dataLines[:0]
	d.hasData = false
	return ev
}

func (d *Decoder) reset() {
	d.text.Reset()
	d.pending = nil
	d.line.Reset()
	d.skip = false
	d.afterCR = false
	d.ev = Event{}
	d.dataLines = nil
	d.hasData = false
}

// parseLine splits an SSE line into field name and value.
func parseLine(line string) (string, string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}

	// Strip optional leading space after colon.
	value = strings.TrimPrefix(value, " ")
	return field, value
}

// ABOUTME: Pull-style SSE reader over an io.Reader built on the incremental Decoder
// ABOUTME: Checks the context before every body read; flushes the residual event once at EOF

package sse

import (
	"context"
	"io"
)

const readBufferSize = 32 * 1024

// Reader parses Server-Sent Events from an io.Reader.
type Reader struct {
	r     io.Reader
	dec   *Decoder
	buf   []byte
	queue []Event
	eof   bool
}

// NewReader creates a new SSE reader from the given io.Reader.
func NewReader(r io.Reader, opts ...Option) *Reader {
	return &Reader{
		r:   r,
		dec: NewDecoder(opts...),
		buf: make([]byte, readBufferSize),
	}
}

// Next returns the next SSE event in arrival order.
// Returns io.EOF once the body is exhausted and the residual event (if any)
// has been returned. Returns ctx.Err() if ctx is done before a read.
func (r *Reader) Next(ctx context.Context) (Event, error) {
	for {
		if len(r.queue) > 0 {
			ev := r.queue[0]
			r.queue = r.queue[1:]
			return ev, nil
		}
		if r.eof {
			return Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}

		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.queue = append(r.queue, r.dec.Feed(r.buf[:n])...)
		}
		switch {
		case err == io.EOF:
			r.eof = true
			if ev, ok := r.dec.Flush(); ok {
				r.queue = append(r.queue, ev)
			}
		case err != nil:
			return Event{}, err
		}
	}
}

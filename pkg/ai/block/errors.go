// ABOUTME: Error types produced while demultiplexing out-of-band blocks
// ABOUTME: DecodeError and UnknownTagError are recoverable; UpstreamError terminates a stream

package block

import "fmt"

// DecodeError reports a block whose JSON body could not be decoded.
type DecodeError struct {
	Type Type
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s block: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnknownTagError reports a well-formed block with an unrecognized tag.
type UnknownTagError struct {
	Tag string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown block tag %q", e.Tag)
}

// UpstreamError is an ERROR block surfaced as the terminal error of a stream.
type UpstreamError struct {
	Message string
	Code    string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream error (%s): %s", e.Code, e.Message)
	}
	return "upstream error: " + e.Message
}

// Err converts the payload into an *UpstreamError.
func (i ErrorInfo) Err() *UpstreamError {
	msg := i.Message
	if msg == "" {
		msg = "unspecified error"
	}
	return &UpstreamError{Message: msg, Code: i.Code}
}

// ABOUTME: Best-effort JSON repair for streamed tool call arguments
// ABOUTME: Strips comments and trailing commas, closes open strings/objects/arrays, validates once

package partjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotObject is returned when the arguments are valid JSON but not an object.
var ErrNotObject = errors.New("arguments are not a JSON object")

// RepairError reports arguments that stayed invalid after repair.
type RepairError struct {
	Input    string
	Repaired string
	Err      error
}

func (e *RepairError) Error() string {
	return "unrecoverable JSON arguments: " + e.Err.Error()
}

func (e *RepairError) Unwrap() error { return e.Err }

// Repair returns s as a compact JSON object. Comments are stripped first.
// If the result does not parse, trailing commas are removed, an open string
// is closed and open objects/arrays are closed, then it is parsed once more.
// An empty input yields {}.
func Repair(s string) (json.RawMessage, error) {
	// Trailing whitespace may belong to an open string; completeJSON trims
	// it only outside strings.
	cleaned := strings.TrimLeft(StripComments(s), " \t\r\n")
	if strings.TrimRight(cleaned, " \t\r\n") == "" {
		return json.RawMessage(`{}`), nil
	}

	if out, err := compactObject(cleaned); err == nil {
		return out, nil
	} else if errors.Is(err, ErrNotObject) {
		return nil, err
	}

	repaired := removeTrailingCommas(completeJSON(removeTrailingCommas(cleaned)))
	out, err := compactObject(repaired)
	if err != nil {
		if errors.Is(err, ErrNotObject) {
			return nil, err
		}
		return nil, &RepairError{Input: s, Repaired: repaired, Err: err}
	}
	return out, nil
}

// Parse attempts to parse potentially incomplete JSON into a map.
// Returns an empty map on total failure; suited to rendering partial
// arguments while they stream.
func Parse(s string) map[string]any {
	raw, err := Repair(s)
	if err != nil {
		return map[string]any{}
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil || result == nil {
		return map[string]any{}
	}
	return result
}

// compactObject validates s and requires a top-level object.
func compactObject(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, err
	}
	if buf.Len() == 0 || buf.Bytes()[0] != '{' {
		return nil, ErrNotObject
	}
	return json.RawMessage(buf.Bytes()), nil
}

// StripComments removes // line comments and /* */ block comments that are
// not inside string literals. An unterminated block comment runs to the end.
func StripComments(s string) string {
	if !strings.Contains(s, "/") {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			sb.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		if c == '"' {
			inString = true
			sb.WriteByte(c)
			continue
		}

		if c == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				end := strings.IndexAny(s[i:], "\r\n")
				if end < 0 {
					return sb.String()
				}
				i += end - 1
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					return sb.String()
				}
				i += 2 + end + 1
				continue
			}
		}

		sb.WriteByte(c)
	}

	return sb.String()
}

// removeTrailingCommas drops commas (outside strings) whose next
// non-whitespace character closes an object or array, or ends the input.
func removeTrailingCommas(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			sb.WriteByte(c)
			continue
		}

		if c == '"' {
			inString = true
		}

		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j == len(s) || s[j] == '}' || s[j] == ']' {
				continue
			}
		}

		sb.WriteByte(c)
	}

	return sb.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// completeJSON attempts to close any open JSON structures.
func completeJSON(s string) string {
	var closers []byte
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		switch c {
		case '{':
			closers = append(closers, '}')
		case '[':
			closers = append(closers, ']')
		case '}', ']':
			if len(closers) > 0 {
				closers = closers[:len(closers)-1]
			}
		}
	}

	result := s
	if !inString {
		result = strings.TrimRight(s, " \t\r\n")
	}

	// Close open string. If the last character was a backslash (escaped is true),
	// appending just `"` would produce `\"` which escapes the closing quote.
	// Add an extra backslash to properly terminate the escape sequence.
	if inString {
		if escaped {
			result += `\`
		}
		result += `"`
	}

	inObject := len(closers) > 0 && closers[len(closers)-1] == '}'
	trimmed := trimTrailingJunk(result, inObject)

	// Close open structures in reverse order
	var sb strings.Builder
	sb.WriteString(trimmed)
	for i := len(closers) - 1; i >= 0; i-- {
		sb.WriteByte(closers[i])
	}

	return sb.String()
}

// trimTrailingJunk removes trailing characters that would invalidate JSON
// once the open structures are closed: trailing commas and colons, partial
// true/false/null literals and, inside an object, a key left without its value.
func trimTrailingJunk(s string, inObject bool) string {
	s = trimTrailingPunctuation(s)

	// Only partial prefixes are stripped; complete literals are valid JSON.
	incompleteLiterals := []string{"tru", "tr", "t", "fals", "fal", "fa", "f", "nul", "nu", "n"}
	for _, lit := range incompleteLiterals {
		if hasLiteralSuffix(s, lit) {
			s = trimTrailingPunctuation(s[:len(s)-len(lit)])
			break
		}
	}

	if !inObject {
		return s
	}
	return dropDanglingKey(s)
}

// hasLiteralSuffix reports whether s ends with lit as a standalone token.
func hasLiteralSuffix(s, lit string) bool {
	if !strings.HasSuffix(s, lit) {
		return false
	}
	rest := strings.TrimRight(s[:len(s)-len(lit)], " \t\r\n")
	if rest == "" {
		return false
	}
	switch rest[len(rest)-1] {
	case ':', ',', '[':
		return true
	}
	return false
}

// dropDanglingKey removes a trailing string if it is preceded by '{' or ','.
func dropDanglingKey(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	if len(s) < 2 || s[len(s)-1] != '"' {
		return s
	}
	openIdx := strings.LastIndex(s[:len(s)-1], `"`)
	for openIdx > 0 && s[openIdx-1] == '\\' {
		openIdx = strings.LastIndex(s[:openIdx-1], `"`)
	}
	if openIdx < 0 {
		return s
	}
	prefix := strings.TrimRight(s[:openIdx], " \t\r\n")
	if prefix == "" {
		return s
	}
	switch prefix[len(prefix)-1] {
	case '{':
		return prefix
	case ',':
		return strings.TrimRight(prefix[:len(prefix)-1], " \t\r\n")
	}
	return s
}

// trimTrailingPunctuation strips trailing commas, colons and whitespace.
func trimTrailingPunctuation(s string) string {
	for len(s) > 0 {
		last := s[len(s)-1]
		if last == ',' || last == ':' || isSpace(last) {
			s = s[:len(s)-1]
			continue
		}
		break
	}
	return s
}

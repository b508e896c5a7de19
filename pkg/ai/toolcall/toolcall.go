// ABOUTME: Tool call accumulator: merges streamed per-index fragments into complete calls
// ABOUTME: Finalize repairs argument JSON and returns calls in ascending index order

package toolcall

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	cslog "github.com/mauromedda/chatstream/internal/log"
	"github.com/mauromedda/chatstream/pkg/ai/partjson"
)

// Delta is one streamed tool call fragment. Index identifies the call;
// ID and Name may be empty on any fragment after the first.
type Delta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Accumulated is the in-progress state of one tool call.
type Accumulated struct {
	Index         int
	ID            string
	Name          string
	ArgumentsText string
	Complete      bool
}

// Call is a finalized tool call. Arguments always holds a JSON object.
type Call struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// IncompleteError reports a tool call that never received an ID or a name.
type IncompleteError struct {
	Index int
	ID    string
	Name  string
}

func (e *IncompleteError) Error() string {
	var missing []string
	if e.ID == "" {
		missing = append(missing, "id")
	}
	if e.Name == "" {
		missing = append(missing, "name")
	}
	return fmt.Sprintf("tool call %d missing %s", e.Index, strings.Join(missing, " and "))
}

// ArgumentsError reports a tool call whose arguments could not be repaired
// into a JSON object.
type ArgumentsError struct {
	Index int
	ID    string
	Name  string
	Text  string
	Err   error
}

func (e *ArgumentsError) Error() string {
	return fmt.Sprintf("tool call %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *ArgumentsError) Unwrap() error { return e.Err }

// Accumulator collects tool call fragments for a single stream.
// It is not safe for concurrent use.
type Accumulator struct {
	calls map[int]*Accumulated
	args  map[int]*strings.Builder
}

// New creates an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{
		calls: make(map[int]*Accumulated),
		args:  make(map[int]*strings.Builder),
	}
}

// Add merges a fragment. The first non-empty ID and Name for an index win;
// argument fragments are appended in arrival order.
func (a *Accumulator) Add(d Delta) {
	acc, ok := a.calls[d.Index]
	if !ok {
		acc = &Accumulated{Index: d.Index}
		a.calls[d.Index] = acc
		a.args[d.Index] = &strings.Builder{}
	}
	if acc.ID == "" && d.ID != "" {
		acc.ID = d.ID
	}
	if acc.Name == "" && d.Name != "" {
		acc.Name = d.Name
	}
	if d.Arguments != "" {
		a.args[d.Index].WriteString(d.Arguments)
	}
}

// Len returns the number of distinct tool call indices seen.
func (a *Accumulator) Len() int {
	return len(a.calls)
}

// Get returns a snapshot of the call at index.
func (a *Accumulator) Get(index int) (Accumulated, bool) {
	acc, ok := a.calls[index]
	if !ok {
		return Accumulated{}, false
	}
	snap := *acc
	snap.ArgumentsText = a.args[index].String()
	return snap, true
}

// Finalize assembles every accumulated call in ascending index order.
// Calls missing an ID or name, or whose arguments cannot be repaired, are
// dropped and reported in the returned errors; the others are unaffected.
func (a *Accumulator) Finalize() ([]Call, []error) {
	indices := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	var calls []Call
	var errs []error
	for _, idx := range indices {
		acc := a.calls[idx]
		text := a.args[idx].String()
		acc.ArgumentsText = text

		if acc.ID == "" || acc.Name == "" {
			cslog.Warn("toolcall: skipping call %d: missing id or name (id=%q name=%q)", idx, acc.ID, acc.Name)
			errs = append(errs, &IncompleteError{Index: idx, ID: acc.ID, Name: acc.Name})
			continue
		}

		args, err := partjson.Repair(text)
		if err != nil {
			cslog.Warn("toolcall: dropping call %d (%s): %v (arguments: %s)", idx, acc.Name, err, cslog.Preview(text))
			errs = append(errs, &ArgumentsError{Index: idx, ID: acc.ID, Name: acc.Name, Text: text, Err: err})
			continue
		}

		acc.Complete = true
		calls = append(calls, Call{ID: acc.ID, Name: acc.Name, Arguments: args})
	}
	return calls, errs
}

// Reset discards all accumulated state.
func (a *Accumulator) Reset() {
	clear(a.calls)
	clear(a.args)
}

// ABOUTME: Merge-by-index reducer for streaming tool-call fragments
// ABOUTME: Accumulates partial tool calls across deltas and finalizes them once the turn ends

package model

import (
	"encoding/json"
	"fmt"
)

// ToolCallFragment is a partial, streaming-accumulated representation of one
// tool invocation. Index is the merge key: fragments for the same logical
// call arrive across multiple deltas.
type ToolCallFragment struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// MergeFragment folds one tool-call delta into the accumulated fragments.
// On first sight of an index a new fragment is created; on subsequent deltas
// for the same index, ID and Name are set once if newly present and Arguments
// is appended to, never replaced. Returns the updated slice; prior is not
// mutated when the delta introduces a new index.
func MergeFragment(prior []ToolCallFragment, delta ToolCallDelta) []ToolCallFragment {
	for i := range prior {
		if prior[i].Index != delta.Index {
			continue
		}
		if prior[i].ID == "" && delta.ID != "" {
			prior[i].ID = delta.ID
		}
		if prior[i].Name == "" && delta.Name != "" {
			prior[i].Name = delta.Name
		}
		prior[i].Arguments += delta.Arguments
		return prior
	}

	return append(prior, ToolCallFragment{
		Index:     delta.Index,
		ID:        delta.ID,
		Name:      delta.Name,
		Arguments: delta.Arguments,
	})
}

// FinalizeFragments converts accumulated fragments into ToolCalls once the
// model has signaled end of turn. Argument text must parse as JSON; an empty
// argument string finalizes as an empty object.
func FinalizeFragments(fragments []ToolCallFragment) ([]ToolCall, error) {
	calls := make([]ToolCall, 0, len(fragments))
	for _, frag := range fragments {
		if frag.Name == "" {
			return nil, fmt.Errorf("tool call at index %d has no name", frag.Index)
		}

		args := frag.Arguments
		if args == "" {
			args = "{}"
		}
		if !json.Valid([]byte(args)) {
			return nil, fmt.Errorf("tool call %q at index %d has malformed arguments", frag.Name, frag.Index)
		}

		calls = append(calls, ToolCall{
			ID:   frag.ID,
			Type: "function",
			Function: FunctionCall{
				Name:      frag.Name,
				Arguments: args,
			},
		})
	}
	return calls, nil
}

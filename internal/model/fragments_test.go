// ABOUTME: Tests for the tool-call fragment reducer
// ABOUTME: Covers merge-by-index accumulation, interleaving and finalization rules

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFragment_NewIndex(t *testing.T) {
	got := MergeFragment(nil, ToolCallDelta{Index: 0, ID: "call-1", Name: "search_directory", Arguments: `{"qu`})

	require.Len(t, got, 1)
	assert.Equal(t, "call-1", got[0].ID)
	assert.Equal(t, "search_directory", got[0].Name)
	assert.Equal(t, `{"qu`, got[0].Arguments)
}

func TestMergeFragment_AppendsArguments(t *testing.T) {
	frags := MergeFragment(nil, ToolCallDelta{Index: 0, ID: "call-1", Name: "search_directory", Arguments: `{"query":`})
	frags = MergeFragment(frags, ToolCallDelta{Index: 0, Arguments: `"rust"}`})

	require.Len(t, frags, 1)
	assert.Equal(t, `{"query":"rust"}`, frags[0].Arguments)
	// ID and Name set once, not overwritten by empty deltas
	assert.Equal(t, "call-1", frags[0].ID)
	assert.Equal(t, "search_directory", frags[0].Name)
}

func TestMergeFragment_IDAndNameSetOnce(t *testing.T) {
	frags := MergeFragment(nil, ToolCallDelta{Index: 0, ID: "call-1", Name: "get_profile"})
	frags = MergeFragment(frags, ToolCallDelta{Index: 0, ID: "call-other", Name: "other_name"})

	require.Len(t, frags, 1)
	assert.Equal(t, "call-1", frags[0].ID)
	assert.Equal(t, "get_profile", frags[0].Name)
}

func TestMergeFragment_InterleavedIndexes(t *testing.T) {
	var frags []ToolCallFragment
	frags = MergeFragment(frags, ToolCallDelta{Index: 0, ID: "call-1", Name: "get_profile", Arguments: `{"account`})
	frags = MergeFragment(frags, ToolCallDelta{Index: 1, ID: "call-2", Name: "holder_rank", Arguments: `{"acc`})
	frags = MergeFragment(frags, ToolCallDelta{Index: 0, Arguments: `Id":"a"}`})
	frags = MergeFragment(frags, ToolCallDelta{Index: 1, Arguments: `ountId":"b"}`})

	require.Len(t, frags, 2)
	assert.Equal(t, `{"accountId":"a"}`, frags[0].Arguments)
	assert.Equal(t, `{"accountId":"b"}`, frags[1].Arguments)
}

func TestFinalizeFragments_ValidCalls(t *testing.T) {
	frags := []ToolCallFragment{
		{Index: 0, ID: "call-1", Name: "search_directory", Arguments: `{"query":"go"}`},
		{Index: 1, ID: "call-2", Name: "holder_rank", Arguments: ""},
	}

	calls, err := FinalizeFragments(frags)
	require.NoError(t, err)
	require.Len(t, calls, 2)

	assert.Equal(t, "function", calls[0].Type)
	assert.Equal(t, "search_directory", calls[0].Function.Name)
	assert.Equal(t, `{"query":"go"}`, calls[0].Function.Arguments)

	// Empty argument text finalizes as an empty object
	assert.Equal(t, "{}", calls[1].Function.Arguments)
}

func TestFinalizeFragments_MissingName(t *testing.T) {
	frags := []ToolCallFragment{{Index: 0, ID: "call-1", Arguments: `{}`}}

	_, err := FinalizeFragments(frags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name")
}

func TestFinalizeFragments_MalformedArguments(t *testing.T) {
	frags := []ToolCallFragment{{Index: 0, ID: "call-1", Name: "get_profile", Arguments: `{"truncated`}}

	_, err := FinalizeFragments(frags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestFinalizeFragments_Empty(t *testing.T) {
	calls, err := FinalizeFragments(nil)
	require.NoError(t, err)
	assert.Empty(t, calls)
}

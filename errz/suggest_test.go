package errz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSuggestSimilar(t *testing.T) {
	got := SuggestSimilar("countr", []string{"counter", "count", "total", "Counter"})
	require.Equal(t, []Suggestion{
		{Value: "Counter", Distance: 1},
		{Value: "count", Distance: 1},
		{Value: "counter", Distance: 1},
	}, got)

	require.Empty(t, SuggestSimilar("ab", []string{"xyz"}))
	require.Empty(t, SuggestSimilar("", []string{"a"}))
	require.Empty(t, SuggestSimilar("same", []string{"same"}))
}

func TestFormatSuggestions(t *testing.T) {
	require.Equal(t, "", FormatSuggestions(nil))
	require.Equal(t, "did you mean total?", FormatSuggestions([]Suggestion{{Value: "total"}}))
	require.Equal(t, "did you mean one of: a, b?",
		FormatSuggestions([]Suggestion{{Value: "a"}, {Value: "b"}}))
}

func TestHintInFriendlyMessage(t *testing.T) {
	err := CompileErrorf(SourceLocation{Line: 1, Column: 8}, "undefined symbol totl")
	err.Hint = "did you mean total?"
	require.Contains(t, err.FriendlyErrorMessage(), " did you mean total?\n")
}

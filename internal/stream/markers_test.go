package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVisibleContent(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		final bool
		want  string
	}{
		{"plain", "Hello", false, "Hello"},
		{"marker block", "Answer.<<Q1?>> <<Q2?>>", true, "Answer."},
		{"stray close token", "a >> b", true, "a "},
		{"trailing open held back", "1 <", false, "1 "},
		{"trailing open kept when final", "1 <", true, "1 <"},
		{"trailing close held back", "x>", false, "x"},
		{"inner angle kept", "a < b", false, "a < b"},
		{"empty", "", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, VisibleContent(tc.text, tc.final))
		})
	}
}

func TestVisibleContentIdempotent(t *testing.T) {
	text := "Answer.<<Q1?>> <<Q2?>> <<Q3?>> <<Q4?>>"
	first := VisibleContent(text, true)
	require.Equal(t, first, VisibleContent(text, true))
	require.Equal(t, first, VisibleContent(first, true))
}

func TestRelatedQuestions(t *testing.T) {
	require.Equal(t,
		[]string{"Q1?", "Q2?", "Q3?"},
		RelatedQuestions("Answer.<<Q1?>> <<Q2?>> <<Q3?>> <<Q4?>>"),
	)
	require.Equal(t,
		[]string{"What next?", "Why?"},
		RelatedQuestions("x <<  What next? >> <<   >> <<Why?>>"),
	)
	require.Nil(t, RelatedQuestions("no markers at all"))
	require.Nil(t, RelatedQuestions("unterminated <<Q1"))
}

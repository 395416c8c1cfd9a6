package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageClone(t *testing.T) {
	orig := Message{
		ID:               "m1",
		Content:          "answer",
		SearchResults:    []SearchResult{{Title: "T", Link: "https://t.example"}},
		RelatedQuestions: []string{"Q1"},
		Attachments:      []string{"a.txt"},
	}

	c := orig.Clone()
	c.RelatedQuestions[0] = "changed"
	c.Attachments[0] = "changed.txt"

	require.Equal(t, "Q1", orig.RelatedQuestions[0])
	require.Equal(t, "a.txt", orig.Attachments[0])
	require.Same(t, &orig.SearchResults[0], &c.SearchResults[0])

	empty := Message{}.Clone()
	require.Nil(t, empty.RelatedQuestions)
	require.Nil(t, empty.Attachments)
}

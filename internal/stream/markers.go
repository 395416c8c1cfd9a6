package stream

import (
	"regexp"
	"strings"
)

const (
	markerOpen  = "<<"
	markerClose = ">>"

	// MaxRelatedQuestions caps how many marker spans become related questions
	MaxRelatedQuestions = 3
)

var relatedPattern = regexp.MustCompile(`<<([^>]+)>>`)

// VisibleContent returns the part of text shown to the user: everything before
// the first marker token. While the stream is still open (final == false) a
// single trailing '<' or '>' is held back, since it may be the first half of a
// marker token split across chunks.
func VisibleContent(text string, final bool) string {
	cut := len(text)
	if i := strings.Index(text, markerOpen); i >= 0 {
		cut = i
	}
	if i := strings.Index(text[:cut], markerClose); i >= 0 {
		cut = i
	}
	visible := text[:cut]

	if !final && cut == len(text) && visible != "" {
		if last := visible[len(visible)-1]; last == '<' || last == '>' {
			visible = visible[:len(visible)-1]
		}
	}
	return visible
}

// RelatedQuestions extracts up to MaxRelatedQuestions trimmed, non-empty
// marker spans from text, in order of appearance.
func RelatedQuestions(text string) []string {
	var questions []string
	for _, m := range relatedPattern.FindAllStringSubmatch(text, -1) {
		q := strings.TrimSpace(m[1])
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == MaxRelatedQuestions {
			break
		}
	}
	return questions
}

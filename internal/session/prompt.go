package session

import (
	"fmt"

	"github.com/young1lin/lorph/internal/models"
	"github.com/young1lin/lorph/internal/search"
)

// relatedQuestionsInstruction asks the model for the marker block the
// stream decoder strips from visible output
const relatedQuestionsInstruction = "\n\n[System: Add 3 related questions at the end in this format: <<Q1>> <<Q2>> <<Q3>>]"

const groundedTemplate = `
SYSTEM INSTRUCTION:
%s
You are Lorph, a helpful and smart AI assistant.
I have performed a web search for the user's query.

WEB SEARCH RESULTS:
%s

USER QUERY:
"%s"

INSTRUCTIONS:
1. Answer the user's query comprehensively using the information from the "WEB SEARCH RESULTS".
2. If the search results contain the answer, cite the sources implicitly (e.g., "According to Wikipedia..." or "Various sources suggest...").
3. If the search results are irrelevant, use your own knowledge but mention that search results were limited.
4. Keep the tone professional, helpful, and direct.
`

// BuildPrompt assembles the final user message of a turn.
//
// query is the raw text the user typed, content is that text with rendered
// attachments. With search results the model is told to answer from them;
// when a search found nothing it is told to use its own knowledge; without a
// search the content is sent behind a language directive. The related
// questions instruction is always appended.
func BuildPrompt(query, content string, searched bool, results []models.SearchResult) string {
	lang := LanguageDirective(query)

	var prompt string
	switch {
	case searched && len(results) > 0:
		prompt = fmt.Sprintf(groundedTemplate, lang, search.FormatContext(results), query)
	case searched:
		prompt = fmt.Sprintf("SYSTEM INSTRUCTION: %s\nUSER QUERY: \"%s\"\nGUIDANCE: Use internal knowledge. %s", lang, query, lang)
	default:
		prompt = fmt.Sprintf("%s\n\n%s", lang, content)
	}
	return prompt + relatedQuestionsInstruction
}

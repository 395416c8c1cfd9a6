package session

import (
	"strings"
	"unicode/utf8"
)

// smallTalk never triggers a search when it is the whole message
var smallTalk = map[string]struct{}{}

func init() {
	for _, s := range []string{
		"hi", "hello", "hey", "yo",
		"good morning", "good evening", "good afternoon",
		"how are you", "how r u", "sup",
		"سلام", "السلام عليكم", "مرحبا", "أهلا", "اهلين", "هلا",
		"صباح الخير", "مساء الخير", "كيف الحال", "شلونك",
		"thanks", "thank you", "ok", "okay", "cool",
		"شكرا", "طيب", "تمام", "حلو", "ماشي",
	} {
		smallTalk[s] = struct{}{}
	}
}

const (
	minSearchWords = 2
	minSearchRunes = 4
)

// ShouldSearch decides whether a message warrants a web search. Small talk,
// very short input and messages with attachments are answered without one.
func ShouldSearch(text string, attachments int) bool {
	if attachments > 0 {
		return false
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	if _, ok := smallTalk[normalized]; ok {
		return false
	}
	if len(strings.Split(normalized, " ")) < minSearchWords && utf8.RuneCountInString(normalized) < minSearchRunes {
		return false
	}
	return true
}

// isArabic reports whether text contains a character of the Arabic block
func isArabic(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return r >= 0x0600 && r <= 0x06FF
	}) >= 0
}

// LanguageDirective tells the model which language to answer in
func LanguageDirective(text string) string {
	if isArabic(text) {
		return "CRITICAL: The user is speaking Arabic. You MUST reply in Arabic (العربية)."
	}
	return "Reply in the same language as the user."
}

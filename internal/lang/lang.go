// Package lang detects the language of an utterance so the session can
// lock its response language on first contact.
package lang

import "strings"

const (
	English = "en"
	Hindi   = "hi"
)

// Hinglish function words that survive transcription intact. Two or
// more hits mark the utterance as Hindi.
var hindiKeywords = map[string]struct{}{
	"ko": {}, "bhejo": {}, "bhej": {}, "karo": {}, "kar": {},
	"mera": {}, "aapka": {}, "kitna": {}, "hai": {}, "ka": {},
	"ki": {}, "ke": {}, "se": {}, "me": {}, "par": {}, "pe": {},
}

// Detect returns the language code for an utterance. Devanagari script
// anywhere in the text decides immediately; otherwise romanized Hindi is
// recognized by counting Hinglish keywords.
func Detect(text string) string {
	if ContainsDevanagari(text) {
		return Hindi
	}

	hits := 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'")
		if _, ok := hindiKeywords[word]; ok {
			hits++
			if hits >= 2 {
				return Hindi
			}
		}
	}
	return English
}

// ContainsDevanagari reports whether any rune falls in the Devanagari
// Unicode block.
func ContainsDevanagari(text string) bool {
	for _, r := range text {
		if r >= 0x0900 && r <= 0x097F {
			return true
		}
	}
	return false
}

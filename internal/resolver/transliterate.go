package resolver

import "strings"

// Devanagari runes to Roman syllables. Consonants carry the inherent
// 'a' sound; the vowel signs and the virama below strip or replace it.
var devanagariToRoman = map[rune]string{
	'अ': "a", 'आ': "aa", 'इ': "i", 'ई': "ee", 'उ': "u", 'ऊ': "oo",
	'ऋ': "ri", 'ए': "e", 'ऐ': "ai", 'ओ': "o", 'औ': "au",

	'क': "ka", 'ख': "kha", 'ग': "ga", 'घ': "gha", 'ङ': "nga",
	'च': "cha", 'छ': "chha", 'ज': "ja", 'झ': "jha", 'ञ': "nya",
	'ट': "ta", 'ठ': "tha", 'ड': "da", 'ढ': "dha", 'ण': "na",
	'त': "ta", 'थ': "tha", 'द': "da", 'ध': "dha", 'न': "na",
	'प': "pa", 'फ': "pha", 'ब': "ba", 'भ': "bha", 'म': "ma",
	'य': "ya", 'र': "ra", 'ल': "la", 'व': "va",
	'श': "sha", 'ष': "sha", 'स': "sa", 'ह': "ha",

	'ा': "aa", 'ि': "i", 'ी': "ee", 'ु': "u", 'ू': "oo",
	'ृ': "ri", 'े': "e", 'ै': "ai", 'ो': "o", 'ौ': "au",

	'ं': "m", 'ः': "h", 'ँ': "n",
}

const (
	devanagariConsonants = "कखगघङचछजझञटठडढणतथदधनपफबभमयरलवशषसह"
	devanagariVowelSigns = "ािीुूृेैोौ"
	virama               = '्'
)

// TransliterateDevanagari converts Devanagari script to Roman letters
// so a spoken Hindi name can be looked up against the Roman-script
// roster. Non-Devanagari runes pass through unchanged.
func TransliterateDevanagari(text string) string {
	runes := []rune(text)
	var b strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		roman, ok := devanagariToRoman[r]
		if !ok {
			if r == virama {
				continue
			}
			b.WriteRune(r)
			continue
		}

		if strings.ContainsRune(devanagariConsonants, r) && i+1 < len(runes) {
			next := runes[i+1]
			if next == virama {
				b.WriteString(strings.TrimSuffix(roman, "a"))
				i++
				continue
			}
			if sign, isSign := devanagariToRoman[next]; isSign && strings.ContainsRune(devanagariVowelSigns, next) {
				b.WriteString(strings.TrimSuffix(roman, "a"))
				b.WriteString(sign)
				i++
				continue
			}
		}
		b.WriteString(roman)
	}
	return b.String()
}

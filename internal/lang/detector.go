// Package lang guesses the language of selected text so a matching voice
// can be resolved. Detection is heuristic and deliberately lenient: it
// always returns a usable tag, falling back to Default.
package lang

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// Default is returned when no heuristic clears its threshold.
var Default = language.English

// minStopWordHits is the minimum number of stop-word hits a Latin-script
// language needs before it can override Default. A single incidental hit
// is not evidence. The winner must also beat every competitor strictly;
// ties fall back to Default.
const minStopWordHits = 2

// stopWords maps Latin-script languages to common short words. Hits are
// counted per whitespace-separated token after lowercasing.
var stopWords = map[language.Tag][]string{
	language.English:    {"the", "and", "is", "of", "to", "in", "that", "it", "you", "for", "this", "with"},
	language.Spanish:    {"el", "los", "las", "una", "es", "por", "con", "para", "como", "pero", "hola"},
	language.French:     {"le", "les", "des", "une", "est", "et", "dans", "pour", "pas", "vous", "bonjour"},
	language.German:     {"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "mit", "auf", "hallo"},
	language.Italian:    {"il", "gli", "che", "per", "non", "sono", "una", "con", "ciao", "questo"},
	language.Portuguese: {"os", "as", "um", "uma", "não", "para", "com", "por", "mais", "olá"},
	language.Dutch:      {"het", "een", "van", "niet", "voor", "met", "zijn", "dat", "hallo"},
}

// diacritics count as weaker evidence than stop words; one rune adds one
// hit to the owning language.
var diacritics = map[language.Tag]string{
	language.French:     "éèêëàâçùûîô",
	language.Spanish:    "ñ¿¡áíóú",
	language.German:     "äöüß",
	language.Portuguese: "ãõêç",
	language.Italian:    "ìò",
}

// Cyrillic is shared by Russian and Ukrainian; a secondary lexical check
// separates the two. Ukrainian-only letters weigh heavily.
var (
	russianStopWords   = []string{"и", "в", "не", "на", "что", "это", "как", "он", "она"}
	ukrainianStopWords = []string{"і", "в", "не", "на", "що", "це", "як", "він", "вона"}
	ukrainianLetters   = "іїєґ"
)

// Detect returns the best-guess language tag for text. It is pure,
// synchronous and never fails. Very short inputs are accepted as-is;
// a two-word selection still has to be spoken in some voice.
func Detect(text string) language.Tag {
	if tag, ok := detectByScript(text); ok {
		return tag
	}
	if tag, ok := detectLatin(text); ok {
		return tag
	}
	return Default
}

// detectByScript tests Unicode script ranges in a fixed priority order.
// Kana is checked before plain CJK so Japanese text with kanji is not
// misread as Chinese.
func detectByScript(text string) (language.Tag, bool) {
	var kana, han, hangul, cyrillic, arabic, thai, devanagari int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			kana++
		case unicode.Is(unicode.Han, r):
			han++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Thai, r):
			thai++
		case unicode.Is(unicode.Devanagari, r):
			devanagari++
		}
	}

	switch {
	case kana > 0:
		return language.Japanese, true
	case han > 0:
		return language.Chinese, true
	case hangul > 0:
		return language.Korean, true
	case cyrillic > 0:
		return detectCyrillic(text), true
	case arabic > 0:
		return language.Arabic, true
	case thai > 0:
		return language.Thai, true
	case devanagari > 0:
		return language.Hindi, true
	}
	return language.Und, false
}

func detectCyrillic(text string) language.Tag {
	lowered := strings.ToLower(text)

	uk := countHits(lowered, ukrainianStopWords)
	for _, r := range lowered {
		if strings.ContainsRune(ukrainianLetters, r) {
			uk += 2
		}
	}

	ru := countHits(lowered, russianStopWords)
	if uk > ru {
		return language.Ukrainian
	}
	return language.Russian
}

// detectLatin runs a weighted keyword and diacritic match across the fixed
// Latin-script set. The winner needs at least minStopWordHits and must
// strictly beat every competitor.
func detectLatin(text string) (language.Tag, bool) {
	lowered := strings.ToLower(text)

	scores := make(map[language.Tag]int, len(stopWords))
	for tag, words := range stopWords {
		scores[tag] = countHits(lowered, words)
	}
	for tag, marks := range diacritics {
		for _, r := range lowered {
			if strings.ContainsRune(marks, r) {
				scores[tag]++
			}
		}
	}

	best := language.Und
	bestScore := 0
	tied := false
	for tag, score := range scores {
		switch {
		case score > bestScore:
			best, bestScore, tied = tag, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	if bestScore < minStopWordHits || tied {
		return language.Und, false
	}
	return best, true
}

func countHits(lowered string, words []string) int {
	hits := 0
	for _, token := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		for _, w := range words {
			if token == w {
				hits++
				break
			}
		}
	}
	return hits
}

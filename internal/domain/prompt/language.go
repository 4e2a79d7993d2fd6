package prompt

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pemistahl/lingua-go"
)

// DefaultLanguage is used when a language code is unknown or undetected.
const DefaultLanguage = "Korean"

// ShortTextThreshold is the rune count below which detection counts
// character classes instead of using the statistical model.
const ShortTextThreshold = 20

var languageNames = map[string]string{
	"ko": "Korean",
	"en": "English",
	"ja": "Japanese",
	"zh": "Chinese",
	"fr": "French",
	"de": "German",
	"es": "Spanish",
	"it": "Italian",
	"pt": "Portuguese",
	"ru": "Russian",
	"th": "Thai",
	"vi": "Vietnamese",
}

// LanguageName maps an ISO 639-1 code to the name used in prompts.
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return DefaultLanguage
}

// LanguageDetector returns an ISO 639-1 code for text, or "" when unsure.
type LanguageDetector interface {
	Detect(text string) string
}

// Detector combines a character class heuristic for short text with a
// statistical model for longer text.
type Detector struct {
	model lingua.LanguageDetector
}

// NewDetector builds a detector limited to the languages with prompt names.
func NewDetector() *Detector {
	model := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.Korean, lingua.English, lingua.Japanese, lingua.Chinese,
			lingua.French, lingua.German, lingua.Spanish, lingua.Italian,
			lingua.Portuguese, lingua.Russian, lingua.Thai, lingua.Vietnamese,
		).
		Build()
	return &Detector{model: model}
}

// Detect implements LanguageDetector.
func (d *Detector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if utf8.RuneCountInString(text) < ShortTextThreshold || d.model == nil {
		return DetectScript(text)
	}
	lang, ok := d.model.DetectLanguageOf(text)
	if !ok {
		return DetectScript(text)
	}
	return strings.ToLower(lang.IsoCode639_1().String())
}

// DetectScript guesses a language by counting letters per script.
func DetectScript(text string) string {
	counts := map[string]int{}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			counts["ko"]++
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			counts["ja"]++
		case unicode.Is(unicode.Han, r):
			counts["zh"]++
		case unicode.Is(unicode.Cyrillic, r):
			counts["ru"]++
		case unicode.Is(unicode.Thai, r):
			counts["th"]++
		case unicode.Is(unicode.Latin, r):
			counts["en"]++
		}
	}
	// Japanese text mixes kana with kanji.
	if counts["ja"] > 0 {
		counts["ja"] += counts["zh"]
		counts["zh"] = 0
	}

	best, bestCount := "", 0
	for _, code := range []string{"ko", "ja", "zh", "ru", "th", "en"} {
		if counts[code] > bestCount {
			best, bestCount = code, counts[code]
		}
	}
	return best
}

package dispatch

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	specialTokens = regexp.MustCompile(`<\|[^|]*\|>`)
	angleTags     = regexp.MustCompile(`<[^<>]{0,64}>`)
	bracketed     = regexp.MustCompile(`\[[^\[\]]*\]`)
	// Parenthesized text; only known annotations are removed.
	annotations = regexp.MustCompile(`[(（][^()（）]{0,40}[)）]`)
)

// annotationPhrases are the sound descriptions transcribers emit in
// parentheses, lowercased with single spaces.
var annotationPhrases = map[string]bool{
	"silence": true, "silencio": true,
	"music": true, "música": true, "musica": true, "music playing": true, "música de fondo": true,
	"laughter": true, "laughs": true, "risas": true, "risa": true,
	"applause": true, "aplausos": true,
	"inaudible": true, "unintelligible": true, "ininteligible": true,
	"noise": true, "ruido": true, "background noise": true, "ruido de fondo": true,
	"cough": true, "coughs": true, "tos": true,
	"sigh": true, "suspiro": true, "breathing": true, "respiración": true,
	"pause": true, "pausa": true, "blank_audio": true, "no speech": true,
}

// isAnnotation reports whether a parenthesized match like "(Risas...)" is
// a sound annotation rather than spoken content such as "(Madrid)".
func isAnnotation(m string) bool {
	inner := strings.Trim(m, "()（）")
	inner = strings.TrimFunc(inner, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '_')
	})
	return annotationPhrases[strings.Join(strings.Fields(strings.ToLower(inner)), " ")]
}

// Sanitize removes transcriber artifacts and characters a speech
// synthesizer should not read, then collapses whitespace.
func Sanitize(text string) string {
	text = specialTokens.ReplaceAllString(text, " ")
	text = angleTags.ReplaceAllString(text, " ")
	text = bracketed.ReplaceAllString(text, " ")
	text = annotations.ReplaceAllStringFunc(text, func(m string) string {
		if isAnnotation(m) {
			return " "
		}
		return m
	})

	var b strings.Builder
	for _, r := range text {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(' ')
		case unicode.IsControl(r), isMarkup(r), isEmoji(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isMarkup(r rune) bool {
	switch r {
	case '*', '#', '_', '`', '~', '|', '>', '<':
		return true
	}
	return false
}

func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF,
		r >= 0x2600 && r <= 0x27BF,
		r == 0x200D,
		r >= 0xFE00 && r <= 0xFE0F:
		return true
	}
	return unicode.Is(unicode.So, r)
}

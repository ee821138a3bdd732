// Package wakeword scores incoming frames against a keyword set.
package wakeword

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/neboloop/hotword/internal/audio"
)

// ErrUnavailable means the backend could not be initialized.
var ErrUnavailable = errors.New("wakeword: backend unavailable")

// Detection is a keyword hit. It is consumed once by the endpointer.
type Detection struct {
	Keyword    string
	Confidence float64
	FrameIndex uint64
}

// Scorer consumes gained frames in order and reports detections whose
// confidence reached the configured sensitivity.
type Scorer interface {
	Score(ctx context.Context, f audio.Frame) ([]Detection, error)
	// Reset drops any partially accumulated audio.
	Reset()
	Close() error
	Name() string
}

// Best returns the most confident detection, or nil.
func Best(ds []Detection) *Detection {
	var best *Detection
	for i := range ds {
		if best == nil || ds[i].Confidence > best.Confidence {
			best = &ds[i]
		}
	}
	return best
}

// Normalize lowercases, strips punctuation and accents, and collapses
// whitespace.
func Normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(foldAccent(r))
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func foldAccent(r rune) rune {
	switch r {
	case 'á', 'à', 'ä', 'â':
		return 'a'
	case 'é', 'è', 'ë', 'ê':
		return 'e'
	case 'í', 'ì', 'ï', 'î':
		return 'i'
	case 'ó', 'ò', 'ö', 'ô':
		return 'o'
	case 'ú', 'ù', 'ü', 'û':
		return 'u'
	}
	return r
}

// Match scores text against each keyword. An exact match or a match on the
// leading words scores 1; otherwise the score is the edit similarity
// between the keyword and the same number of leading words.
func Match(text string, keywords []string) (string, float64) {
	norm := Normalize(text)
	words := strings.Fields(norm)
	bestKW, best := "", 0.0
	for _, kw := range keywords {
		k := Normalize(kw)
		if k == "" {
			continue
		}
		n := len(strings.Fields(k))
		var head string
		if len(words) >= n {
			head = strings.Join(words[:n], " ")
		} else {
			head = norm
		}
		var score float64
		if head == k || norm == k {
			score = 1
		} else {
			score = similarity(head, k)
		}
		if score > best {
			bestKW, best = kw, score
		}
	}
	return bestKW, best
}

// StripHotword reports whether text contains one of the keywords as whole
// words and returns the text that follows the first occurrence.
func StripHotword(text string, keywords []string) (keyword, rest string, ok bool) {
	words := strings.Fields(text)
	normWords := make([]string, len(words))
	for i, w := range words {
		normWords[i] = Normalize(w)
	}
	for i := range words {
		for _, kw := range keywords {
			kwWords := strings.Fields(Normalize(kw))
			if len(kwWords) == 0 || i+len(kwWords) > len(words) {
				continue
			}
			if equalWords(normWords[i:i+len(kwWords)], kwWords) {
				rest = strings.Join(words[i+len(kwWords):], " ")
				rest = strings.TrimLeft(rest, ",.;:!? ")
				return kw, rest, true
			}
		}
	}
	return "", text, false
}

func equalWords(a, b []string) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// similarity is 1 - normalized edit distance.
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

// levenshtein computes the edit distance between two rune slices, keeping
// two DP rows and swapping them.
func levenshtein(a, b []rune) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

// Package transcript post-processes final transcripts. Speech engines
// reliably butcher proper nouns the client cares about (project names,
// in-world entities, jargon), so clients can pass keyword hints when
// enabling transcription; the corrector swaps phonetically matching words
// in the final text for the intended keyword.
//
// Matching runs in two stages per token: Double Metaphone codes gate the
// candidate set, then Jaro-Winkler similarity on the raw strings ranks the
// candidates. A phonetic candidate is accepted above a lower threshold than
// a pure string-similarity match, since shared phonetics are strong evidence
// the word was misheard rather than merely similar.
package transcript

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically gated match. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a match with no
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = threshold }
}

// keyword is one hint with its precomputed phonetic codes.
type keyword struct {
	text  string
	lower string
	codes map[string]struct{}
}

// Corrector replaces misheard words with the keyword they phonetically
// match. Read-only after construction, safe for concurrent use.
type Corrector struct {
	keywords          []keyword
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New builds a Corrector for the given keyword hints. Blank hints are
// dropped; with no usable hints Correct returns its input unchanged.
func New(keywords []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lower := strings.ToLower(kw)
		c.keywords = append(c.keywords, keyword{
			text:  kw,
			lower: lower,
			codes: metaphoneCodes(lower),
		})
	}
	return c
}

// Correct rewrites text, replacing each word that phonetically matches a
// keyword. Surrounding punctuation is preserved; an exact (case-insensitive)
// keyword occurrence is left untouched.
func (c *Corrector) Correct(text string) string {
	if len(c.keywords) == 0 || text == "" {
		return text
	}

	fields := strings.Fields(text)
	changed := false
	for i, field := range fields {
		word, prefix, suffix := trimPunct(field)
		if word == "" {
			continue
		}
		if replacement, ok := c.match(strings.ToLower(word)); ok {
			fields[i] = prefix + replacement + suffix
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(fields, " ")
}

// match finds the best keyword for word, reporting whether a replacement
// should happen. An exact occurrence matches but needs no replacement, so it
// returns ok=false.
func (c *Corrector) match(word string) (string, bool) {
	wordCodes := metaphoneCodes(word)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for i := range c.keywords {
		kw := &c.keywords[i]
		if word == kw.lower {
			return "", false
		}

		score := matchr.JaroWinkler(word, kw.lower, false)
		if codesOverlap(wordCodes, kw.codes) {
			if score >= c.phoneticThreshold && (!bestPhonetic || score > bestScore) {
				best, bestScore, bestPhonetic = kw.text, score, true
			}
		} else if !bestPhonetic && score >= c.fuzzyThreshold && score > bestScore {
			best, bestScore = kw.text, score
		}
	}
	return best, best != ""
}

// metaphoneCodes returns the non-empty Double Metaphone codes of s.
func metaphoneCodes(s string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, sec := matchr.DoubleMetaphone(s)
	if p != "" {
		codes[p] = struct{}{}
	}
	if sec != "" {
		codes[sec] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// trimPunct splits leading and trailing punctuation off a token.
func trimPunct(token string) (word, prefix, suffix string) {
	start := 0
	for start < len(token) && !isWordByte(token[start]) {
		start++
	}
	end := len(token)
	for end > start && !isWordByte(token[end-1]) {
		end--
	}
	return token[start:end], token[:start], token[end:]
}

// isWordByte treats ASCII letters, digits, and bytes of multi-byte runes as
// word content.
func isWordByte(b byte) bool {
	if b >= 0x80 {
		return true
	}
	r := rune(b)
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' || r == '-'
}

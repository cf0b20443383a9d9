package tokens

import "unicode/utf8"

// Estimate approximates the upstream tokenizer's count for s. English prose
// costs about four characters per token; multi-byte runes and punctuation
// tokenize denser, so their byte weight is doubled. The result is only used
// for quota accounting and pre-flight checks, never billing.
func Estimate(s string) int {
	sum := 0
	for _, r := range s {
		w := utf8.RuneLen(r)
		if w > 1 {
			w *= 2
		}
		if isASCIIPunct(r) {
			w *= 2
		}
		sum += w
	}
	return sum / 4
}

func isASCIIPunct(r rune) bool {
	switch {
	case r >= '!' && r <= '/':
		return true
	case r >= ':' && r <= '@':
		return true
	case r >= '[' && r <= '`':
		return true
	case r >= '{' && r <= '~':
		return true
	}
	return false
}

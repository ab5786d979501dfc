package service

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxSessionIDLength = 128

// sanitizeUTF8 removes invalid UTF-8 sequences from string
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		result.WriteRune(r)
		s = s[size:]
	}

	return result.String()
}

// NormalizePattern reduces free text to the signature used as a knowledge pattern:
// lower case, letters and digits only, single spaces between words. Apostrophes are
// dropped so "what's" and "whats" normalize the same.
func NormalizePattern(text string) string {
	text = sanitizeUTF8(text)

	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false

	for _, r := range text {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingSpace = true
		}
	}
	return b.String()
}

// validateSessionID accepts up to 128 characters from [A-Za-z0-9._:-].
func validateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: session_id is required", ErrInvalidInput)
	}
	if len(id) > maxSessionIDLength {
		return fmt.Errorf("%w: session_id longer than %d characters", ErrInvalidInput, maxSessionIDLength)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ':':
		default:
			return fmt.Errorf("%w: session_id contains %q", ErrInvalidInput, r)
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// ema moves score towards target by alpha. The result stays in [0,1].
func ema(score, target, alpha float64) float64 {
	return clamp01(score + alpha*(target-score))
}

// Package naming canonicalizes account and character names before they are
// compared against the game databases or the world.
package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
)

// MaxPlayerNameRunes bounds the length of a character name in code points.
const MaxPlayerNameRunes = 15

var (
	// Stored legacy digests were computed with only basic Latin letters
	// upper-cased; every other code point is hashed as typed.
	upperLatin = runes.Map(func(r rune) rune {
		if 'a' <= r && r <= 'z' {
			return r - 'a' + 'A'
		}
		return r
	})
	lowerSimple = runes.Map(unicode.ToLower)
)

// NormalizeAccount returns the canonical form of an account name or password:
// surrounding whitespace removed and the letters a-z upper-cased.
//
// Postcondition: The result contains no leading or trailing whitespace and has
// the same number of code points as the trimmed input.
func NormalizeAccount(s string) string {
	return upperLatin.String(strings.TrimSpace(s))
}

// NormalizePlayerName returns name with its first code point upper-cased and
// the remainder lower-cased, one code point at a time.
//
// Postcondition: ok is false when name is empty, is not valid UTF-8, or exceeds
// MaxPlayerNameRunes code points; the returned string is then empty.
func NormalizePlayerName(name string) (string, bool) {
	if name == "" || !utf8.ValidString(name) {
		return "", false
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameRunes {
		return "", false
	}
	head, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(head)) + lowerSimple.String(name[size:]), true
}

package naming

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalizeAccount(t *testing.T) {
	assert.Equal(t, "ALICE", NormalizeAccount("alice"))
	assert.Equal(t, "ALICE", NormalizeAccount("  Alice\t"))
	assert.Equal(t, "SECRET1", NormalizeAccount("secret1"))
	assert.Equal(t, "", NormalizeAccount("   "))
}

func TestNormalizeAccountOnlyUpperCasesBasicLatin(t *testing.T) {
	assert.Equal(t, "STRAßE", NormalizeAccount("straße"))
	assert.Equal(t, "ﬁSH", NormalizeAccount("ﬁsh"))
	assert.Equal(t, "пароль", NormalizeAccount("пароль"))
	assert.Equal(t, "ÉLODIE", NormalizeAccount("Élodie"))
	assert.Equal(t, "éLODIE", NormalizeAccount("élodie"))
}

func TestPropertyNormalizeAccountPreservesCodePoints(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-zA-Z0-9ßéüжЖ]{1,16}`).Draw(t, "s")
		got := NormalizeAccount(s)
		if utf8.RuneCountInString(got) != utf8.RuneCountInString(s) {
			t.Fatalf("%q -> %q changed length", s, got)
		}
		if NormalizeAccount(got) != got {
			t.Fatalf("not idempotent: %q -> %q", s, got)
		}
	})
}

func TestNormalizePlayerName(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"alice", "Alice", true},
		{"ALICE", "Alice", true},
		{"aLiCe", "Alice", true},
		{"élodie", "Élodie", true},
		{"ÅSA", "Åsa", true},
		{"ßEN", "ßen", true},
		{"жАННА", "Жанна", true},
		{"", "", false},
		{"\xff\xfe", "", false},
		{strings.Repeat("a", MaxPlayerNameRunes), "A" + strings.Repeat("a", MaxPlayerNameRunes-1), true},
		{strings.Repeat("a", MaxPlayerNameRunes+1), "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizePlayerName(tt.in)
		assert.Equal(t, tt.ok, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestPropertyNormalizePlayerNameIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringMatching(`[a-zA-Z]{1,12}`).Draw(t, "name")
		once, ok := NormalizePlayerName(name)
		if !ok {
			t.Fatalf("name %q rejected", name)
		}
		twice, ok := NormalizePlayerName(once)
		if !ok || twice != once {
			t.Fatalf("not idempotent: %q -> %q -> %q", name, once, twice)
		}
		if !strings.EqualFold(once, name) {
			t.Fatalf("normalization changed letters: %q -> %q", name, once)
		}
	})
}

func TestPropertyNormalizePlayerNameRejectsInvalidUTF8(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.Byte(), 1, 20).Draw(t, "raw")
		_, ok := NormalizePlayerName(string(raw))
		if !utf8.Valid(raw) && ok {
			t.Fatalf("invalid utf-8 %x accepted", raw)
		}
	})
}

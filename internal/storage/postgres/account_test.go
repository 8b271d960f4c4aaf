package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/chatbridge/internal/bridge/naming"
)

func TestLegacyPasswordHash(t *testing.T) {
	// SHA1("TEST:TEST")
	assert.Equal(t, "3D0D99423E31FCC67A6745EC89D70D700344BC76", LegacyPasswordHash("TEST", "TEST"))
}

func TestLegacyPasswordHash_NonLatinCredentials(t *testing.T) {
	// SHA1("STRAßE:пароль"): only a-z are upper-cased before hashing.
	user, pass := naming.NormalizeAccount("straße"), naming.NormalizeAccount("пароль")
	assert.Equal(t, "C8EB950EE09C62680866D8063F5DBA07BA1E5F7A", LegacyPasswordHash(user, pass))
	assert.True(t, CheckPasswordHash(user, pass, "C8EB950EE09C62680866D8063F5DBA07BA1E5F7A"))
}

func TestCheckPasswordHash_Legacy(t *testing.T) {
	stored := LegacyPasswordHash("ALICE", "SECRET")
	assert.True(t, CheckPasswordHash("ALICE", "SECRET", stored))
	assert.False(t, CheckPasswordHash("ALICE", "WRONG", stored))
	assert.False(t, CheckPasswordHash("BOB", "SECRET", stored))
}

func TestCheckPasswordHash_LegacyLowercaseHex(t *testing.T) {
	stored := "3d0d99423e31fcc67a6745ec89d70d700344bc76"
	assert.True(t, CheckPasswordHash("TEST", "TEST", stored))
}

func TestCheckPasswordHash_Bcrypt(t *testing.T) {
	hash, err := HashPassword("MYPASSWORD")
	require.NoError(t, err)
	assert.NotEqual(t, "MYPASSWORD", hash)
	assert.True(t, CheckPasswordHash("ALICE", "MYPASSWORD", hash))
	assert.False(t, CheckPasswordHash("ALICE", "WRONGPASSWORD", hash))
}

func TestCheckPasswordHash_Empty(t *testing.T) {
	assert.False(t, CheckPasswordHash("ALICE", "SECRET", ""))
}

// Property: the legacy digest always verifies and is 40 upper-case hex digits.
func TestPropertyLegacyHashAndCheck(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		user := rapid.StringMatching(`[A-Z0-9]{1,16}`).Draw(t, "user")
		pass := rapid.StringMatching(`[A-Z0-9!@#$%^&*]{1,16}`).Draw(t, "pass")
		stored := LegacyPasswordHash(user, pass)
		if len(stored) != 40 {
			t.Fatalf("digest length %d", len(stored))
		}
		if !CheckPasswordHash(user, pass, stored) {
			t.Fatalf("legacy check failed for %q/%q", user, pass)
		}
	})
}

// Property: HashPassword always produces a hash that CheckPasswordHash verifies.
func TestPropertyBcryptHashAndCheck(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		password := rapid.StringMatching(`[A-Z0-9!@#$%^&*]{1,32}`).Draw(t, "password")
		hash, err := HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword failed: %v", err)
		}
		if !CheckPasswordHash("USER", password, hash) {
			t.Fatalf("CheckPasswordHash failed for password %q", password)
		}
	})
}

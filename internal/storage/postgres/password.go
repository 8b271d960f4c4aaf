package postgres

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// LegacyPasswordHash returns the realm's legacy password digest: the upper-case
// hex SHA1 of "USERNAME:PASSWORD".
//
// Precondition: username and password are already normalized.
func LegacyPasswordHash(username, password string) string {
	sum := sha1.Sum([]byte(username + ":" + password))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// HashPassword creates a bcrypt hash of the normalized password.
//
// Precondition: password must be non-empty and at most 72 bytes.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPasswordHash verifies a normalized username and password against a
// stored hash in either the bcrypt or the legacy SHA1 form.
//
// Postcondition: Returns true only if the password matches.
func CheckPasswordHash(username, password, stored string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	want := LegacyPasswordHash(username, password)
	return subtle.ConstantTimeCompare([]byte(strings.ToUpper(stored)), []byte(want)) == 1
}

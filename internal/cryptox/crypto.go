// Package cryptox contains the password hashing used by the in-process
// development backend. Hosted backends never see these hashes.
package cryptox

import (
	"crypto/sha256"
	"crypto/subtle"

	"github.com/dmitrijs2005/stuffhappens/internal/common"
	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of salts produced by NewSalt.
const SaltSize = 32

// DeriveKey stretches password with argon2id.
func DeriveKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// MakeVerifier hashes a derived key so the key itself is never stored.
func MakeVerifier(key []byte) []byte {
	hash := sha256.Sum256(key)
	return hash[:]
}

// NewSalt returns SaltSize random bytes.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

// HashPassword returns a fresh salt and the verifier for password.
func HashPassword(password []byte) (salt, verifier []byte) {
	salt = NewSalt()
	return salt, MakeVerifier(DeriveKey(password, salt))
}

// CheckPassword reports whether password matches the stored salt/verifier
// pair. The comparison is constant time.
func CheckPassword(password, salt, verifier []byte) bool {
	candidate := MakeVerifier(DeriveKey(password, salt))
	return subtle.ConstantTimeCompare(candidate, verifier) == 1
}

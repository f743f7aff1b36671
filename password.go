package whisper

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// dummyDigest is a valid bcrypt digest of an unknowable random value. It is
// compared against when a login misses the user record so that the miss
// path costs the same as a wrong-password path.
const dummyDigest = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// PasswordHasher hashes and verifies passwords with bcrypt. Each digest
// embeds its own random salt and cost, so Verify needs no configuration.
type PasswordHasher struct {
	// Cost is the bcrypt work factor. Zero means bcrypt.DefaultCost.
	Cost int
}

func (h *PasswordHasher) cost() int {
	if h.Cost >= bcrypt.MinCost && h.Cost <= bcrypt.MaxCost {
		return h.Cost
	}
	return bcrypt.DefaultCost
}

// Hash derives a salted digest from the plaintext. A failure here is fatal
// to the operation that needed the digest (registration aborts).
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches the digest. Malformed digests
// are a normal "no match", never an error.
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// VerifyDummy burns one bcrypt comparison against a fixed digest. Called on
// lookup misses to keep login timing uniform.
func (h *PasswordHasher) VerifyDummy(plaintext string) {
	bcrypt.CompareHashAndPassword([]byte(dummyDigest), []byte(plaintext))
}

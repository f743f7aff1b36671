package whisper_test

import (
	"testing"

	wh "github.com/whisperlabs/whisper"
)

func TestHashVerifyRoundtrip(t *testing.T) {
	hasher := &wh.PasswordHasher{Cost: 4} // min cost to keep the test fast

	digest, err := hasher.Hash("pw123456")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if digest == "pw123456" {
		t.Fatal("digest must not be the plaintext")
	}
	if !hasher.Verify("pw123456", digest) {
		t.Error("Verify should accept the original plaintext")
	}
	if hasher.Verify("pw123457", digest) {
		t.Error("Verify should reject a different plaintext")
	}
}

func TestHashIsSalted(t *testing.T) {
	hasher := &wh.PasswordHasher{Cost: 4}

	d1, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	d2, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if d1 == d2 {
		t.Error("two hashes of the same plaintext should differ (per-call salt)")
	}
	if !hasher.Verify("same-password", d1) || !hasher.Verify("same-password", d2) {
		t.Error("both digests should verify the plaintext")
	}
}

func TestVerifyMalformedDigest(t *testing.T) {
	hasher := &wh.PasswordHasher{}

	for _, digest := range []string{"", "not-a-digest", "$2a$banana"} {
		if hasher.Verify("anything", digest) {
			t.Errorf("Verify(%q) should be false, not panic or error", digest)
		}
	}
}

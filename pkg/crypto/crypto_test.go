package crypto

import (
	"bytes"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("session-token-value")
	sealed, err := Seal("secret", plaintext)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed payload leaks plaintext")
	}
	opened, err := Open("secret", sealed)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestOpenRejectsWrongSecretAndTampering(t *testing.T) {
	sealed, err := Seal("secret", []byte("payload"))
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if _, err := Open("other-secret", sealed); err == nil {
		t.Fatal("expected an error for a foreign secret")
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := Open("secret", sealed); err == nil {
		t.Fatal("expected an error for a tampered payload")
	}
	if _, err := Open("secret", []byte("short")); err == nil {
		t.Fatal("expected an error for a truncated payload")
	}
}

func TestPasswordHashAndCompare(t *testing.T) {
	hash, err := HashPassword("correct-password")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if err := ComparePassword(hash, "correct-password"); err != nil {
		t.Fatalf("ComparePassword rejected the right password: %v", err)
	}
	if err := ComparePassword(hash, "wrong-password"); err == nil {
		t.Fatal("ComparePassword accepted the wrong password")
	}
}

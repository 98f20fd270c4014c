package crypto

import "golang.org/x/crypto/bcrypt"

// passwordCost is deliberately above the bcrypt default; registration is a
// rare operation and the hashes guard long-lived accounts.
const passwordCost = 12

// HashPassword hashes plaintext using bcrypt.
func HashPassword(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), passwordCost)
}

// ComparePassword compares plaintext to hashed secret.
func ComparePassword(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

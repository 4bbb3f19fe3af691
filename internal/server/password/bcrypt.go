// Package password wraps bcrypt hashing and verification of user passwords.
package password

import "golang.org/x/crypto/bcrypt"

// DefaultCost is used when the configured cost is zero or out of range.
const DefaultCost = bcrypt.DefaultCost

// dummyHash is a valid bcrypt digest of a random throwaway string. It is
// compared against the candidate password when the account does not exist,
// so that lookups for unknown and known emails take similar time.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Hash produces a bcrypt digest of password with the given cost.
func Hash(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether password matches the stored bcrypt digest.
func Verify(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// VerifyDummy burns a bcrypt comparison against a fixed digest. Callers use
// it when no account matched, keeping the failure path timing comparable.
func VerifyDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}

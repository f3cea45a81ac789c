// Package auth implements the narrow bearer-token check from spec §6:
// "An opaque bearer token compared in constant time against a configured
// secret; public paths (health, metrics) bypass auth." It is a helper, not
// a server — transport itself is out of scope.
package auth

import "crypto/subtle"

// PublicPaths bypass the bearer check entirely.
var PublicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// CheckBearer compares token against secret in constant time. An empty
// secret always fails closed.
func CheckBearer(token, secret string) bool {
	if secret == "" {
		return false
	}
	lenOK := subtle.ConstantTimeEq(int32(len(token)), int32(len(secret))) == 1
	// Pad to equal length before comparing so the ConstantTimeCompare call
	// itself never takes a length-dependent branch.
	padded := make([]byte, len(secret))
	copy(padded, token)
	eq := subtle.ConstantTimeCompare(padded, []byte(secret)) == 1
	return lenOK && eq
}

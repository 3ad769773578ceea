package services

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintLength is the number of hex characters kept from the digest.
const FingerprintLength = 16

// Fingerprint derives the stored binding value from a raw hardware id.
func Fingerprint(rawHWID string) string {
	sum := sha256.Sum256([]byte(rawHWID))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// shortOwnerKeyLen keeps scratch directory names readable while leaving
// collisions implausible for the owner populations this service sees.
const shortOwnerKeyLen = 16

// HashOwnerKey returns a filesystem-safe identifier for an owner ID.
func HashOwnerKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ShortOwnerKey returns a truncated owner hash for scratch paths.
func ShortOwnerKey(s string) string {
	return HashOwnerKey(s)[:shortOwnerKeyLen]
}

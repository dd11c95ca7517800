// Package id generates and checks job identifiers. IDs are safe to embed in
// storage keys and URLs.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
)

// Prefix starts every generated job ID.
const Prefix = "job"

var pattern = regexp.MustCompile(`^` + Prefix + `-[0-9]+(-[0-9a-f]{8})?$`)

// Generate creates a new unique job ID.
// Format: job-<unixnano>-<random>
// Example: job-1701432000123456789-a1b2c3d4
func Generate() string {
	timestamp := time.Now().UnixNano()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to timestamp only if crypto/rand fails
		return fmt.Sprintf("%s-%d", Prefix, timestamp)
	}
	return fmt.Sprintf("%s-%d-%s", Prefix, timestamp, hex.EncodeToString(random))
}

// Valid reports whether s has the shape of a generated ID.
func Valid(s string) bool {
	return pattern.MatchString(s)
}

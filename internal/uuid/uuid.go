// Package uuid generates random identifiers for request correlation and token IDs.
package uuid

import "github.com/google/uuid"

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

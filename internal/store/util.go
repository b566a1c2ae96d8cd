package store

import "github.com/google/uuid"

// NewFingerprintID returns a unique primary id for a fingerprint record.
func NewFingerprintID() string {
	return "fp-" + uuid.NewString()
}

// NewOccurrenceID returns a unique primary id for an occurrence record.
func NewOccurrenceID() string {
	return "occ-" + uuid.NewString()
}

// NewResolutionID returns a unique primary id for a resolution record.
func NewResolutionID() string {
	return "res-" + uuid.NewString()
}

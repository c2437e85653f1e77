package fpstore

import (
	"errors"
)

// FingerprintInfo is one known fingerprint: the hash under which it is
// stored, the canonical form it digests, and bookkeeping about sightings.
type FingerprintInfo struct {
	Hash          string
	CanonicalForm string
	Protocol      string
	Label         string
	FirstSeen     int64
	SeenCount     int64
}

var ErrFingerprintNotFound = errors.New("hash does not correspond to a known fingerprint")
var ErrBadHash = errors.New("hash must be 40 hex characters")

// Store is responsible for managing the database of known fingerprints
type Store interface {
	RecordSighting(hash string, canonicalForm string, protocol string) (FingerprintInfo, error)
	GetFingerprint(hash string) (FingerprintInfo, error)
	ListAllFingerprints() ([]FingerprintInfo, error)
	WriteFingerprint(FingerprintInfo) error
	DeleteFingerprint(hash string) error
	Close() error
}

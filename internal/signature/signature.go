package signature

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
)

// Record is the generic structured form of a signature: a mapping from field
// names to values. Values can be nested Records, ordered lists, strings,
// integers, booleans or raw bytes.
type Record = map[string]interface{}

// Signature is implemented by every concrete signature kind. A signature
// captures the wire behaviour of one network client in a comparable form.
type Signature interface {
	ToRecord() Record
}

// Canonicalize returns the canonical form of a signature: the JSON encoding
// of its record with keys ordered alphabetically at every nesting level,
// byte values encoded with base64 and a single space after separators.
// Two canonical strings are identical iff the underlying signatures are
// identical.
func Canonicalize(s Signature) (string, error) {
	return MarshalCanonical(s.ToRecord())
}

// Hash returns the SHA-1 digest of the signature's canonical form. It encodes
// all the information in the signature and is the value used for storage and
// lookup.
func Hash(s Signature) ([sha1.Size]byte, error) {
	canon, err := Canonicalize(s)
	if err != nil {
		return [sha1.Size]byte{}, err
	}
	return sha1.Sum([]byte(canon)), nil
}

// HexHash returns Hash rendered as a lowercase hex string.
func HexHash(s Signature) (string, error) {
	digest, err := Hash(s)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest[:]), nil
}

// ToJSON serialises the signature's record to plain JSON, without the
// canonical form's separator convention. Byte values are base64 encoded.
func ToJSON(s Signature) ([]byte, error) {
	return json.Marshal(s.ToRecord())
}

// DecodeError is returned when a record being decoded back into a signature
// or frame is missing a field required by its declared type.
type DecodeError struct {
	Kind  string
	Field string
}

func (e *DecodeError) Error() string {
	return "record of " + e.Kind + " is missing required field " + e.Field
}

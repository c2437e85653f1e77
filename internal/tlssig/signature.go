package tlssig

import (
	"crypto/sha1"

	"github.com/cbeuw/websig/internal/signature"
)

// GREASE replaces the randomised reserved values some browsers insert into
// their cipher suites, extensions, groups and versions. See
// https://tools.ietf.org/html/draft-davidben-tls-grease-01
const GREASE = "GREASE"

// Signature of a TLS client, built from the fields of its ClientHello.
// Sibling of the HTTP/2 signature: same canonical-form and hash contract,
// different field set.
type Signature struct {
	clientVersion      interface{}
	cipherSuites       []interface{}
	compressionMethods []interface{}
	extensionTypes     []interface{}
	supportedGroups    []interface{}
	supportedVersions  []interface{}
}

// NewSignature builds the signature of the client that sent ch. GREASE
// values are normalised: the randomised number carries no information beyond
// its presence.
func NewSignature(ch *ClientHello) *Signature {
	return &Signature{
		clientVersion:      normalize(ch.clientVersion),
		cipherSuites:       normalizeList(ch.cipherSuites),
		compressionMethods: byteList(ch.compressionMethods),
		extensionTypes:     normalizeList(ch.extensionTypes),
		supportedGroups:    normalizeList(ch.supportedGroups),
		supportedVersions:  normalizeList(ch.supportedVersions),
	}
}

func normalize(v uint16) interface{} {
	if isGREASE(v) {
		return GREASE
	}
	return int(v)
}

func normalizeList(vs []uint16) []interface{} {
	ret := make([]interface{}, len(vs))
	for i, v := range vs {
		ret[i] = normalize(v)
	}
	return ret
}

func byteList(bs []byte) []interface{} {
	ret := make([]interface{}, len(bs))
	for i, b := range bs {
		ret[i] = int(b)
	}
	return ret
}

func (s *Signature) ToRecord() signature.Record {
	return signature.Record{
		"client_version":      s.clientVersion,
		"cipher_suites":       s.cipherSuites,
		"compression_methods": s.compressionMethods,
		"extensions":          s.extensionTypes,
		"supported_groups":    s.supportedGroups,
		"supported_versions":  s.supportedVersions,
	}
}

func (s *Signature) Canonicalize() (string, error) { return signature.Canonicalize(s) }

func (s *Signature) Hash() ([sha1.Size]byte, error) { return signature.Hash(s) }

func (s *Signature) HexHash() (string, error) { return signature.HexHash(s) }

func (s *Signature) ToJSON() ([]byte, error) { return signature.ToJSON(s) }

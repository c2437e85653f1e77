package h2sig

import (
	"crypto/sha1"

	"github.com/cbeuw/websig/internal/signature"
)

// Signature of an HTTP/2 client.
//
// Combines the first frames sent by the client during the initial phase of
// the HTTP/2 connection, up to and including the first HEADERS frame. Later
// frames carry less distinguishing information so they are not part of the
// signature.
type Signature struct {
	frames []Frame
}

// NewSignature wraps an ordered frame list. The list is copied: a Signature
// is immutable once constructed.
func NewSignature(frames []Frame) *Signature {
	owned := make([]Frame, len(frames))
	copy(owned, frames)
	return &Signature{frames: owned}
}

// DecodeSignature rebuilds a Signature from its record form, possibly one
// produced by ToRecord and round-tripped through JSON. Frames of types
// recorded after this code was written decode as opaque.
func DecodeSignature(rec signature.Record) (*Signature, error) {
	rawFrames, ok := rec["frames"].([]interface{})
	if !ok {
		return nil, &signature.DecodeError{Kind: "HTTP/2 signature", Field: "frames"}
	}
	frames := make([]Frame, 0, len(rawFrames))
	for _, raw := range rawFrames {
		frameRec, ok := raw.(map[string]interface{})
		if !ok {
			return nil, &signature.DecodeError{Kind: "HTTP/2 signature", Field: "frames"}
		}
		frame, err := DecodeFrame(frameRec)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return &Signature{frames: frames}, nil
}

// Frames returns the signature's frames in order of receipt.
func (s *Signature) Frames() []Frame {
	ret := make([]Frame, len(s.frames))
	copy(ret, s.frames)
	return ret
}

func (s *Signature) ToRecord() signature.Record {
	frames := make([]interface{}, len(s.frames))
	for i, frame := range s.frames {
		frames[i] = frame.Record()
	}
	return signature.Record{"frames": frames}
}

func (s *Signature) Canonicalize() (string, error) { return signature.Canonicalize(s) }

func (s *Signature) Hash() ([sha1.Size]byte, error) { return signature.Hash(s) }

func (s *Signature) HexHash() (string, error) { return signature.HexHash(s) }

func (s *Signature) ToJSON() ([]byte, error) { return signature.ToJSON(s) }

package signature

import (
	"crypto/sha1"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubSignature struct {
	rec Record
}

func (s stubSignature) ToRecord() Record { return s.rec }

func TestCanonicalizeFormat(t *testing.T) {
	sig := stubSignature{rec: Record{
		"beta":  []interface{}{1, 2, 3},
		"alpha": "value",
		"gamma": Record{
			"z": true,
			"a": 42,
		},
	}}
	canon, err := Canonicalize(sig)
	assert.NoError(t, err)
	assert.Equal(t, `{"alpha": "value", "beta": [1, 2, 3], "gamma": {"a": 42, "z": true}}`, canon)
}

func TestCanonicalizeDeterministic(t *testing.T) {
	sig := stubSignature{rec: Record{
		"frames": []interface{}{
			Record{"frame_type": "SETTINGS", "stream_id": 0},
			Record{"frame_type": "HEADERS", "stream_id": 1},
		},
	}}
	first, err := Canonicalize(sig)
	assert.NoError(t, err)
	second, err := Canonicalize(sig)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCanonicalizeKeyOrderInsensitive(t *testing.T) {
	// same logical content assembled in different insertion orders
	a := Record{}
	a["stream_id"] = 0
	a["frame_type"] = "SETTINGS"
	b := Record{}
	b["frame_type"] = "SETTINGS"
	b["stream_id"] = 0

	canonA, err := Canonicalize(stubSignature{rec: a})
	assert.NoError(t, err)
	canonB, err := Canonicalize(stubSignature{rec: b})
	assert.NoError(t, err)
	assert.Equal(t, canonA, canonB)
}

func TestCanonicalizeOrderedListsKeepOrder(t *testing.T) {
	forward, err := Canonicalize(stubSignature{rec: Record{"l": []interface{}{1, 2}}})
	assert.NoError(t, err)
	backward, err := Canonicalize(stubSignature{rec: Record{"l": []interface{}{2, 1}}})
	assert.NoError(t, err)
	assert.NotEqual(t, forward, backward)
}

func TestCanonicalizeBytesAsBase64(t *testing.T) {
	canon, err := Canonicalize(stubSignature{rec: Record{"payload": []byte{0x00, 0x01, 0x02}}})
	assert.NoError(t, err)
	assert.Equal(t, `{"payload": "AAEC"}`, canon)
}

func TestCanonicalizeJSONNumbers(t *testing.T) {
	// integers that round-tripped through encoding/json arrive as float64
	// and must render identically to their int form
	native, err := Canonicalize(stubSignature{rec: Record{"n": 6291456}})
	assert.NoError(t, err)

	var decoded map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(`{"n": 6291456}`), &decoded))
	roundTripped, err := Canonicalize(stubSignature{rec: decoded})
	assert.NoError(t, err)
	assert.Equal(t, native, roundTripped)
}

func TestHashIsSHA1OfCanonicalForm(t *testing.T) {
	sig := stubSignature{rec: Record{"frames": []interface{}{}}}
	canon, err := Canonicalize(sig)
	assert.NoError(t, err)
	digest, err := Hash(sig)
	assert.NoError(t, err)
	assert.Equal(t, sha1.Sum([]byte(canon)), digest)

	hexDigest, err := HexHash(sig)
	assert.NoError(t, err)
	assert.Len(t, hexDigest, 40)
}

func TestHashEqualityTracksCanonicalForm(t *testing.T) {
	a := stubSignature{rec: Record{"x": 1, "y": "z"}}
	b := stubSignature{rec: Record{"y": "z", "x": 1}}
	c := stubSignature{rec: Record{"x": 2, "y": "z"}}

	hashA, _ := Hash(a)
	hashB, _ := Hash(b)
	hashC, _ := Hash(c)
	assert.Equal(t, hashA, hashB)
	assert.NotEqual(t, hashA, hashC)
}

func TestCanonicalizeRejectsUnsupportedType(t *testing.T) {
	_, err := Canonicalize(stubSignature{rec: Record{"ch": make(chan int)}})
	assert.Error(t, err)
}

package fpstore

import (
	"io/ioutil"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mockNow = func() time.Time { return time.Unix(1565756370, 0) }

const mockHash = "676cf69a7dbb04854124371bd41c7ea7278cdb91"
const mockCanonical = `{"frames": [{"frame_type": "HEADERS", "pseudo_headers": [":method"], "stream_id": 1}]}`

func makeStore(t *testing.T) (store *localStore, cleaner func()) {
	tmpDB, err := ioutil.TempFile("", "websig_fp_db")
	if err != nil {
		t.Fatal(err)
	}
	cleaner = func() { os.Remove(tmpDB.Name()) }
	store, err = MakeLocalStore(tmpDB.Name(), mockNow)
	if err != nil {
		t.Fatal(err)
	}
	return store, cleaner
}

func TestRecordSighting(t *testing.T) {
	store, cleaner := makeStore(t)
	defer cleaner()
	defer store.Close()

	info, err := store.RecordSighting(mockHash, mockCanonical, "http2")
	require.NoError(t, err)
	assert.Equal(t, mockHash, info.Hash)
	assert.Equal(t, mockCanonical, info.CanonicalForm)
	assert.Equal(t, "http2", info.Protocol)
	assert.Equal(t, mockNow().Unix(), info.FirstSeen)
	assert.Equal(t, int64(1), info.SeenCount)

	// a repeat sighting only bumps the count
	info, err = store.RecordSighting(mockHash, mockCanonical, "http2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.SeenCount)
	assert.Equal(t, mockNow().Unix(), info.FirstSeen)
}

func TestGetFingerprint(t *testing.T) {
	store, cleaner := makeStore(t)
	defer cleaner()
	defer store.Close()

	_, err := store.GetFingerprint(mockHash)
	assert.Equal(t, ErrFingerprintNotFound, err)

	_, err = store.RecordSighting(mockHash, mockCanonical, "http2")
	require.NoError(t, err)

	info, err := store.GetFingerprint(mockHash)
	require.NoError(t, err)
	assert.Equal(t, mockCanonical, info.CanonicalForm)
}

func TestWriteAndListFingerprints(t *testing.T) {
	store, cleaner := makeStore(t)
	defer cleaner()
	defer store.Close()

	written := FingerprintInfo{
		Hash:          mockHash,
		CanonicalForm: mockCanonical,
		Protocol:      "http2",
		Label:         "Chrome 98",
		FirstSeen:     mockNow().Unix(),
		SeenCount:     7,
	}
	require.NoError(t, store.WriteFingerprint(written))

	infos, err := store.ListAllFingerprints()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, written, infos[0])
}

func TestDeleteFingerprint(t *testing.T) {
	store, cleaner := makeStore(t)
	defer cleaner()
	defer store.Close()

	assert.Equal(t, ErrFingerprintNotFound, store.DeleteFingerprint(mockHash))

	_, err := store.RecordSighting(mockHash, mockCanonical, "http2")
	require.NoError(t, err)
	require.NoError(t, store.DeleteFingerprint(mockHash))

	_, err = store.GetFingerprint(mockHash)
	assert.Equal(t, ErrFingerprintNotFound, err)
}

func TestBadHashRejected(t *testing.T) {
	store, cleaner := makeStore(t)
	defer cleaner()
	defer store.Close()

	_, err := store.RecordSighting("not-a-hash", mockCanonical, "http2")
	assert.Equal(t, ErrBadHash, err)
	_, err = store.GetFingerprint("abcd")
	assert.Equal(t, ErrBadHash, err)
	assert.Equal(t, ErrBadHash, store.DeleteFingerprint(""))
}

package fpstore

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var u64 = binary.BigEndian.Uint64

func i64ToB(value int64) []byte {
	oct := make([]byte, 8)
	binary.BigEndian.PutUint64(oct, uint64(value))
	return oct
}

// localStore is responsible for managing the local fingerprint database.
// Each fingerprint lives in its own bucket keyed by the hex hash, with one
// entry per field.
type localStore struct {
	db  *bolt.DB
	now func() time.Time
}

func MakeLocalStore(dbPath string, nowFunc func() time.Time) (*localStore, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, err
	}
	ret := &localStore{
		db:  db,
		now: nowFunc,
	}
	return ret, nil
}

func checkHash(hash string) error {
	raw, err := hex.DecodeString(hash)
	if err != nil || len(raw) != 20 {
		return ErrBadHash
	}
	return nil
}

// RecordSighting upserts a fingerprint observed in a trace: the first
// sighting creates the entry, later ones only bump SeenCount. The stored
// canonical form is never overwritten since the hash fully determines it.
func (store *localStore) RecordSighting(hash string, canonicalForm string, protocol string) (FingerprintInfo, error) {
	if err := checkHash(hash); err != nil {
		return FingerprintInfo{}, err
	}
	var info FingerprintInfo
	err := store.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(hash))
		if err != nil {
			return err
		}
		if bucket.Get([]byte("FirstSeen")) == nil {
			log.Infof("new %v fingerprint %v", protocol, hash)
			if err = bucket.Put([]byte("CanonicalForm"), []byte(canonicalForm)); err != nil {
				return err
			}
			if err = bucket.Put([]byte("Protocol"), []byte(protocol)); err != nil {
				return err
			}
			if err = bucket.Put([]byte("Label"), []byte{}); err != nil {
				return err
			}
			if err = bucket.Put([]byte("FirstSeen"), i64ToB(store.now().Unix())); err != nil {
				return err
			}
			if err = bucket.Put([]byte("SeenCount"), i64ToB(0)); err != nil {
				return err
			}
		}
		seenCount := int64(u64(bucket.Get([]byte("SeenCount")))) + 1
		if err = bucket.Put([]byte("SeenCount"), i64ToB(seenCount)); err != nil {
			return err
		}
		info = readBucket(hash, bucket)
		return nil
	})
	if err != nil {
		return FingerprintInfo{}, err
	}
	return info, nil
}

func readBucket(hash string, bucket *bolt.Bucket) FingerprintInfo {
	return FingerprintInfo{
		Hash:          hash,
		CanonicalForm: string(bucket.Get([]byte("CanonicalForm"))),
		Protocol:      string(bucket.Get([]byte("Protocol"))),
		Label:         string(bucket.Get([]byte("Label"))),
		FirstSeen:     int64(u64(bucket.Get([]byte("FirstSeen")))),
		SeenCount:     int64(u64(bucket.Get([]byte("SeenCount")))),
	}
}

func (store *localStore) GetFingerprint(hash string) (FingerprintInfo, error) {
	if err := checkHash(hash); err != nil {
		return FingerprintInfo{}, err
	}
	var info FingerprintInfo
	err := store.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(hash))
		if bucket == nil {
			return ErrFingerprintNotFound
		}
		info = readBucket(hash, bucket)
		return nil
	})
	if err != nil {
		return FingerprintInfo{}, err
	}
	return info, nil
}

func (store *localStore) ListAllFingerprints() ([]FingerprintInfo, error) {
	var infos []FingerprintInfo
	err := store.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(hash []byte, bucket *bolt.Bucket) error {
			infos = append(infos, readBucket(string(hash), bucket))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// WriteFingerprint creates or overwrites an entry wholesale. This is the
// admin API's entry point, used to label known fingerprints.
func (store *localStore) WriteFingerprint(info FingerprintInfo) error {
	if err := checkHash(info.Hash); err != nil {
		return err
	}
	return store.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(info.Hash))
		if err != nil {
			return err
		}
		if err = bucket.Put([]byte("CanonicalForm"), []byte(info.CanonicalForm)); err != nil {
			return err
		}
		if err = bucket.Put([]byte("Protocol"), []byte(info.Protocol)); err != nil {
			return err
		}
		if err = bucket.Put([]byte("Label"), []byte(info.Label)); err != nil {
			return err
		}
		if err = bucket.Put([]byte("FirstSeen"), i64ToB(info.FirstSeen)); err != nil {
			return err
		}
		return bucket.Put([]byte("SeenCount"), i64ToB(info.SeenCount))
	})
}

func (store *localStore) DeleteFingerprint(hash string) error {
	if err := checkHash(hash); err != nil {
		return err
	}
	return store.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(hash)) == nil {
			return ErrFingerprintNotFound
		}
		return tx.DeleteBucket([]byte(hash))
	})
}

func (store *localStore) Close() error {
	return store.db.Close()
}

// Package healreport persists a durable ledger of heal-or-not decisions
// made while reconstructing split-file segments. The sfs heal pass only
// appends to it; DecisionsFor reads the decisions back for inspection.
package healreport

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	bolt "github.com/coreos/bbolt"
)

const healBucketName = "heal_decisions"

// Record is one durable heal-or-not decision for a single block slot
// within a segment.
type Record struct {
	SegmentID  string
	BlockIndex int
	IsCheck    bool
	Healed     bool
	Attempt    uint64
}

// Store is a bbolt-backed ledger of Records, keyed by segment ID,
// block index, and an incrementing attempt counter so repeated
// decisions about the same slot are all preserved rather than
// overwriting one another.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the heal report ledger at dbFile.
func Open(dbFile string) (*Store, error) {
	db, err := bolt.Open(dbFile, 0600, nil)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	err = s.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(healBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordHealDecision durably appends a heal-or-not decision, satisfying
// sfs.HealDecisionRecorder.
func (s *Store) RecordHealDecision(segmentID string, blockIndex int, isCheck bool, healed bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(healBucketName))
		if bucket == nil {
			return fmt.Errorf("healreport: bucket missing")
		}
		attempt, _ := bucket.NextSequence()
		rec := Record{SegmentID: segmentID, BlockIndex: blockIndex, IsCheck: isCheck, Healed: healed, Attempt: attempt}
		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put(recordKey(segmentID, blockIndex, attempt), value)
	})
}

// DecisionsFor returns every recorded decision for segmentID's
// blockIndex, oldest attempt first.
func (s *Store) DecisionsFor(segmentID string, blockIndex int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(healBucketName))
		if bucket == nil {
			return nil
		}
		prefix := recordPrefix(segmentID, blockIndex)
		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

func recordPrefix(segmentID string, blockIndex int) []byte {
	prefix := make([]byte, 0, len(segmentID)+1+4)
	prefix = append(prefix, []byte(segmentID)...)
	prefix = append(prefix, 0)
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, uint32(blockIndex))
	return append(prefix, idx...)
}

func recordKey(segmentID string, blockIndex int, attempt uint64) []byte {
	key := recordPrefix(segmentID, blockIndex)
	attemptBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(attemptBytes, attempt)
	return append(key, attemptBytes...)
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

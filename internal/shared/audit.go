package shared

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"golang.org/x/crypto/blake2b"
)

// AuditLog is the hashed payload of one audit trail record.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// ChainHash returns blake2b-256(prev || payload). Each record stores the hash
// of its predecessor so that editing or dropping a row breaks the chain.
func ChainHash(prev []byte, log AuditLog) ([]byte, error) {
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return nil, err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	var buf [8]byte
	writeField := func(b []byte) {
		binary.BigEndian.PutUint64(buf[:], uint64(len(b)))
		_, _ = h.Write(buf[:])
		_, _ = h.Write(b)
	}
	writeField(prev)
	binary.BigEndian.PutUint64(buf[:], uint64(log.ActorID))
	_, _ = h.Write(buf[:])
	writeField([]byte(log.Action))
	writeField([]byte(log.Entity))
	writeField([]byte(log.EntityID))
	writeField(meta)
	writeField([]byte(log.At.UTC().Format(time.RFC3339Nano)))
	return h.Sum(nil), nil
}

// VerifyChain recomputes hashes over logs in order and returns the index of
// the first record whose stored hash does not match, or -1.
func VerifyChain(logs []AuditLog, hashes [][]byte) (int, error) {
	var prev []byte
	for i, log := range logs {
		sum, err := ChainHash(prev, log)
		if err != nil {
			return i, err
		}
		if i >= len(hashes) || string(sum) != string(hashes[i]) {
			return i, nil
		}
		prev = sum
	}
	return -1, nil
}

package types

import (
	"bytes"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// HashSize is the size of a digest in bytes
const HashSize = 32

// Hash is a SHA3-256 digest
type Hash [HashSize]byte

// HashBytes computes the SHA3-256 digest of data
func HashBytes(data []byte) Hash {
	return Hash(sha3.Sum256(data))
}

// HashOperation digests the binary encoding of a single entry
func HashOperation(op *Operation) Hash {
	return HashBytes(op.appendBinary(nil))
}

// LedgerDigest digests an ordered run of entries and a replica clock.
// Two replicas with equal digests hold the same ledger in the same order.
func LedgerDigest(ops []*Operation, replicaTS VectorClock) Hash {
	h := sha3.New256()
	for _, op := range ops {
		d := HashOperation(op)
		h.Write(d[:])
	}
	h.Write(AppendClock(nil, batchFieldReplicaTS, replicaTS))

	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// IsZero returns true for the zero digest
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Equal compares two digests
func (h Hash) Equal(other Hash) bool {
	return bytes.Equal(h[:], other[:])
}

// String returns the hex-encoded digest
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns the first 8 hex characters, for logs
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}

package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Pebble key schema:
//
//   pool:<uuid>                     → gob-encoded clob.State
//   trade:<uuid>:<ts-be8>:<seq-be8> → gob-encoded clob.Fill
//
// The big-endian timestamp/sequence suffix keeps trades iterable in
// execution order within a pool prefix.

const (
	prefixPool  = "pool:"
	prefixTrade = "trade:"
)

func poolKey(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixPool, id))
}

func tradePrefix(id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, id))
}

func tradeKey(id uuid.UUID, tsMs, seq uint64) []byte {
	key := tradePrefix(id)
	var suffix [16]byte
	binary.BigEndian.PutUint64(suffix[:8], tsMs)
	binary.BigEndian.PutUint64(suffix[8:], seq)
	return append(key, suffix[:]...)
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

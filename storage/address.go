package storage

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Purpose tags for the two record kinds. External callers derive the same
// addresses to read state, so the tags and the derivation scheme are part of
// the storage layout.
const (
	TagTodoList      = "user-todo-list"
	TagNotifications = "user-notifications"
)

// Address names a persistent record. It is the lowercase hex form of a
// 32-byte blake3 digest.
type Address string

// Derive computes the address for (identity, purposeTag). The derivation is
// pure and deterministic; the length prefix keeps distinct pairs from
// colliding on concatenation.
func Derive(identity, purposeTag string) Address {
	h := blake3.New()
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(purposeTag)))
	h.Write(lenBuf[:n])
	h.Write([]byte(purposeTag))
	h.Write([]byte(identity))
	sum := h.Sum(nil)
	return Address(hex.EncodeToString(sum))
}

// ParseAddress validates an externally supplied address string.
func ParseAddress(raw string) (Address, bool) {
	if len(raw) != 64 {
		return "", false
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", false
	}
	return Address(raw), true
}

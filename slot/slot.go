// Package slot implements the cluster hash-slot function: mapping a key's
// bytes to one of 16384 slots via CRC16 over the key, or over the
// substring between the first '{' and the next '}' if that substring is
// non-empty (the standard hash-tag convention: keys sharing a tag always
// land on the same slot).
package slot

import (
	"bytes"

	"github.com/howeyc/crc16"
)

// Count is the total number of hash slots in the cluster keyspace.
const Count = 16384

// Slot identifies one partition of the keyspace, in [0, Count).
type Slot uint16

// Key maps key to its hash slot.
func Key(key []byte) Slot {
	return Slot(checksum(tag(key)) % Count)
}

// tag returns the hash-tag substring of key if one is present and
// non-empty, otherwise key itself. A key containing empty braces ("{}")
// has no tag and hashes in full.
func tag(key []byte) []byte {
	start := bytes.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := bytes.IndexByte(key[start+1:], '}')
	if end <= 0 {
		// no closing brace, or the braces are adjacent ("{}"): no tag.
		return key
	}
	return key[start+1 : start+1+end]
}

// checksum uses CCITTFalseTable, not CCITTTable. CCITTTable is the
// reflected variant (CRC-16/KERMIT) and does not reproduce Redis Cluster's
// slot hashes. CCITTFalseTable is the non-reflected, zero-init table,
// CRC-16/XMODEM, which is what Redis's own crc16.c implements.
func checksum(b []byte) uint16 {
	return crc16.Checksum(b, crc16.CCITTFalseTable)
}

// Package record packs and unpacks the 32-bit (crc, id, data) records
// that make up a flash-emulated EEPROM page, and decodes a page's status
// from its first 32-bit slot.
//
// Layout mirrors the teacher's page.go: a fixed-width header occupying
// the first slot, CRC-protected payloads, and an explicit "erased
// sentinel" word standing in for hash/crc32's absent-checksum case.
package record

import "github.com/SimonWaldherr/tinyfee/internal/crc8"

// ErasedWord is the value a slot reads back as after a page erase.
const ErasedWord uint32 = 0xFFFFFFFF

// ReservedID is the identifier value that can never be committed; it is
// indistinguishable from an erased slot's id byte.
const ReservedID byte = 0xFF

// Record is the decoded form of one 32-bit flash slot.
type Record struct {
	CRC  byte
	ID   byte
	Data uint16
}

// Encode packs id and data into a 32-bit little-endian record word,
// computing the CRC over the (id, dataLo, dataHi) tail.
func Encode(id byte, data uint16) uint32 {
	lo := byte(data)
	hi := byte(data >> 8)
	crc := crc8.Compute(id, lo, hi)
	return uint32(crc) | uint32(id)<<8 | uint32(data)<<16
}

// Decode unpacks a 32-bit record word without checking its CRC.
func Decode(word uint32) Record {
	return Record{
		CRC:  byte(word),
		ID:   byte(word >> 8),
		Data: uint16(word >> 16),
	}
}

// IsErased reports whether word is the all-ones erased sentinel.
func IsErased(word uint32) bool {
	return word == ErasedWord
}

// Verify decodes word and recomputes its CRC, returning the record and
// whether the stored CRC matches. Data is returned regardless of the
// integrity result so a caller can salvage a corrupted value.
func Verify(word uint32) (Record, bool) {
	r := Decode(word)
	want := crc8.Compute(r.ID, byte(r.Data), byte(r.Data>>8))
	return r, r.CRC == want
}

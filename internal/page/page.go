// Package page implements the page scanner: free-space accounting and
// newest-first record lookup over a single flash page's word stream.
//
// It is grounded on the teacher's FreeListPage (internal/storage/pager):
// a small struct wrapping byte accessors plus a capacity/linear-scan
// helper, generalized here from a free-id array to a CRC-protected
// record log.
package page

import (
	"errors"

	"github.com/SimonWaldherr/tinyfee/internal/record"
)

// ErrHole is returned by FreeSpace in strict mode when a programmed
// slot is found beyond an erased sentinel — a state plain flash
// corruption can produce, never written by this engine itself.
var ErrHole = errors.New("page: non-erased slot found past an earlier erased sentinel")

// Reader abstracts a word-addressable view over one page's flash region.
// internal/simflash.Sim and the production Flash driver both satisfy the
// narrower read need here via ReadWord.
type Reader interface {
	ReadWord(addr uint32) (uint32, error)
}

// SlotCount returns how many 4-byte slots fit in a page of pageSize bytes.
func SlotCount(pageSize uint32) int {
	return int(pageSize / 4)
}

// FreeSpace scans a page starting at its header slot and returns the
// number of trailing free (all-ones) slots.
//
// In permissive mode (strict=false, the default and the behavior this
// engine preserves from the original firmware) the scan stops at the
// first erased sentinel it finds, even if a programmed slot follows it
// — such a "hole" can only arise from flash corruption, since this
// engine only ever appends.
//
// In strict mode the scan continues to the end of the page; if a
// non-erased slot is found after the first sentinel, ErrHole is returned
// alongside the permissive free-space count.
func FreeSpace(r Reader, pageAddr, pageSize uint32, strict bool) (int, error) {
	total := SlotCount(pageSize)
	firstFree := -1
	for i := 0; i < total; i++ {
		word, err := r.ReadWord(pageAddr + uint32(i*4))
		if err != nil {
			return 0, err
		}
		if record.IsErased(word) {
			if firstFree < 0 {
				firstFree = i
				if !strict {
					break
				}
			}
			continue
		}
		if strict && firstFree >= 0 {
			return total - firstFree, ErrHole
		}
	}
	if firstFree < 0 {
		return 0, nil
	}
	return total - firstFree, nil
}

// FindLatest scans a page from its highest programmed slot down to slot 1
// (the header occupies slot 0) and returns the data of the first record
// whose id matches. Integrity is reported but does not suppress the
// result: the caller decides whether to surface corruption.
func FindLatest(r Reader, pageAddr, pageSize uint32, freeSlots int, id byte) (data uint16, ok bool, found bool, err error) {
	total := SlotCount(pageSize)
	top := total - freeSlots // first free slot index; scan stops just below it
	for i := top - 1; i >= 1; i-- {
		word, rerr := r.ReadWord(pageAddr + uint32(i*4))
		if rerr != nil {
			return 0, false, false, rerr
		}
		if record.IsErased(word) {
			continue
		}
		rec, valid := record.Verify(word)
		if rec.ID == id {
			return rec.Data, valid, true, nil
		}
	}
	return 0, false, false, nil
}

// Package transfer implements the page-transfer (compaction) protocol: when
// the active page runs out of free slots, the surviving latest-value
// record for every id is copied into the device's other page and the old
// page is reclaimed.
//
// Grounded on the teacher's pager.Checkpoint (dirty-page flush-and-relocate
// loop) and pager.GC/walkFreeListChain, whose reachability bitmap becomes,
// here, a 256-bit "id already copied" bitmap over the fixed 8-bit id space.
package transfer

import (
	"errors"

	"github.com/SimonWaldherr/tinyfee/internal/flashio"
	"github.com/SimonWaldherr/tinyfee/internal/page"
	"github.com/SimonWaldherr/tinyfee/internal/record"
)

// ErrTransferExhausted is returned when the receive page runs out of room
// before every surviving record could be copied across — it should never
// happen in practice since the receive page is the same size as the one
// being compacted and duplicate ids collapse to their newest value only,
// but a real device can still fail a verify and burn through retries.
var ErrTransferExhausted = errors.New("transfer: receive page exhausted before copy completed")

// seenSet is a 256-bit bitmap tracking which 8-bit ids have already been
// copied to the receive page, newest-write-wins.
type seenSet [32]byte

func (s *seenSet) has(id byte) bool  { return s[id/8]&(1<<(id%8)) != 0 }
func (s *seenSet) mark(id byte)      { s[id/8] |= 1 << (id % 8) }

// Run compacts activePage into the device's other page and returns the
// address and free-slot count of the new active page. startAddr is the
// lower of the device's two page addresses.
func Run(f flashio.Flash, startAddr, pageSize, activePage uint32) (newActive uint32, newFree int, err error) {
	receivePage := otherPage(startAddr, pageSize, activePage)

	status, err := flashio.ReadHeaderStatus(f, receivePage)
	if err != nil {
		return 0, 0, err
	}
	if status != record.StatusReceive {
		if status != record.StatusErased {
			if err := flashio.ErasePage(f, receivePage); err != nil {
				return 0, 0, err
			}
		}
		if err := flashio.MarkReceive(f, receivePage); err != nil {
			return 0, 0, err
		}
	}

	oldFree, err := page.FreeSpace(f, activePage, pageSize, false)
	if err != nil {
		return 0, 0, err
	}
	total := page.SlotCount(pageSize)
	top := total - oldFree // first free slot index in the old page

	var seen seenSet
	destOffset := uint32(record.HeaderSize)

	for i := top - 1; i >= 1; i-- {
		word, err := f.ReadWord(activePage + uint32(i*4))
		if err != nil {
			return 0, 0, err
		}
		if record.IsErased(word) {
			continue
		}
		rec := record.Decode(word)
		if rec.ID == record.ReservedID || seen.has(rec.ID) {
			continue
		}
		seen.mark(rec.ID)

		for {
			if destOffset >= pageSize {
				return 0, 0, ErrTransferExhausted
			}
			dest := receivePage + destOffset
			verified, werr := flashio.ProgramWordVerified(f, dest, word)
			if werr != nil {
				return 0, 0, werr
			}
			destOffset += 4
			if verified {
				break
			}
			// Verify failed: this slot is bad, retry at the next one.
		}
	}

	if err := flashio.ErasePage(f, activePage); err != nil {
		return 0, 0, err
	}
	if err := flashio.MarkActive(f, receivePage); err != nil {
		return 0, 0, err
	}

	newFree, err = page.FreeSpace(f, receivePage, pageSize, false)
	if err != nil {
		return 0, 0, err
	}
	return receivePage, newFree, nil
}

func otherPage(startAddr, pageSize, active uint32) uint32 {
	if active == startAddr {
		return startAddr + pageSize
	}
	return startAddr
}

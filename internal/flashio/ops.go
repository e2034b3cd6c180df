package flashio

import (
	"fmt"

	"github.com/SimonWaldherr/tinyfee/internal/record"
)

// unlocked runs fn between a paired Unlock/Lock. Once Unlock has
// succeeded, Lock is always issued, even if fn failed — the controller
// must never be left unlocked on an error exit. If Unlock itself fails,
// fn is not run and no Lock is issued.
func unlocked(f Flash, fn func() error) error {
	if err := f.Unlock(); err != nil {
		return fmt.Errorf("flash unlock: %w", err)
	}
	err := fn()
	if lockErr := f.Lock(); lockErr != nil && err == nil {
		err = fmt.Errorf("flash lock: %w", lockErr)
	}
	return err
}

// ErasePage erases one page, properly paired with unlock/lock.
func ErasePage(f Flash, addr uint32) error {
	return unlocked(f, func() error { return f.ErasePage(addr) })
}

// ProgramWord programs both half-words of a 32-bit little-endian word at
// addr, paired with a single unlock/lock. The high (data) half-word is
// programmed first: if power is lost between the two programs, the slot's
// crc and id bytes still read 0xFF, so the torn slot carries the reserved
// id and is never matched by a lookup or copied by a transfer.
func ProgramWord(f Flash, addr uint32, word uint32) error {
	return unlocked(f, func() error {
		if err := f.ProgramHalfword(addr+2, uint16(word>>16)); err != nil {
			return err
		}
		return f.ProgramHalfword(addr, uint16(word))
	})
}

// ProgramWordVerified programs a word and reads it back; it reports
// whether the readback matched (a write-verify primitive shared by the
// transfer engine and the public Write path).
func ProgramWordVerified(f Flash, addr uint32, word uint32) (verified bool, err error) {
	if err := ProgramWord(f, addr, word); err != nil {
		return false, err
	}
	got, err := f.ReadWord(addr)
	if err != nil {
		return false, err
	}
	return got == word, nil
}

// MarkReceive clears only the header's low half-word, transitioning
// erased -> receive without requiring a re-erase.
func MarkReceive(f Flash, pageAddr uint32) error {
	return unlocked(f, func() error {
		return f.ProgramHalfword(pageAddr+record.LowHalfOffset, 0x0000)
	})
}

// MarkActive clears only the header's high half-word, transitioning
// either erased or receive into active.
func MarkActive(f Flash, pageAddr uint32) error {
	return unlocked(f, func() error {
		return f.ProgramHalfword(pageAddr+record.HighHalfOffset, 0x0000)
	})
}

// ReadHeaderStatus reads and decodes a page's header word.
func ReadHeaderStatus(f Flash, pageAddr uint32) (record.Status, error) {
	word, err := f.ReadWord(pageAddr)
	if err != nil {
		return record.StatusInvalid, err
	}
	return record.DecodeHeaderStatus(word), nil
}

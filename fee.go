// Package fee implements a Flash-Emulated EEPROM: a crash-safe 8-bit-key
// to 16-bit-word store built on top of a flash device that supports only
// whole-page erase and write-once half-word programming.
//
// Callers supply a Flash implementation (see flashio.Flash, re-exported
// here as Flash) and open a Store over two equally-sized pages. Store is
// not safe for concurrent use; the caller serializes access the way the
// original firmware relies on a caller-disabled-interrupts section around
// every call (see the doc comment on Store for details).
package fee

import (
	"errors"
	"fmt"

	"github.com/SimonWaldherr/tinyfee/internal/flashio"
	"github.com/SimonWaldherr/tinyfee/internal/page"
	"github.com/SimonWaldherr/tinyfee/internal/record"
	"github.com/SimonWaldherr/tinyfee/internal/recovery"
	"github.com/SimonWaldherr/tinyfee/internal/transfer"
)

const (
	versionMajor uint32 = 0x01
	versionMinor uint32 = 0x03
	versionPatch uint32 = 0x01
)

// GetVersion returns the engine's (MAJOR<<16)|(MINOR<<8)|PATCH version
// word.
func GetVersion() uint32 {
	return versionMajor<<16 | versionMinor<<8 | versionPatch
}

var (
	// ErrNotFound is returned by Read when no record with the given id
	// exists on the active page.
	ErrNotFound = errors.New("fee: id not found")
	// ErrCorrupt is returned by Read when a record with the given id was
	// found but its CRC does not match; the data value is still returned.
	ErrCorrupt = errors.New("fee: record failed integrity check")
	// ErrInvalidArg is returned for id == 0xFF on Write, or an Open call
	// with an out-of-range page size.
	ErrInvalidArg = errors.New("fee: invalid argument")
	// ErrTransferExhausted is returned when a page transfer cannot fit
	// every surviving record into the receive page.
	ErrTransferExhausted = errors.New("fee: page transfer exhausted target page")
)

// Flash is the driver interface a caller must implement: unlock/lock a
// shared controller, erase a whole page, program one half-word at a time,
// and read a 32-bit-aligned word.
type Flash = flashio.Flash

// Store is the in-memory handle produced by Open. It carries no mutex —
// callers serialize access to Read/Write/Close themselves, the way the
// original firmware expects the caller to guard entry with a disabled-
// interrupts section or an external lock. The reserved lock byte of the
// original handle layout has no behavior here; it is intentionally not
// modeled as a field since Go callers serialize with their own sync
// primitives instead.
type Store struct {
	flash      Flash
	start      uint32
	pageSize   uint32
	activePage uint32
	freeSlots  int
}

// Open runs recovery over the two pages at [start, start+2*pageSize) and
// returns a ready-to-use Store. pageSize must be at least 8 and a
// multiple of 4.
func Open(flash Flash, start, pageSize uint32) (*Store, error) {
	if pageSize < 8 || pageSize%4 != 0 {
		return nil, fmt.Errorf("%w: page size %d must be >= 8 and a multiple of 4", ErrInvalidArg, pageSize)
	}

	rep, err := recovery.Run(flash, start, pageSize)
	if err != nil {
		return nil, fmt.Errorf("fee: recovery: %w", err)
	}

	s := &Store{
		flash:      flash,
		start:      start,
		pageSize:   pageSize,
		activePage: rep.ActivePage,
		freeSlots:  rep.FreeSlots,
	}
	if s.freeSlots == 0 {
		if err := s.runTransfer(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close erases page 0, matching the original firmware's intentionally
// minimal teardown: this leaves page 1's contents in place. Use CloseFull
// to wipe both pages.
func (s *Store) Close() error {
	if err := flashio.ErasePage(s.flash, s.start); err != nil {
		return fmt.Errorf("fee: close: %w", err)
	}
	return nil
}

// CloseFull erases both pages, for callers that want no residual data
// left on the device after teardown.
func (s *Store) CloseFull() error {
	if err := flashio.ErasePage(s.flash, s.start); err != nil {
		return fmt.Errorf("fee: close: %w", err)
	}
	if err := flashio.ErasePage(s.flash, s.start+s.pageSize); err != nil {
		return fmt.Errorf("fee: close: %w", err)
	}
	return nil
}

// Read returns the current value for id. It returns ErrNotFound if no
// record exists, or ErrCorrupt (with the stored data still returned) if
// the record's CRC does not match.
func (s *Store) Read(id uint8) (uint16, error) {
	data, ok, found, err := page.FindLatest(s.flash, s.activePage, s.pageSize, s.freeSlots, id)
	if err != nil {
		return 0, fmt.Errorf("fee: read: %w", err)
	}
	if !found {
		return 0, ErrNotFound
	}
	if !ok {
		return data, ErrCorrupt
	}
	return data, nil
}

// Write stores data under id, eliding the flash write entirely if id
// already holds that value. It triggers a page transfer as soon as the
// active page is full (including right after the write that fills its
// last slot), and retries into the next slot on a readback mismatch,
// bounded by the page's total slot count.
func (s *Store) Write(id uint8, data uint16) error {
	if id == record.ReservedID {
		return fmt.Errorf("%w: id 0xFF is reserved", ErrInvalidArg)
	}
	if cur, err := s.Read(id); err == nil && cur == data {
		return nil
	}

	total := page.SlotCount(s.pageSize)
	for attempt := 0; attempt < total; attempt++ {
		if s.freeSlots == 0 {
			if err := s.runTransfer(); err != nil {
				return err
			}
		}
		destOffset := uint32(total-s.freeSlots) * 4
		dest := s.activePage + destOffset
		word := record.Encode(id, data)

		verified, err := flashio.ProgramWordVerified(s.flash, dest, word)
		if err != nil {
			return fmt.Errorf("fee: write: %w", err)
		}
		s.freeSlots--
		if verified {
			if s.freeSlots == 0 {
				return s.runTransfer()
			}
			return nil
		}
	}
	return ErrTransferExhausted
}

func (s *Store) runTransfer() error {
	newActive, newFree, err := transfer.Run(s.flash, s.start, s.pageSize, s.activePage)
	if err != nil {
		if errors.Is(err, transfer.ErrTransferExhausted) {
			return ErrTransferExhausted
		}
		return fmt.Errorf("fee: transfer: %w", err)
	}
	s.activePage = newActive
	s.freeSlots = newFree
	return nil
}

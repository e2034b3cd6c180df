// Package simflash provides a RAM-backed implementation of the fee.Flash
// driver interface for tests: it honors the erase-to-ones and
// program-only-clears-bits constraints real NOR flash imposes, and can
// inject a failure after a chosen number of successful operations to
// model power loss at an arbitrary point in a write or transfer.
//
// Grounded on the teacher's test doubles in pager_test.go, which build
// page buffers directly in memory rather than going through a real file;
// the erase/program semantics below are new, since tinySQL's pager talks
// to a regular POSIX file and has no equivalent constraint to model.
package simflash

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrInjectedFailure is returned by the operation at which a configured
// failure point fires.
var ErrInjectedFailure = errors.New("simflash: injected failure")

// ErrLockedOut is returned when Erase or Program is called without a
// matching Unlock.
var ErrLockedOut = errors.New("simflash: flash controller not unlocked")

// Sim is an in-memory flash device. It knows its own page size, like a
// real flash part's erase granularity, so ErasePage needs only an address.
type Sim struct {
	buf      []byte
	pageSize uint32
	unlocked bool
	opCount  int
	failAt   int // 0 = never fail
}

// New creates a Sim of the given total size, fully erased (all bytes
// 0xFF), with the given page erase granularity.
func New(size, pageSize uint32) *Sim {
	s := &Sim{buf: make([]byte, size), pageSize: pageSize}
	for i := range s.buf {
		s.buf[i] = 0xFF
	}
	return s
}

// Fail configures the simulator to return ErrInjectedFailure on the
// nth call to Erase/Program/Unlock/Lock (1-indexed), modeling a power
// loss partway through a sequence of flash operations. 0 disables
// injection (the default).
func (s *Sim) Fail(nth int) {
	s.failAt = nth
}

// OpCount returns the number of Unlock/Lock/Erase/Program calls observed
// so far, for tests that want to enumerate every possible crash point.
func (s *Sim) OpCount() int { return s.opCount }

func (s *Sim) tick() error {
	s.opCount++
	if s.failAt != 0 && s.opCount >= s.failAt {
		return ErrInjectedFailure
	}
	return nil
}

// Unlock marks the controller ready to accept Erase/Program calls.
func (s *Sim) Unlock() error {
	if err := s.tick(); err != nil {
		return err
	}
	s.unlocked = true
	return nil
}

// Lock marks the controller no longer ready to accept Erase/Program calls.
func (s *Sim) Lock() error {
	if err := s.tick(); err != nil {
		return err
	}
	s.unlocked = false
	return nil
}

// ErasePage sets every byte in [addr, addr+pageSize) to 0xFF.
func (s *Sim) ErasePage(addr uint32) error {
	if !s.unlocked {
		return ErrLockedOut
	}
	if err := s.tick(); err != nil {
		return err
	}
	if int(addr+s.pageSize) > len(s.buf) {
		return fmt.Errorf("simflash: erase out of range at %#x", addr)
	}
	for i := addr; i < addr+s.pageSize; i++ {
		s.buf[i] = 0xFF
	}
	return nil
}

// ProgramHalfword clears bits of the 16-bit little-endian half-word at
// addr to match v — flash can only ever clear bits between erases, so
// this ANDs the existing content with v rather than overwriting it,
// matching real NOR/NAND program semantics.
func (s *Sim) ProgramHalfword(addr uint32, v uint16) error {
	if !s.unlocked {
		return ErrLockedOut
	}
	if err := s.tick(); err != nil {
		return err
	}
	if int(addr+2) > len(s.buf) {
		return fmt.Errorf("simflash: program out of range at %#x", addr)
	}
	existing := binary.LittleEndian.Uint16(s.buf[addr : addr+2])
	binary.LittleEndian.PutUint16(s.buf[addr:addr+2], existing&v)
	return nil
}

// ReadWord performs a direct 32-bit-aligned load, bypassing the
// unlock/lock gate (reads are always allowed, as on real memory-mapped
// flash).
func (s *Sim) ReadWord(addr uint32) (uint32, error) {
	if int(addr+4) > len(s.buf) {
		return 0, fmt.Errorf("simflash: read out of range at %#x", addr)
	}
	return binary.LittleEndian.Uint32(s.buf[addr : addr+4]), nil
}

// Snapshot returns a copy of the device's current byte contents, for
// constructing a fresh Sim at an exact point-in-time crash state.
func (s *Sim) Snapshot() []byte {
	cp := make([]byte, len(s.buf))
	copy(cp, s.buf)
	return cp
}

// FromSnapshot builds a Sim whose contents are exactly buf (copied), with
// the given page size.
func FromSnapshot(buf []byte, pageSize uint32) *Sim {
	s := &Sim{buf: make([]byte, len(buf)), pageSize: pageSize}
	copy(s.buf, buf)
	return s
}

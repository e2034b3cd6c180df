// Package recovery implements the startup state machine that inspects the
// two page headers and restores the device to a single unambiguous active
// page, resuming an interrupted transfer if one was caught mid-flight.
//
// Grounded on the teacher's pager.Recover, which reads the WAL and
// checkpoint markers left on disk and replays or discards accordingly; here
// the "WAL" is simply the pair of page status half-words themselves.
package recovery

import (
	"github.com/SimonWaldherr/tinyfee/internal/flashio"
	"github.com/SimonWaldherr/tinyfee/internal/page"
	"github.com/SimonWaldherr/tinyfee/internal/record"
	"github.com/SimonWaldherr/tinyfee/internal/transfer"
)

// Outcome names which branch of the recovery switch fired, for logging and
// tests; it carries no behavior of its own.
type Outcome int

const (
	OutcomeNormal Outcome = iota
	OutcomeResumedTransfer
	OutcomePromotedReceive
	OutcomeReformatted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNormal:
		return "normal"
	case OutcomeResumedTransfer:
		return "resumed-transfer"
	case OutcomePromotedReceive:
		return "promoted-receive"
	case OutcomeReformatted:
		return "reformatted"
	default:
		return "unknown"
	}
}

// Report summarizes what recovery found and did.
type Report struct {
	Outcome    Outcome
	ActivePage uint32
	FreeSlots  int
}

// Run inspects both page headers at [startAddr, startAddr+pageSize) and
// [startAddr+pageSize, startAddr+2*pageSize) and returns the device to a
// single active page, matching the four-way switch over the page-status
// pair that the original firmware's init routine implements: a clean
// {active, erased} pair needs no action; {active, receive} means a
// transfer was interrupted after the receive page was opened and is
// resumed to completion; {receive, erased} means the old page was already
// reclaimed but the receive page was never promoted, so it is promoted in
// place; every other combination (including double-active, double-erased,
// or any invalid header) is unrecoverable and the device is reformatted.
func Run(f flashio.Flash, startAddr, pageSize uint32) (Report, error) {
	page0 := startAddr
	page1 := startAddr + pageSize

	status0, err := flashio.ReadHeaderStatus(f, page0)
	if err != nil {
		return Report{}, err
	}
	status1, err := flashio.ReadHeaderStatus(f, page1)
	if err != nil {
		return Report{}, err
	}

	switch {
	case isPair(status0, status1, record.StatusActive, record.StatusErased):
		active, erased := page0, page1
		if status1 == record.StatusActive {
			active, erased = page1, page0
		}
		if err := ensureErased(f, erased, pageSize); err != nil {
			return Report{}, err
		}
		free, err := page.FreeSpace(f, active, pageSize, false)
		if err != nil {
			return Report{}, err
		}
		return Report{OutcomeNormal, active, free}, nil

	case isPair(status0, status1, record.StatusActive, record.StatusReceive):
		oldActive := page0
		if status1 == record.StatusActive {
			oldActive = page1
		}
		newActive, free, err := transfer.Run(f, startAddr, pageSize, oldActive)
		if err != nil {
			return Report{}, err
		}
		return Report{OutcomeResumedTransfer, newActive, free}, nil

	case isPair(status0, status1, record.StatusReceive, record.StatusErased):
		receive, erased := page0, page1
		if status1 == record.StatusReceive {
			receive, erased = page1, page0
		}
		if err := ensureErased(f, erased, pageSize); err != nil {
			return Report{}, err
		}
		if err := flashio.MarkActive(f, receive); err != nil {
			return Report{}, err
		}
		free, err := page.FreeSpace(f, receive, pageSize, false)
		if err != nil {
			return Report{}, err
		}
		return Report{OutcomePromotedReceive, receive, free}, nil

	default:
		if err := ensureErased(f, page0, pageSize); err != nil {
			return Report{}, err
		}
		if err := ensureErased(f, page1, pageSize); err != nil {
			return Report{}, err
		}
		if err := flashio.MarkActive(f, page0); err != nil {
			return Report{}, err
		}
		free, err := page.FreeSpace(f, page0, pageSize, false)
		if err != nil {
			return Report{}, err
		}
		return Report{OutcomeReformatted, page0, free}, nil
	}
}

// isPair reports whether (a, b) equals (want1, want2) in either order.
func isPair(a, b, want1, want2 record.Status) bool {
	return (a == want1 && b == want2) || (a == want2 && b == want1)
}

// ensureErased checks that a page believed to be erased reports
// free_space == total_slots and erases it if not. The check is the
// permissive free-space scan starting at the header slot, so a page whose
// header word is all-ones always passes; stray programmed bits further
// into such a page are not detected here.
func ensureErased(f flashio.Flash, pageAddr, pageSize uint32) error {
	free, err := page.FreeSpace(f, pageAddr, pageSize, false)
	if err != nil {
		return err
	}
	if free == page.SlotCount(pageSize) {
		return nil
	}
	return flashio.ErasePage(f, pageAddr)
}

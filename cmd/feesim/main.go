// Command feesim is a developer harness for the fee engine: it backs a
// Store with a flash image stored in a regular file, accepts a small
// line-oriented script on stdin (write/read/inspect/close), and can
// simulate a power loss after a chosen number of flash primitive calls to
// exercise recovery on the next run against the same image file.
package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/SimonWaldherr/tinyfee"
	"github.com/SimonWaldherr/tinyfee/internal/flashio"
	"github.com/SimonWaldherr/tinyfee/internal/page"
)

var (
	flagImage    = flag.String("image", "feesim.img", "path to the backing flash image file")
	flagPageSize = flag.Uint("pagesize", 64, "page size in bytes (multiple of 4, >= 8)")
	flagCrashAt  = flag.Int("crash-at", 0, "exit at the Nth flash primitive call, before it takes effect (0 disables)")
)

func main() {
	flag.Parse()

	pageSize := uint32(*flagPageSize)
	img, err := openFileFlash(*flagImage, 2*pageSize, pageSize, *flagCrashAt)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open image error:", err)
		os.Exit(1)
	}
	defer img.Close()

	store, err := fee.Open(img, 0, pageSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open store error:", err)
		os.Exit(1)
	}

	runScript(store, img, pageSize, os.Stdin, os.Stdout)
}

func runScript(store *fee.Store, flash flashio.Flash, pageSize uint32, in *os.File, out *os.File) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "write":
			id, data := mustParseIDData(fields)
			if err := store.Write(id, data); err != nil {
				fmt.Fprintln(out, "ERR", err)
				continue
			}
			fmt.Fprintln(out, "OK")
		case "read":
			id := mustParseID(fields)
			data, err := store.Read(id)
			if err != nil {
				fmt.Fprintln(out, "ERR", err)
				continue
			}
			fmt.Fprintf(out, "OK %#04x\n", data)
		case "inspect":
			inspectPages(flash, pageSize, out)
		case "close":
			if err := store.Close(); err != nil {
				fmt.Fprintln(out, "ERR", err)
			}
			return
		default:
			fmt.Fprintln(out, "ERR unknown command:", fields[0])
		}
	}
}

// inspectPages reports each page's header status and free-space count in
// strict mode, flagging a "hole" (a programmed slot found past an earlier
// erased sentinel) — the diagnostic case internal/page.FreeSpace's strict
// mode exists for, which the engine itself never triggers in normal
// operation.
func inspectPages(flash flashio.Flash, pageSize uint32, out *os.File) {
	for _, addr := range []uint32{0, pageSize} {
		status, err := flashio.ReadHeaderStatus(flash, addr)
		if err != nil {
			fmt.Fprintln(out, "ERR", err)
			continue
		}
		free, err := page.FreeSpace(flash, addr, pageSize, true)
		switch {
		case errors.Is(err, page.ErrHole):
			fmt.Fprintf(out, "page %#x: status=%s free=%d hole=true\n", addr, status, free)
		case err != nil:
			fmt.Fprintln(out, "ERR", err)
		default:
			fmt.Fprintf(out, "page %#x: status=%s free=%d hole=false\n", addr, status, free)
		}
	}
}

func mustParseID(fields []string) uint8 {
	n, err := strconv.ParseUint(fields[1], 0, 8)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad id:", err)
		os.Exit(1)
	}
	return uint8(n)
}

func mustParseIDData(fields []string) (uint8, uint16) {
	id := mustParseID(fields)
	data, err := strconv.ParseUint(fields[2], 0, 16)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad data:", err)
		os.Exit(1)
	}
	return id, uint16(data)
}

// fileFlash implements fee.Flash over a regular file, so a feesim run can
// be killed (or can inject a crash-at exit) and the next run's fee.Open
// recovers from whatever was durably on disk.
type fileFlash struct {
	f        *os.File
	pageSize uint32
	unlocked bool
	opCount  int
	crashAt  int
}

func openFileFlash(path string, totalSize, pageSize uint32, crashAt int) (*fileFlash, error) {
	fresh := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fresh = true
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	ff := &fileFlash{f: f, pageSize: pageSize, crashAt: crashAt}
	if fresh {
		ones := make([]byte, totalSize)
		for i := range ones {
			ones[i] = 0xFF
		}
		if _, err := f.WriteAt(ones, 0); err != nil {
			return nil, err
		}
	}
	return ff, nil
}

func (ff *fileFlash) Close() error { return ff.f.Close() }

func (ff *fileFlash) tick() error {
	ff.opCount++
	if ff.crashAt != 0 && ff.opCount >= ff.crashAt {
		fmt.Fprintln(os.Stderr, "feesim: simulated power loss at op", ff.opCount)
		os.Exit(2)
	}
	return nil
}

func (ff *fileFlash) Unlock() error {
	if err := ff.tick(); err != nil {
		return err
	}
	ff.unlocked = true
	return nil
}

func (ff *fileFlash) Lock() error {
	if err := ff.tick(); err != nil {
		return err
	}
	ff.unlocked = false
	return nil
}

func (ff *fileFlash) ErasePage(addr uint32) error {
	if !ff.unlocked {
		return fmt.Errorf("feesim: erase while locked")
	}
	if err := ff.tick(); err != nil {
		return err
	}
	ones := make([]byte, ff.pageSize)
	for i := range ones {
		ones[i] = 0xFF
	}
	_, err := ff.f.WriteAt(ones, int64(addr))
	return err
}

func (ff *fileFlash) ProgramHalfword(addr uint32, v uint16) error {
	if !ff.unlocked {
		return fmt.Errorf("feesim: program while locked")
	}
	if err := ff.tick(); err != nil {
		return err
	}
	var existing [2]byte
	if _, err := ff.f.ReadAt(existing[:], int64(addr)); err != nil {
		return err
	}
	cur := binary.LittleEndian.Uint16(existing[:])
	var out [2]byte
	binary.LittleEndian.PutUint16(out[:], cur&v)
	_, err := ff.f.WriteAt(out[:], int64(addr))
	return err
}

func (ff *fileFlash) ReadWord(addr uint32) (uint32, error) {
	var buf [4]byte
	if _, err := ff.f.ReadAt(buf[:], int64(addr)); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

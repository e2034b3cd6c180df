package simflash

import "testing"

func TestNew_StartsFullyErased(t *testing.T) {
	s := New(64, 64)
	word, err := s.ReadWord(0)
	if err != nil {
		t.Fatal(err)
	}
	if word != 0xFFFFFFFF {
		t.Fatalf("word = %#08x, want all-ones", word)
	}
}

func TestProgramHalfword_OnlyClearsBits(t *testing.T) {
	s := New(64, 64)
	if err := s.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := s.ProgramHalfword(0, 0x00FF); err != nil {
		t.Fatal(err)
	}
	word, _ := s.ReadWord(0)
	if word != 0xFFFF00FF {
		t.Fatalf("word = %#08x, want 0xFFFF00FF", word)
	}
	// Attempting to set a bit back to 1 must be a no-op, not an error.
	if err := s.ProgramHalfword(0, 0xFFFF); err != nil {
		t.Fatal(err)
	}
	word, _ = s.ReadWord(0)
	if word != 0xFFFF00FF {
		t.Fatalf("re-program set a bit that was already clear: %#08x", word)
	}
}

func TestErasePage_ResetsToAllOnes(t *testing.T) {
	s := New(64, 64)
	s.Unlock()
	s.ProgramHalfword(0, 0x0000)
	s.Lock()
	s.Unlock()
	if err := s.ErasePage(0); err != nil {
		t.Fatal(err)
	}
	word, _ := s.ReadWord(0)
	if word != 0xFFFFFFFF {
		t.Fatalf("page not erased: %#08x", word)
	}
}

func TestProgramWithoutUnlock_Fails(t *testing.T) {
	s := New(64, 64)
	if err := s.ProgramHalfword(0, 0x0000); err != ErrLockedOut {
		t.Fatalf("expected ErrLockedOut, got %v", err)
	}
}

func TestFail_InjectsAtConfiguredOp(t *testing.T) {
	s := New(64, 64)
	s.Fail(2)
	if err := s.Unlock(); err != nil { // op 1
		t.Fatal(err)
	}
	if err := s.ProgramHalfword(0, 0x0000); err != ErrInjectedFailure { // op 2
		t.Fatalf("expected ErrInjectedFailure, got %v", err)
	}
}

func TestSnapshot_IsIndependentCopy(t *testing.T) {
	s := New(64, 64)
	s.Unlock()
	s.ProgramHalfword(0, 0x0000)
	snap := s.Snapshot()
	s.ProgramHalfword(2, 0x0000)

	restored := FromSnapshot(snap, 64)
	word, _ := restored.ReadWord(0)
	if word != 0xFFFF0000 {
		t.Fatalf("snapshot captured later mutation: %#08x", word)
	}
}

package fee

import "testing"

func TestGetVersion(t *testing.T) {
	if got := GetVersion(); got != 0x00010301 {
		t.Fatalf("GetVersion() = %#08x, want 0x00010301", got)
	}
}

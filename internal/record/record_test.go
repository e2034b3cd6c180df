package record

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	word := Encode(0x10, 0xABCD)
	r := Decode(word)
	if r.ID != 0x10 || r.Data != 0xABCD {
		t.Fatalf("decode mismatch: %+v", r)
	}
	if IsErased(word) {
		t.Fatal("freshly encoded record reported as erased")
	}
}

func TestVerify_DetectsCorruption(t *testing.T) {
	word := Encode(0x42, 0x1234)
	if _, ok := Verify(word); !ok {
		t.Fatal("valid record failed verify")
	}
	word ^= 0x00FF0000 // flip every bit of the data's low byte, leave CRC byte untouched
	r, ok := Verify(word)
	if ok {
		t.Fatal("expected corruption to be detected")
	}
	if r.Data == 0x1234 {
		t.Fatal("data was not actually perturbed by the test")
	}
}

func TestIsErased(t *testing.T) {
	if !IsErased(ErasedWord) {
		t.Fatal("ErasedWord not reported as erased")
	}
	if IsErased(Encode(0x00, 0x0000)) {
		t.Fatal("a real zero-valued record must not be mistaken for erased")
	}
}

func TestDecodeHeaderStatus(t *testing.T) {
	cases := []struct {
		word uint32
		want Status
	}{
		{0xFFFFFFFF, StatusErased},
		{0xFFFF0000, StatusReceive},
		{0x0000FFFF, StatusActive},
		{0x00000000, StatusActive}, // active dominates even if low half is also clear
		{0x1234FFFF, StatusInvalid},
		{0x00001234, StatusActive}, // high half clear dominates even over a garbage low half
	}
	for _, c := range cases {
		if got := DecodeHeaderStatus(c.word); got != c.want {
			t.Errorf("DecodeHeaderStatus(%#08x) = %s, want %s", c.word, got, c.want)
		}
	}
}

package protocol

import "testing"

func TestAliveIntervalRoundTrip(t *testing.T) {
	payload, err := EncodeAliveInterval(150, 20)
	if err != nil {
		t.Fatalf("EncodeAliveInterval failed: %v", err)
	}
	base, variation, err := DecodeAliveInterval(payload)
	if err != nil {
		t.Fatalf("DecodeAliveInterval failed: %v", err)
	}
	if base != 150 || variation != 20 {
		t.Errorf("Expected 150/20, got %d/%d", base, variation)
	}
}

func TestAliveIntervalRange(t *testing.T) {
	cases := []struct {
		base, variation uint32
	}{
		{0, 0},
		{500, 0},
		{100, 101},
	}
	for _, tc := range cases {
		if _, err := EncodeAliveInterval(tc.base, tc.variation); err != ErrAliveInterval {
			t.Errorf("Expected ErrAliveInterval for %d/%d, got %v", tc.base, tc.variation, err)
		}
	}
}

func TestSolidColorBytes(t *testing.T) {
	got := SolidColor{R: 255}.Bytes()
	want := []byte{0x02, 255, 0, 0, 0}
	if string(got) != string(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	got = SolidColor{Mode: 0x07, G: 1, W: 9}.Bytes()
	want = []byte{0x07, 0, 1, 0, 9}
	if string(got) != string(want) {
		t.Errorf("Expected mode byte kept, %v, got %v", want, got)
	}
}

package core

import "testing"

func TestItoa(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{Itoa(0), "0"},
		{Itoa(42), "42"},
		{Itoa(-17), "-17"},
		{Itoa(uint32(4294967295)), "4294967295"},
		{Itoa(uint8(200)), "200"},
		{Itoa(int8(-128)), "-128"},
		{Itoa(int64(-9223372036854775808)), "-9223372036854775808"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("Expected %s, got %s", tc.want, tc.got)
		}
	}
}

func TestHex(t *testing.T) {
	if got := Hex([]byte{0x02, 0xFF, 0x00}); got != "02FF00" {
		t.Errorf("Expected 02FF00, got %s", got)
	}
}

package chain

import (
	"encoding/json"
	"testing"
)

func TestParseFixed8(t *testing.T) {
	cases := []struct {
		in   string
		want Fixed8
		ok   bool
	}{
		{"0.000396", 39600, true},
		{"10", 10 * fixed8Unit, true},
		{"0.1", 10_000_000, true},
		{"1.00000001", fixed8Unit + 1, true},
		{"-2.5", -250_000_000, true},
		{".5", 50_000_000, true},
		{"0", 0, true},
		{"0.000000001", 0, false}, // ninth decimal place
		{"", 0, false},
		{".", 0, false},
		{"1e5", 0, false},
		{"abc", 0, false},
		{"99999999999999999999", 0, false}, // overflows int64 units
	}

	for _, tc := range cases {
		got, err := ParseFixed8(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		if !tc.ok {
			if err == nil {
				t.Fatalf("parse %q: expected error, got %d", tc.in, got)
			}
			continue
		}
		if got != tc.want {
			t.Fatalf("parse %q = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFixed8JSON(t *testing.T) {
	var m NewOrderMsg
	body := `{"symbol":"ANN-457_TWD","order_type":"LIMIT","side":"buy","price":0.000396,"quantity":10,"time_in_force":"GTE"}`
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Price != 39600 {
		t.Fatalf("price = %d units, want 39600", m.Price)
	}
	if m.Quantity != 10*fixed8Unit {
		t.Fatalf("quantity = %d units, want %d", m.Quantity, 10*fixed8Unit)
	}

	// quoted decimal strings are accepted too
	var f Fixed8
	if err := json.Unmarshal([]byte(`"0.5"`), &f); err != nil {
		t.Fatalf("unmarshal string form: %v", err)
	}
	if f != 50_000_000 {
		t.Fatalf("string form = %d units, want 50000000", f)
	}

	// the wire form is the integer unit count
	out, err := json.Marshal(Fixed8(39600))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "39600" {
		t.Fatalf("wire form = %s, want 39600", out)
	}
}

func TestFixed8String(t *testing.T) {
	cases := []struct {
		in   Fixed8
		want string
	}{
		{39600, "0.000396"},
		{10 * fixed8Unit, "10"},
		{-250_000_000, "-2.5"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := tc.in.String(); got != tc.want {
			t.Fatalf("%d.String() = %q, want %q", int64(tc.in), got, tc.want)
		}
	}
}

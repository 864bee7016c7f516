package core

import (
	"testing"
	"time"
)

func TestToday(t *testing.T) {
	// 23:30 UTC on Jan 1 is already Jan 2 in Tokyo.
	now := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	if got := Today(now, nil); got != "2024-01-01" {
		t.Fatalf("Today UTC = %q", got)
	}
	tokyo := time.FixedZone("JST", 9*60*60)
	if got := Today(now, tokyo); got != "2024-01-02" {
		t.Fatalf("Today JST = %q", got)
	}
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"2024-01-01", "2024-01-01", true},
		{" 2024-12-31 ", "2024-12-31", true},
		{"", "", false},
		{"2024-1-1", "", false},
		{"2024-02-30", "", false},
		{"01/02/2024", "", false},
		{"today", "", false},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %q, got %q (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

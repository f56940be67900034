package clampms

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct {
		in, want int64
	}{
		{-100, Min},
		{0, Min},
		{25, 25},
		{2500, 2500},
		{5000, 5000},
		{10_000, Max},
	}
	for _, c := range cases {
		if got := Clamp(c.in); got != c.want {
			t.Errorf("Clamp(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

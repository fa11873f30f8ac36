package client

import "testing"

func TestClampExit(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{-1, 0},
		{0, 0},
		{42, 42},
		{255, 255},
		{256, 255},
		{1000, 255},
	}
	for _, c := range cases {
		if got := clampExit(c.in); got != c.want {
			t.Errorf("clampExit(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

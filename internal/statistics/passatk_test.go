package statistics

import (
	"math"
	"testing"
)

func TestPassAtK(t *testing.T) {
	tests := []struct {
		name    string
		n, c, k int
		want    float64
	}{
		{"no trials", 0, 0, 1, 0.0},
		{"k zero", 10, 5, 0, 0.0},
		{"no passes", 10, 0, 1, 0.0},
		{"all pass", 10, 10, 1, 1.0},
		{"k equals n all pass", 5, 5, 5, 1.0},
		{"single trial pass", 1, 1, 1, 1.0},
		{"single trial fail", 1, 0, 1, 0.0},
		{"half pass k1", 10, 5, 1, 0.5}, // 1 - C(5,1)/C(10,1) = 1 - 5/10
		{"half pass k2", 10, 5, 2, 7.0 / 9.0},
		{"one pass k equals n", 10, 1, 10, 1.0},
		{"more successes than failures k big", 10, 8, 5, 1.0}, // n-c < k
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PassAtK(tt.n, tt.c, tt.k)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PassAtK(%d, %d, %d) = %f, want %f", tt.n, tt.c, tt.k, got, tt.want)
			}
		})
	}
}

func TestPassAtK_MonotoneInK(t *testing.T) {
	// More attempts can only help.
	prev := 0.0
	for k := 1; k <= 10; k++ {
		got := PassAtK(10, 3, k)
		if got < prev {
			t.Errorf("PassAtK should be non-decreasing in k: k=%d gave %f after %f", k, got, prev)
		}
		prev = got
	}
}

func TestPassHatK(t *testing.T) {
	tests := []struct {
		name    string
		n, c, k int
		want    float64
	}{
		{"no trials", 0, 0, 1, 0.0},
		{"k zero", 10, 5, 0, 0.0},
		{"all pass", 10, 10, 3, 1.0},
		{"no passes", 10, 0, 3, 0.0},
		{"half pass k1", 10, 5, 1, 0.5},
		{"half pass k3", 10, 5, 3, 0.125},
		{"rate k2", 10, 8, 2, 0.64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PassHatK(tt.n, tt.c, tt.k)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PassHatK(%d, %d, %d) = %f, want %f", tt.n, tt.c, tt.k, got, tt.want)
			}
		})
	}
}

func TestPassHatK_MonotoneDecreasingInK(t *testing.T) {
	// Requiring every attempt to pass only gets harder.
	prev := 1.0
	for k := 1; k <= 10; k++ {
		got := PassHatK(10, 7, k)
		if got > prev {
			t.Errorf("PassHatK should be non-increasing in k: k=%d gave %f after %f", k, got, prev)
		}
		prev = got
	}
}

package tokens

import (
	"strings"
	"testing"
)

func TestEstimate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", 0},
		{"one byte", "a", 1},
		{"three bytes", "abc", 1},
		{"four bytes", "abcd", 1},
		{"five bytes", "abcde", 2},
		{"eight bytes", "abcdefgh", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Estimate(tt.in); got != tt.want {
				t.Errorf("Estimate(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestBudgetBytes(t *testing.T) {
	t.Parallel()
	if got := BudgetBytes(100); got != 400 {
		t.Errorf("BudgetBytes(100) = %d, want 400", got)
	}
	if got := BudgetBytes(0); got != 0 {
		t.Errorf("BudgetBytes(0) = %d, want 0", got)
	}
	if got := BudgetBytes(-5); got != 0 {
		t.Errorf("BudgetBytes(-5) = %d, want 0", got)
	}
}

func TestOver(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 401)
	if !Over(long, 100) {
		t.Error("401 bytes should exceed a 100-token budget")
	}
	if Over(strings.Repeat("x", 400), 100) {
		t.Error("400 bytes should fit a 100-token budget")
	}
	if Over(long, 0) {
		t.Error("non-positive budget means unlimited")
	}
}

package words

import (
	"errors"
	"math"
	"testing"
)

func TestDollars(t *testing.T) {
	tests := []struct {
		amount int64
		want   string
	}{
		{1, "One Dollar"},
		{2, "Two Dollars"},
		{15, "Fifteen Dollars"},
		{40, "Forty Dollars"},
		{99, "Ninety-Nine Dollars"},
		{100, "One Hundred Dollars"},
		{101, "One Hundred One Dollars"},
		{1_000, "One Thousand Dollars"},
		{5_005, "Five Thousand Five Dollars"},
		{125_000, "One Hundred Twenty-Five Thousand Dollars"},
		{1_000_000, "One Million Dollars"},
		{1_000_001, "One Million One Dollars"},
		{2_350_000, "Two Million Three Hundred Fifty Thousand Dollars"},
		{1_000_000_000, "One Billion Dollars"},
		{12_345_678_901, "Twelve Billion Three Hundred Forty-Five Million Six Hundred Seventy-Eight Thousand Nine Hundred One Dollars"},
		{3_000_000_000_000, "Three Trillion Dollars"},
	}
	for _, tt := range tests {
		got, err := Dollars(tt.amount)
		if err != nil {
			t.Errorf("Dollars(%d): %v", tt.amount, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Dollars(%d) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestDollarsRejectsNonPositive(t *testing.T) {
	for _, n := range []int64{0, -1, math.MinInt64} {
		if _, err := Dollars(n); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("Dollars(%d) error = %v, want ErrInvalidAmount", n, err)
		}
	}
}

func TestIntegerMaxInt64(t *testing.T) {
	got := Integer(math.MaxInt64)
	want := "Nine Quintillion Two Hundred Twenty-Three Quadrillion Three Hundred Seventy-Two Trillion " +
		"Thirty-Six Billion Eight Hundred Fifty-Four Million Seven Hundred Seventy-Five Thousand Eight Hundred Seven"
	if got != want {
		t.Fatalf("Integer(MaxInt64) = %q", got)
	}
}

func TestDollarsDeterministic(t *testing.T) {
	a, _ := Dollars(987_654_321)
	b, _ := Dollars(987_654_321)
	if a != b {
		t.Fatalf("non-deterministic output: %q vs %q", a, b)
	}
}

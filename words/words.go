// Package words spells out whole-dollar amounts in English for the
// "principal in words" line of a bond certificate.
package words

import (
	"errors"
	"strings"
)

// ErrInvalidAmount is returned for amounts that cannot be a bond principal.
var ErrInvalidAmount = errors.New("invalid amount: principal must be a positive whole number of dollars")

var ones = [...]string{
	"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
	"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen", "Fifteen", "Sixteen",
	"Seventeen", "Eighteen", "Nineteen",
}

var tens = [...]string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
}

// Short-scale group names, indexed by power of one thousand.
var scales = [...]string{
	"", "Thousand", "Million", "Billion", "Trillion", "Quadrillion", "Quintillion",
}

// Dollars converts a principal amount to words followed by the currency:
// 1 -> "One Dollar", 125000 -> "One Hundred Twenty-Five Thousand Dollars".
func Dollars(amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrInvalidAmount
	}
	s := Integer(amount)
	if amount == 1 {
		return s + " Dollar", nil
	}
	return s + " Dollars", nil
}

// Integer spells out a non-negative integer in title case using the short
// scale. Negative input yields "".
func Integer(n int64) string {
	if n < 0 {
		return ""
	}
	if n == 0 {
		return "Zero"
	}

	var groups []string
	for scale := 0; n > 0; scale++ {
		chunk := int(n % 1000)
		n /= 1000
		if chunk == 0 {
			continue
		}
		g := hundreds(chunk)
		if scales[scale] != "" {
			g += " " + scales[scale]
		}
		groups = append(groups, g)
	}

	// Groups were collected least significant first.
	for i, j := 0, len(groups)-1; i < j; i, j = i+1, j-1 {
		groups[i], groups[j] = groups[j], groups[i]
	}
	return strings.Join(groups, " ")
}

// hundreds spells 1..999.
func hundreds(n int) string {
	var parts []string
	if h := n / 100; h > 0 {
		parts = append(parts, ones[h]+" Hundred")
	}
	if r := n % 100; r > 0 {
		switch {
		case r < 20:
			parts = append(parts, ones[r])
		case r%10 == 0:
			parts = append(parts, tens[r/10])
		default:
			parts = append(parts, tens[r/10]+"-"+ones[r%10])
		}
	}
	return strings.Join(parts, " ")
}

package words

import (
	"errors"
	"strings"
)

// MaxAmount is the largest whole-peso amount the formatter renders.
// Anything above it returns ErrAmountTooLarge instead of a truncated
// rendering.
const MaxAmount = 999_999

var (
	ErrAmountTooLarge = errors.New("amount_too_large")
	ErrNegativeAmount = errors.New("negative_amount")
)

var ones = []string{
	"", "One", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine",
}

var teens = []string{
	"Ten", "Eleven", "Twelve", "Thirteen", "Fourteen",
	"Fifteen", "Sixteen", "Seventeen", "Eighteen", "Nineteen",
}

var tens = []string{
	"", "", "Twenty", "Thirty", "Forty", "Fifty", "Sixty", "Seventy", "Eighty", "Ninety",
}

// ToWords renders a whole-peso amount as English words, e.g. 500 ->
// "Five Hundred". Cents are never rendered; callers pass the truncated
// integer part of the amount.
//
// This function is PURE:
// - No side effects
// - Fully deterministic
func ToWords(amount int64) (string, error) {
	if amount < 0 {
		return "", ErrNegativeAmount
	}
	if amount > MaxAmount {
		return "", ErrAmountTooLarge
	}
	if amount == 0 {
		return "Zero", nil
	}

	parts := make([]string, 0, 2)
	if thousands := amount / 1000; thousands > 0 {
		parts = append(parts, underThousand(thousands), "Thousand")
	}
	if remainder := amount % 1000; remainder > 0 {
		parts = append(parts, underThousand(remainder))
	}

	return strings.Join(parts, " "), nil
}

func underThousand(n int64) string {
	parts := make([]string, 0, 2)
	if hundreds := n / 100; hundreds > 0 {
		parts = append(parts, ones[hundreds]+" Hundred")
	}
	if remainder := n % 100; remainder > 0 {
		parts = append(parts, underHundred(remainder))
	}
	return strings.Join(parts, " ")
}

func underHundred(n int64) string {
	switch {
	case n < 10:
		return ones[n]
	case n < 20:
		return teens[n-10]
	default:
		word := tens[n/10]
		if unit := n % 10; unit > 0 {
			word += "-" + ones[unit]
		}
		return word
	}
}

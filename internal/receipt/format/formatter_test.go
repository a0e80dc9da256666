package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatReceiptNumber(t *testing.T) {
	issuedAt := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	cases := []struct {
		name     string
		template string
		seq      int64
		want     string
	}{
		{"default template", DefaultReceiptNumberTemplate, 7, "OR-2024-000007"},
		{"large sequence overflows padding", DefaultReceiptNumberTemplate, 1234567, "OR-2024-1234567"},
		{"unpadded sequence", "OR-{YYYY}-{SEQ}", 42, "OR-2024-42"},
		{"date tokens", "OR-{YY}{MM}{DD}-{SEQ4}", 3, "OR-240315-0003"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatReceiptNumber(tc.template, issuedAt, tc.seq)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatReceiptNumberDeterministic(t *testing.T) {
	issuedAt := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	first, err := FormatReceiptNumber(DefaultReceiptNumberTemplate, issuedAt, 99)
	assert.NoError(t, err)
	again, err := FormatReceiptNumber(DefaultReceiptNumberTemplate, issuedAt, 99)
	assert.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestFormatReceiptNumberRejectsBadInput(t *testing.T) {
	issuedAt := time.Now().UTC()

	_, err := FormatReceiptNumber("", issuedAt, 1)
	assert.Error(t, err)

	_, err = FormatReceiptNumber(DefaultReceiptNumberTemplate, issuedAt, 0)
	assert.Error(t, err)

	_, err = FormatReceiptNumber("OR-{YYYY}-{BOGUS}", issuedAt, 1)
	assert.Error(t, err)
}

func TestNormalizeReceiptNumber(t *testing.T) {
	assert.Equal(t, "OR-2024-000001", NormalizeReceiptNumber("  or-2024-000001 "))
	assert.Equal(t, "OR-2024-000001", NormalizeReceiptNumber("OR-2024-000001"))
}

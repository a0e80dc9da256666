package payload

import (
	"strings"
	"testing"
	"time"

	"github.com/resibo-ph/resibo/internal/verification/domain"
	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	issuedAt := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	claims := Claims{
		ReceiptNumber: "OR-2024-000042",
		Payer:         "Juan Dela Cruz",
		Amount:        "500.00",
		Organization:  "City Treasurer's Office",
		Purpose:       "Business permit renewal",
		IssuedAt:      issuedAt,
	}

	encoded, err := Encode(claims)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "ORV1."))

	decoded, err := Decode(encoded)
	assert.NoError(t, err)
	assert.Equal(t, claims.ReceiptNumber, decoded.ReceiptNumber)
	assert.Equal(t, claims.Payer, decoded.Payer)
	assert.Equal(t, claims.Amount, decoded.Amount)
	assert.True(t, claims.IssuedAt.Equal(decoded.IssuedAt))
}

func TestDecodeRejectsCorruptedPayload(t *testing.T) {
	encoded, err := Encode(Claims{ReceiptNumber: "OR-2024-000001"})
	assert.NoError(t, err)

	cases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"no separator", "ORV1"},
		{"wrong version", "ORV9." + strings.TrimPrefix(encoded, "ORV1.")},
		{"truncated body", encoded[:len(encoded)-6]},
		{"invalid base64", "ORV1.###"},
		{"valid base64 bad json", "ORV1.bm90LWpzb24"},
		{"empty body", "ORV1."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.input)
			assert.ErrorIs(t, err, domain.ErrMalformedPayload)
		})
	}
}

func TestEncodeRequiresReceiptNumber(t *testing.T) {
	_, err := Encode(Claims{Payer: "Maria Clara"})
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

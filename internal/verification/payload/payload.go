package payload

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/resibo-ph/resibo/internal/verification/domain"
)

// version prefixes every encoded payload so future schemes can coexist
// with receipts already in the wild.
const version = "ORV1"

// Claims is the structure embedded in a receipt's verification payload
// (the QR content). The receipt number is the only field verification
// depends on; the rest lets offline scanners show a summary without a
// lookup.
//
// The payload is NOT signed. Anyone who knows the scheme can forge a
// payload for an arbitrary number; verification therefore always
// resolves against the store and never trusts the embedded fields.
type Claims struct {
	ReceiptNumber string    `json:"receipt_number"`
	Payer         string    `json:"payer"`
	Amount        string    `json:"amount"`
	Organization  string    `json:"organization"`
	Purpose       string    `json:"purpose"`
	IssuedAt      time.Time `json:"issued_at"`
}

// Encode renders claims as an opaque, URL-safe payload string.
func Encode(claims Claims) (string, error) {
	if strings.TrimSpace(claims.ReceiptNumber) == "" {
		return "", domain.ErrMalformedPayload
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	return version + "." + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a payload back into claims. Every failure mode maps to
// ErrMalformedPayload so callers can refuse bad input before touching
// storage.
func Decode(encoded string) (Claims, error) {
	prefix, body, found := strings.Cut(strings.TrimSpace(encoded), ".")
	if !found || prefix != version || body == "" {
		return Claims{}, domain.ErrMalformedPayload
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return Claims{}, domain.ErrMalformedPayload
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Claims{}, domain.ErrMalformedPayload
	}
	if strings.TrimSpace(claims.ReceiptNumber) == "" {
		return Claims{}, domain.ErrMalformedPayload
	}
	return claims, nil
}

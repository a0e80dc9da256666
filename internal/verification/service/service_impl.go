package service

import (
	"context"
	"errors"
	"strings"

	obsmetrics "github.com/resibo-ph/resibo/internal/observability/metrics"
	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
	"github.com/resibo-ph/resibo/internal/receipt/format"
	"github.com/resibo-ph/resibo/internal/verification/domain"
	"github.com/resibo-ph/resibo/internal/verification/payload"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	ReceiptSvc receiptdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	log        *zap.Logger
	receiptSvc receiptdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &service{
		log:        p.Log.Named("verification.service"),
		receiptSvc: p.ReceiptSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *service) Verify(ctx context.Context, req domain.VerifyRequest) (domain.VerificationResult, error) {
	number := strings.TrimSpace(req.ReceiptNumber)
	encoded := strings.TrimSpace(req.Payload)
	if number == "" && encoded == "" {
		return domain.VerificationResult{}, domain.ErrEmptyInput
	}

	source := "number"
	if encoded != "" {
		source = "payload"
		claims, err := payload.Decode(encoded)
		if err != nil {
			s.recordOutcome(ctx, source, obsmetrics.VerificationOutcomeMalformed)
			return domain.VerificationResult{}, err
		}
		number = claims.ReceiptNumber
	}
	number = format.NormalizeReceiptNumber(number)

	receipt, err := s.receiptSvc.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, receiptdomain.ErrNotFound) {
			// An unknown number is a negative answer, not a failure.
			s.recordOutcome(ctx, source, obsmetrics.VerificationOutcomeUnverified)
			return domain.VerificationResult{Verified: false, ReceiptNumber: number}, nil
		}
		return domain.VerificationResult{}, err
	}

	s.recordOutcome(ctx, source, obsmetrics.VerificationOutcomeVerified)
	return domain.VerificationResult{
		Verified:      true,
		ReceiptNumber: receipt.ReceiptNumber,
		Receipt:       &receipt,
	}, nil
}

func (s *service) recordOutcome(ctx context.Context, source, outcome string) {
	obsmetrics.Lifecycle().IncVerification(outcome)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordVerification(ctx, source, outcome)
	}
}

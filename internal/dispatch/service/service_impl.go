package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/resibo-ph/resibo/internal/audit/domain"
	"github.com/resibo-ph/resibo/internal/clock"
	"github.com/resibo-ph/resibo/internal/config"
	"github.com/resibo-ph/resibo/internal/dispatch/domain"
	obsmetrics "github.com/resibo-ph/resibo/internal/observability/metrics"
	"github.com/resibo-ph/resibo/internal/providers/email"
	"github.com/resibo-ph/resibo/internal/providers/payment"
	"github.com/resibo-ph/resibo/internal/providers/sms"
	"github.com/resibo-ph/resibo/internal/ratelimit"
	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
	referencedomain "github.com/resibo-ph/resibo/internal/reference/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ReceiptSvc receiptdomain.Service
	RefRepo    referencedomain.Repository
	AuditSvc   auditdomain.Service
	Policy     *config.DispatchPolicyHolder
	Locker     *ratelimit.DispatchLocker `optional:"true"`
	Email      email.Provider
	SMS        sms.Provider
	Payment    payment.Provider
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	receiptSvc receiptdomain.Service
	refRepo    referencedomain.Repository
	auditSvc   auditdomain.Service
	policy     *config.DispatchPolicyHolder
	locker     *ratelimit.DispatchLocker
	email      email.Provider
	sms        sms.Provider
	payment    payment.Provider
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("dispatch.service"),
		cfg:        p.Cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		receiptSvc: p.ReceiptSvc,
		refRepo:    p.RefRepo,
		auditSvc:   p.AuditSvc,
		policy:     p.Policy,
		locker:     p.Locker,
		email:      p.Email,
		sms:        p.SMS,
		payment:    p.Payment,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Dispatch(ctx context.Context, req domain.DispatchRequest) (domain.DispatchAttempt, error) {
	channel, ok := receiptdomain.ParseChannel(strings.ToLower(strings.TrimSpace(req.Channel)))
	if !ok {
		return domain.DispatchAttempt{}, receiptdomain.ErrInvalidChannel
	}

	receipt, err := s.receiptSvc.GetByID(ctx, receiptdomain.GetReceiptRequest{ID: req.ReceiptID})
	if err != nil {
		return domain.DispatchAttempt{}, err
	}

	attempt, err := s.dispatchChannel(ctx, receipt, channel)
	if err != nil {
		return domain.DispatchAttempt{}, err
	}
	return *attempt, nil
}

func (s *Service) DispatchAll(ctx context.Context, receiptID string) ([]domain.ChannelOutcome, error) {
	receipt, err := s.receiptSvc.GetByID(ctx, receiptdomain.GetReceiptRequest{ID: receiptID})
	if err != nil {
		return nil, err
	}

	channels := []receiptdomain.Channel{
		receiptdomain.ChannelPayment,
		receiptdomain.ChannelEmail,
		receiptdomain.ChannelSMS,
	}

	// Channels run concurrently; no completion order is promised. Each
	// channel's refusal or failure stays in its own outcome slot.
	outcomes := make([]domain.ChannelOutcome, len(channels))
	var wg sync.WaitGroup
	for i, channel := range channels {
		wg.Add(1)
		go func(i int, channel receiptdomain.Channel) {
			defer wg.Done()
			outcome := domain.ChannelOutcome{Channel: channel}
			attempt, err := s.dispatchChannel(ctx, receipt, channel)
			if err != nil {
				outcome.Error = err.Error()
			}
			outcome.Attempt = attempt
			outcomes[i] = outcome
		}(i, channel)
	}
	wg.Wait()

	return outcomes, nil
}

func (s *Service) ListAttempts(ctx context.Context, receiptID string) ([]domain.DispatchAttempt, error) {
	receipt, err := s.receiptSvc.GetByID(ctx, receiptdomain.GetReceiptRequest{ID: receiptID})
	if err != nil {
		return nil, err
	}
	return s.repo.ListByReceipt(ctx, s.db, receipt.ID)
}

// dispatchChannel performs one call out to a channel collaborator and
// seals the channel with the outcome. A sealed channel is rejected
// before any provider call, so a re-dispatch never re-sends.
func (s *Service) dispatchChannel(ctx context.Context, receipt receiptdomain.Receipt, channel receiptdomain.Channel) (*domain.DispatchAttempt, error) {
	policy := s.policy.Get()
	if !policy.ChannelEnabled(string(channel)) {
		s.recordSkip(ctx, channel)
		return nil, domain.ErrChannelDisabled
	}

	if !receiptdomain.IsPending(receipt.StatusFor(channel)) {
		return nil, receiptdomain.ErrIllegalStatusTransition
	}

	if err := contactFor(receipt, channel); err != nil {
		s.recordSkip(ctx, channel)
		return nil, err
	}

	// The lock is advisory. When redis is unreachable the call proceeds
	// unlocked and the conditional status write stays the hard guarantee.
	token, acquired, err := s.locker.TryLock(ctx, receipt.ID.String(), string(channel))
	if err != nil {
		s.log.Warn("dispatch lock unavailable",
			zap.String("receipt_number", receipt.ReceiptNumber),
			zap.String("channel", string(channel)),
			zap.Error(err))
	} else if !acquired {
		return nil, domain.ErrDispatchInFlight
	}
	if token != "" {
		defer func() {
			if err := s.locker.Release(ctx, receipt.ID.String(), string(channel), token); err != nil {
				s.log.Warn("dispatch lock release failed",
					zap.String("receipt_number", receipt.ReceiptNumber),
					zap.String("channel", string(channel)),
					zap.Error(err))
			}
		}()
	}

	org, err := s.refRepo.GetOrganization(ctx, receipt.OrgID)
	if err != nil {
		return nil, err
	}

	start := s.clock.Now()
	callCtx, cancel := context.WithTimeout(ctx, policy.Timeout())
	result := s.callProvider(callCtx, receipt, org, channel, policy)
	cancel()

	attempt := &domain.DispatchAttempt{
		ID:          s.genID.Generate(),
		OrgID:       receipt.OrgID,
		ReceiptID:   receipt.ID,
		Channel:     channel,
		Succeeded:   result.Success,
		Reference:   result.Reference,
		Error:       result.Error,
		AttemptedAt: start,
	}
	if err := s.repo.Insert(ctx, s.db, attempt); err != nil {
		// The send already happened; a lost history row must not block
		// the status seal.
		s.log.Error("failed to record dispatch attempt",
			zap.String("receipt_number", receipt.ReceiptNumber),
			zap.String("channel", string(channel)),
			zap.Error(err))
	}

	outcome := obsmetrics.DispatchOutcomeSent
	status := receiptdomain.TerminalSuccessStatus(channel)
	if !result.Success {
		outcome = obsmetrics.DispatchOutcomeFailed
		status = receiptdomain.TerminalFailureStatus(channel)
	}
	obsmetrics.Lifecycle().IncDispatchAttempt(string(channel), outcome)
	obsmetrics.Lifecycle().ObserveDispatchDuration(string(channel), s.clock.Now().Sub(start))
	if s.obsMetrics != nil {
		s.obsMetrics.RecordDispatchEvent(ctx, string(channel), outcome)
	}

	_, err = s.receiptSvc.UpdateStatus(ctx, receiptdomain.UpdateStatusRequest{
		ID:      receipt.ID.String(),
		Channel: channel,
		Status:  status,
	})
	switch {
	case err == nil:
	case errors.Is(err, receiptdomain.ErrIllegalStatusTransition):
		// A concurrent dispatch sealed the channel between our pending
		// check and this write. The attempt stands; the stored status
		// keeps its first writer.
		s.log.Warn("dispatch outcome lost status race",
			zap.String("receipt_number", receipt.ReceiptNumber),
			zap.String("channel", string(channel)))
	default:
		return nil, err
	}

	s.emitAudit(ctx, receipt, attempt)
	return attempt, nil
}

// callProvider reduces every collaborator reply, including timeouts, to
// the result shape. Provider errors never escape as errors.
func (s *Service) callProvider(ctx context.Context, receipt receiptdomain.Receipt, org *referencedomain.Organization, channel receiptdomain.Channel, policy config.DispatchPolicy) domain.Result {
	orgName := ""
	if org != nil {
		orgName = org.Name
	}

	switch channel {
	case receiptdomain.ChannelPayment:
		reference, err := s.payment.Confirm(ctx, payment.Request{
			ReceiptNumber: receipt.ReceiptNumber,
			Payer:         receipt.Payer,
			Amount:        receipt.Amount.StringFixed(2),
			Currency:      "PHP",
			Purpose:       receipt.Purpose,
		})
		if err != nil {
			return domain.Result{Error: err.Error()}
		}
		return domain.Result{Success: true, Reference: reference}

	case receiptdomain.ChannelEmail:
		data := email.ReceiptEmail{
			OrganizationName: orgName,
			ReceiptNumber:    receipt.ReceiptNumber,
			PayerName:        receipt.Payer,
			Amount:           "PHP " + receipt.Amount.StringFixed(2),
			AmountInWords:    receipt.AmountInWords + " Pesos Only",
			Purpose:          receipt.Purpose,
			IssuedAt:         receipt.IssuedAt.Format("January 2, 2006"),
			VerifyURL:        s.verifyURL(receipt.ReceiptNumber),
		}
		if err := s.email.SendReceipt(ctx, receipt.PayerEmail, data); err != nil {
			return domain.Result{Error: err.Error()}
		}
		return domain.Result{Success: true}

	case receiptdomain.ChannelSMS:
		message, err := renderSMS(policy.MessageTemplate(), receipt, orgName)
		if err != nil {
			return domain.Result{Error: fmt.Sprintf("render sms: %v", err)}
		}
		if err := s.sms.Send(ctx, receipt.PayerPhone, message); err != nil {
			return domain.Result{Error: err.Error()}
		}
		return domain.Result{Success: true}
	}

	return domain.Result{Error: fmt.Sprintf("unknown channel %q", channel)}
}

// contactFor checks the receipt carries the contact detail a channel
// needs. Payment needs none.
func contactFor(receipt receiptdomain.Receipt, channel receiptdomain.Channel) error {
	switch channel {
	case receiptdomain.ChannelEmail:
		if strings.TrimSpace(receipt.PayerEmail) == "" {
			return domain.ErrMissingContact
		}
	case receiptdomain.ChannelSMS:
		if strings.TrimSpace(receipt.PayerPhone) == "" {
			return domain.ErrMissingContact
		}
	}
	return nil
}

func renderSMS(tmplText string, receipt receiptdomain.Receipt, orgName string) (string, error) {
	tmpl, err := template.New("sms").Parse(tmplText)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]string{
		"OrganizationName": orgName,
		"ReceiptNumber":    receipt.ReceiptNumber,
		"Amount":           receipt.Amount.StringFixed(2),
		"PayerName":        receipt.Payer,
		"Purpose":          receipt.Purpose,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Service) verifyURL(receiptNumber string) string {
	if s.cfg.PublicBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/public/verify/%s", s.cfg.PublicBaseURL, receiptNumber)
}

func (s *Service) recordSkip(ctx context.Context, channel receiptdomain.Channel) {
	obsmetrics.Lifecycle().IncDispatchAttempt(string(channel), obsmetrics.DispatchOutcomeSkipped)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordDispatchEvent(ctx, string(channel), obsmetrics.DispatchOutcomeSkipped)
	}
}

func (s *Service) emitAudit(ctx context.Context, receipt receiptdomain.Receipt, attempt *domain.DispatchAttempt) {
	if s.auditSvc == nil || attempt == nil {
		return
	}

	metadata := map[string]any{
		"receipt_number": receipt.ReceiptNumber,
		"channel":        string(attempt.Channel),
		"succeeded":      attempt.Succeeded,
	}
	if attempt.Reference != "" {
		metadata["reference"] = attempt.Reference
	}
	if attempt.Error != "" {
		metadata["error"] = attempt.Error
	}

	targetID := receipt.ID.String()
	orgID := receipt.OrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, "receipt.dispatched", "receipt", &targetID, metadata)
}

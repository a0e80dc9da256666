package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/resibo-ph/resibo/internal/audit/domain"
	"github.com/resibo-ph/resibo/internal/audit/masking"
	"github.com/resibo-ph/resibo/internal/clock"
	obsmetrics "github.com/resibo-ph/resibo/internal/observability/metrics"
	"github.com/resibo-ph/resibo/internal/orgcontext"
	"github.com/resibo-ph/resibo/internal/receipt/domain"
	"github.com/resibo-ph/resibo/internal/receipt/format"
	"github.com/resibo-ph/resibo/internal/receipt/words"
	referencedomain "github.com/resibo-ph/resibo/internal/reference/domain"
	verifpayload "github.com/resibo-ph/resibo/internal/verification/payload"
	"github.com/resibo-ph/resibo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	RefRepo    referencedomain.Repository
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	refRepo    referencedomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("receipt.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		refRepo:    p.RefRepo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Issue validates the request, mints the next receipt number inside a
// transaction, and persists the receipt with its verification payload.
// The number and every descriptive field are frozen from here on.
func (s *Service) Issue(ctx context.Context, req domain.IssueReceiptRequest) (domain.Receipt, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.Receipt{}, domain.ErrInvalidOrganization
	}

	payer := strings.TrimSpace(req.Payer)
	if payer == "" {
		return domain.Receipt{}, domain.ErrInvalidPayer
	}

	payerEmail := strings.TrimSpace(req.PayerEmail)
	if payerEmail != "" && !strings.Contains(payerEmail, "@") {
		return domain.Receipt{}, domain.ErrInvalidPayerEmail
	}
	payerPhone := strings.TrimSpace(req.PayerPhone)

	purpose := strings.TrimSpace(req.Purpose)
	if purpose == "" {
		return domain.Receipt{}, domain.ErrInvalidPurpose
	}

	issuedBy := strings.TrimSpace(req.IssuedBy)
	if issuedBy == "" {
		return domain.Receipt{}, domain.ErrInvalidIssuedBy
	}

	amount := req.Amount.Round(2)
	if amount.Sign() <= 0 {
		return domain.Receipt{}, domain.ErrInvalidAmount
	}

	// Amounts beyond the formatter's range are refused outright rather
	// than issued with a blank words line.
	amountWords, err := words.ToWords(amount.IntPart())
	if err != nil {
		return domain.Receipt{}, err
	}

	categoryID, err := snowflake.ParseString(strings.TrimSpace(req.CategoryID))
	if err != nil {
		return domain.Receipt{}, domain.ErrInvalidCategory
	}
	category, err := s.refRepo.FindCategory(ctx, orgID, categoryID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if category == nil || !category.IsActive {
		return domain.Receipt{}, domain.ErrInvalidCategory
	}

	template, err := s.resolveTemplate(ctx, orgID, req.TemplateID)
	if err != nil {
		return domain.Receipt{}, err
	}

	org, err := s.refRepo.GetOrganization(ctx, orgID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if org == nil {
		return domain.Receipt{}, domain.ErrInvalidOrganization
	}

	issuedAt := s.clock.Now()
	var created domain.Receipt
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seqStart := s.clock.Now()
		seq, err := s.repo.NextSequence(ctx, tx, orgID, issuedAt.Year())
		if err != nil {
			return err
		}
		obsmetrics.Lifecycle().ObserveSequenceWait(s.clock.Now().Sub(seqStart))

		number, err := format.FormatReceiptNumber(template.NumberFormat, issuedAt, seq)
		if err != nil {
			return err
		}
		if number != format.NormalizeReceiptNumber(number) {
			// A minted number must survive lookup normalization, or its
			// own payload could never verify.
			return domain.ErrInvalidTemplate
		}

		encoded, err := verifpayload.Encode(verifpayload.Claims{
			ReceiptNumber: number,
			Payer:         payer,
			Amount:        amount.StringFixed(2),
			Organization:  org.Name,
			Purpose:       purpose,
			IssuedAt:      issuedAt,
		})
		if err != nil {
			return err
		}

		receipt := domain.Receipt{
			ID:            s.genID.Generate(),
			OrgID:         orgID,
			ReceiptNumber: number,
			Payer:         payer,
			PayerEmail:    payerEmail,
			PayerPhone:    payerPhone,
			Purpose:       purpose,
			CategoryID:    category.ID,
			TemplateID:    template.ID,
			IssuedBy:      issuedBy,
			Amount:        amount,
			AmountInWords: amountWords,
			IssuedAt:      issuedAt,
			Payload:       encoded,
			PaymentStatus: domain.PaymentStatusPending,
			EmailStatus:   domain.DeliveryStatusPending,
			SMSStatus:     domain.DeliveryStatusPending,
			CreatedAt:     issuedAt,
			UpdatedAt:     issuedAt,
		}

		inserted, err := s.repo.Insert(ctx, tx, &receipt)
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrDuplicateReceiptNumber
		}

		created = receipt
		return nil
	})
	if err != nil {
		obsmetrics.Lifecycle().IncIssueError(err)
		return domain.Receipt{}, err
	}

	obsmetrics.Lifecycle().IncReceiptIssued()
	obsmetrics.Lifecycle().ObserveIssueDuration(s.clock.Now().Sub(issuedAt))
	if s.obsMetrics != nil {
		s.obsMetrics.RecordReceiptIssued(ctx, orgID.String())
	}

	s.emitAudit(ctx, "receipt.issued", &created, nil)
	return created, nil
}

func (s *Service) GetByID(ctx context.Context, req domain.GetReceiptRequest) (domain.Receipt, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.Receipt{}, domain.ErrInvalidID
	}

	receipt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return *receipt, nil
}

func (s *Service) GetByNumber(ctx context.Context, receiptNumber string) (domain.Receipt, error) {
	number := format.NormalizeReceiptNumber(receiptNumber)
	if number == "" {
		return domain.Receipt{}, domain.ErrNotFound
	}

	receipt, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return *receipt, nil
}

func (s *Service) List(ctx context.Context, req domain.ListReceiptRequest) (domain.ListReceiptResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok || orgID == 0 {
		return domain.ListReceiptResponse{}, domain.ErrInvalidOrganization
	}

	filter := domain.ListFilter{
		Payer:         strings.TrimSpace(req.Payer),
		PaymentStatus: strings.ToUpper(strings.TrimSpace(req.PaymentStatus)),
		IssuedFrom:    req.IssuedFrom,
		IssuedTo:      req.IssuedTo,
	}
	if raw := strings.TrimSpace(req.CategoryID); raw != "" {
		categoryID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListReceiptResponse{}, domain.ErrInvalidCategory
		}
		filter.CategoryID = categoryID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	filter.Limit = int(pageSize)

	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListReceiptResponse{}, domain.ErrInvalidPageToken
		}
		cursorID, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return domain.ListReceiptResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListReceiptResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &domain.ReceiptCursor{ID: cursorID, CreatedAt: createdAt}
	}

	items, err := s.repo.List(ctx, s.db, orgID, filter)
	if err != nil {
		return domain.ListReceiptResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int(pageSize), func(receipt *domain.Receipt) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        receipt.ID.String(),
			CreatedAt: receipt.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	receipts := make([]domain.Receipt, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		receipts = append(receipts, *item)
	}

	resp := domain.ListReceiptResponse{Receipts: receipts}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

// UpdateStatus moves one channel to a terminal state. The write is
// conditional on the channel still being pending, so a second terminal
// write loses and surfaces as ErrIllegalStatusTransition.
func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (domain.Receipt, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.Receipt{}, domain.ErrInvalidID
	}

	channel, ok := domain.ParseChannel(strings.ToLower(strings.TrimSpace(string(req.Channel))))
	if !ok {
		return domain.Receipt{}, domain.ErrInvalidChannel
	}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if !domain.CanTransition(channel, string(domain.PaymentStatusPending), status) {
		return domain.Receipt{}, domain.ErrInvalidStatus
	}

	rows, err := s.repo.UpdateChannelStatus(ctx, s.db, id, channel, status)
	if err != nil {
		return domain.Receipt{}, err
	}

	receipt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}
	if rows == 0 {
		return domain.Receipt{}, domain.ErrIllegalStatusTransition
	}

	s.recordTransition(ctx, channel, status)
	s.emitAudit(ctx, "receipt.status.updated", receipt, map[string]any{
		"channel":         string(channel),
		"previous_status": string(domain.PaymentStatusPending),
		"status":          status,
	})
	return *receipt, nil
}

// statusPatchFields maps the only writable patch keys to their channel.
// Every other receipt field is immutable after issue.
var statusPatchFields = []struct {
	field   string
	channel domain.Channel
}{
	{"payment_status", domain.ChannelPayment},
	{"email_status", domain.ChannelEmail},
	{"sms_status", domain.ChannelSMS},
}

// ApplyStatusPatch is the field-patch update surface. A patch touching
// anything besides the three channel status fields is rejected whole
// with ErrImmutableField; legal patches apply atomically.
func (s *Service) ApplyStatusPatch(ctx context.Context, req domain.StatusPatchRequest) (domain.Receipt, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(req.ID))
	if err != nil {
		return domain.Receipt{}, domain.ErrInvalidID
	}
	if len(req.Patch) == 0 {
		return domain.Receipt{}, domain.ErrInvalidStatus
	}

	writable := make(map[string]domain.Channel, len(statusPatchFields))
	for _, entry := range statusPatchFields {
		writable[entry.field] = entry.channel
	}
	for field := range req.Patch {
		if _, ok := writable[field]; !ok {
			return domain.Receipt{}, domain.ErrImmutableField
		}
	}

	type change struct {
		channel domain.Channel
		status  string
	}
	changes := make([]change, 0, len(req.Patch))
	for _, entry := range statusPatchFields {
		raw, ok := req.Patch[entry.field]
		if !ok {
			continue
		}
		status := strings.ToUpper(strings.TrimSpace(raw))
		if !domain.CanTransition(entry.channel, string(domain.PaymentStatusPending), status) {
			return domain.Receipt{}, domain.ErrInvalidStatus
		}
		changes = append(changes, change{channel: entry.channel, status: status})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}

		for _, item := range changes {
			rows, err := s.repo.UpdateChannelStatus(ctx, tx, id, item.channel, item.status)
			if err != nil {
				return err
			}
			if rows == 0 {
				return domain.ErrIllegalStatusTransition
			}
		}
		return nil
	})
	if err != nil {
		return domain.Receipt{}, err
	}

	receipt, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}

	for _, item := range changes {
		s.recordTransition(ctx, item.channel, item.status)
		s.emitAudit(ctx, "receipt.status.updated", receipt, map[string]any{
			"channel":         string(item.channel),
			"previous_status": string(domain.PaymentStatusPending),
			"status":          item.status,
		})
	}
	return *receipt, nil
}

func (s *Service) recordTransition(ctx context.Context, channel domain.Channel, status string) {
	obsmetrics.Lifecycle().IncStatusTransition(string(channel), status)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordStatusTransition(ctx, string(channel), status)
	}
}

func (s *Service) resolveTemplate(ctx context.Context, orgID snowflake.ID, raw string) (*referencedomain.Template, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		template, err := s.refRepo.DefaultTemplate(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if template == nil {
			return nil, domain.ErrInvalidTemplate
		}
		return template, nil
	}

	id, err := snowflake.ParseString(raw)
	if err != nil {
		return nil, domain.ErrInvalidTemplate
	}
	template, err := s.refRepo.FindTemplate(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if template == nil {
		return nil, domain.ErrInvalidTemplate
	}
	return template, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, receipt *domain.Receipt, extra map[string]any) {
	if s.auditSvc == nil || receipt == nil {
		return
	}

	metadata := map[string]any{
		"receipt_number": receipt.ReceiptNumber,
		"payer":          receipt.Payer,
		"category_id":    receipt.CategoryID.String(),
		"amount":         receipt.Amount.StringFixed(2),
		"issued_by":      receipt.IssuedBy,
	}
	if receipt.PayerEmail != "" {
		metadata["payer_email"] = masking.MaskEmail(receipt.PayerEmail)
	}
	if receipt.PayerPhone != "" {
		metadata["payer_phone"] = masking.MaskPhone(receipt.PayerPhone)
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := receipt.ID.String()
	orgID := receipt.OrgID
	_ = s.auditSvc.AuditLog(ctx, &orgID, "", nil, action, "receipt", &targetID, metadata)
}

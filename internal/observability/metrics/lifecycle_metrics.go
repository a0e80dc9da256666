package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/resibo-ph/resibo/internal/authorization"
	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
	"gorm.io/gorm"
)

const (
	IssueReasonDeadlineExceeded     = "deadline_exceeded"
	IssueReasonForbidden            = "forbidden"
	IssueReasonDuplicateNumber      = "duplicate_number"
	IssueReasonValidation           = "validation"
	IssueReasonDBLockTimeout        = "db_lock_timeout"
	IssueReasonSerializationFailure = "serialization_failure"
	IssueReasonUnknown              = "unknown"
)

const (
	DispatchOutcomeSent    = "sent"
	DispatchOutcomeFailed  = "failed"
	DispatchOutcomeSkipped = "skipped"
)

const (
	VerificationOutcomeVerified   = "verified"
	VerificationOutcomeUnverified = "unverified"
	VerificationOutcomeMalformed  = "malformed"
)

// LifecycleMetrics captures receipt issue, verification and dispatch
// health signals.
type LifecycleMetrics struct {
	receiptsIssued    prometheus.Counter
	issueErrors       *prometheus.CounterVec
	issueDuration     prometheus.Observer
	sequenceWait      prometheus.Observer
	verifications     *prometheus.CounterVec
	dispatchAttempts  *prometheus.CounterVec
	dispatchDuration  *prometheus.HistogramVec
	statusTransitions *prometheus.CounterVec

	verificationCounts map[string]prometheus.Counter
	dispatchCounts     map[string]map[string]prometheus.Counter
}

var (
	lifecycleMetricsOnce sync.Once
	lifecycleMetrics     *LifecycleMetrics
)

// Lifecycle returns the singleton lifecycle metrics registry.
func Lifecycle() *LifecycleMetrics {
	return LifecycleWithConfig(Config{})
}

// LifecycleWithConfig returns the singleton lifecycle metrics registry using config labels.
func LifecycleWithConfig(cfg Config) *LifecycleMetrics {
	lifecycleMetricsOnce.Do(func() {
		lifecycleMetrics = newLifecycleMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return lifecycleMetrics
}

// ResetLifecycleMetricsForTest resets the lifecycle metrics singleton for tests.
func ResetLifecycleMetricsForTest() {
	lifecycleMetricsOnce = sync.Once{}
	lifecycleMetrics = nil
}

func newLifecycleMetrics(registerer prometheus.Registerer, cfg Config) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "resibo"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	receiptsIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "resibo_receipts_issued_total",
		Help:        "Receipts issued successfully.",
		ConstLabels: constLabels,
	})
	issueErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resibo_receipt_issue_errors_total",
		Help:        "Receipt issue failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	issueDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "resibo_receipt_issue_duration_seconds",
		Help:        "Receipt issue latency including number minting and payload encoding.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	})
	sequenceWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "resibo_receipt_sequence_wait_seconds",
		Help:        "Time spent serialized on the receipt number sequence row.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resibo_verifications_total",
		Help:        "Verification requests by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	dispatchAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resibo_dispatch_attempts_total",
		Help:        "Dispatch attempts by channel and outcome.",
		ConstLabels: constLabels,
	}, []string{"channel", "outcome"})
	dispatchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "resibo_dispatch_duration_seconds",
		Help:        "Dispatch provider latency by channel.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"channel"})
	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "resibo_status_transitions_total",
		Help:        "Terminal status writes by channel and resulting status.",
		ConstLabels: constLabels,
	}, []string{"channel", "status"})

	registerer.MustRegister(
		receiptsIssued,
		issueErrors,
		issueDuration,
		sequenceWait,
		verifications,
		dispatchAttempts,
		dispatchDuration,
		statusTransitions,
	)

	verificationCounts := map[string]prometheus.Counter{
		VerificationOutcomeVerified:   verifications.WithLabelValues(VerificationOutcomeVerified),
		VerificationOutcomeUnverified: verifications.WithLabelValues(VerificationOutcomeUnverified),
		VerificationOutcomeMalformed:  verifications.WithLabelValues(VerificationOutcomeMalformed),
	}

	dispatchCounts := map[string]map[string]prometheus.Counter{}
	for _, channel := range []receiptdomain.Channel{
		receiptdomain.ChannelPayment,
		receiptdomain.ChannelEmail,
		receiptdomain.ChannelSMS,
	} {
		outcomes := map[string]prometheus.Counter{}
		for _, outcome := range []string{DispatchOutcomeSent, DispatchOutcomeFailed, DispatchOutcomeSkipped} {
			outcomes[outcome] = dispatchAttempts.WithLabelValues(string(channel), outcome)
		}
		dispatchCounts[string(channel)] = outcomes
	}

	return &LifecycleMetrics{
		receiptsIssued:     receiptsIssued,
		issueErrors:        issueErrors,
		issueDuration:      issueDuration,
		sequenceWait:       sequenceWait,
		verifications:      verifications,
		dispatchAttempts:   dispatchAttempts,
		dispatchDuration:   dispatchDuration,
		statusTransitions:  statusTransitions,
		verificationCounts: verificationCounts,
		dispatchCounts:     dispatchCounts,
	}
}

// IncReceiptIssued increments the issued receipt counter.
func (m *LifecycleMetrics) IncReceiptIssued() {
	if m == nil || m.receiptsIssued == nil {
		return
	}
	m.receiptsIssued.Inc()
}

// IncIssueError increments the issue error counter with classification.
func (m *LifecycleMetrics) IncIssueError(err error) {
	if m == nil || err == nil || m.issueErrors == nil {
		return
	}
	m.issueErrors.WithLabelValues(ClassifyIssueReason(err)).Inc()
}

// ObserveIssueDuration records receipt issue latency in seconds.
func (m *LifecycleMetrics) ObserveIssueDuration(duration time.Duration) {
	if m == nil || m.issueDuration == nil {
		return
	}
	m.issueDuration.Observe(duration.Seconds())
}

// ObserveSequenceWait records time spent waiting on the sequence row.
func (m *LifecycleMetrics) ObserveSequenceWait(duration time.Duration) {
	if m == nil || m.sequenceWait == nil {
		return
	}
	wait := duration
	if wait < 0 {
		wait = 0
	}
	m.sequenceWait.Observe(wait.Seconds())
}

// IncVerification increments verification counters by outcome.
func (m *LifecycleMetrics) IncVerification(outcome string) {
	if m == nil {
		return
	}
	if counter, ok := m.verificationCounts[outcome]; ok {
		counter.Inc()
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

// IncDispatchAttempt increments dispatch counters by channel and outcome.
func (m *LifecycleMetrics) IncDispatchAttempt(channel, outcome string) {
	if m == nil {
		return
	}
	if outcomes, ok := m.dispatchCounts[channel]; ok {
		if counter, ok := outcomes[outcome]; ok {
			counter.Inc()
			return
		}
	}
	m.dispatchAttempts.WithLabelValues(channel, outcome).Inc()
}

// ObserveDispatchDuration records dispatch provider latency by channel.
func (m *LifecycleMetrics) ObserveDispatchDuration(channel string, duration time.Duration) {
	if m == nil || m.dispatchDuration == nil {
		return
	}
	m.dispatchDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// IncStatusTransition increments terminal status write counters.
func (m *LifecycleMetrics) IncStatusTransition(channel, status string) {
	if m == nil || m.statusTransitions == nil {
		return
	}
	m.statusTransitions.WithLabelValues(channel, status).Inc()
}

// ClassifyIssueReason maps issue errors to low-cardinality reasons.
func ClassifyIssueReason(err error) string {
	if err == nil {
		return IssueReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return IssueReasonDeadlineExceeded
	}
	if isAuthorizationError(err) {
		return IssueReasonForbidden
	}
	if errors.Is(err, receiptdomain.ErrDuplicateReceiptNumber) || isUniqueViolation(err) {
		return IssueReasonDuplicateNumber
	}
	if isValidationError(err) {
		return IssueReasonValidation
	}
	if isDBLockTimeout(err) {
		return IssueReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return IssueReasonSerializationFailure
	}
	return IssueReasonUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrInvalidActor) ||
		errors.Is(err, authorization.ErrInvalidOrganization) ||
		errors.Is(err, authorization.ErrInvalidObject) ||
		errors.Is(err, authorization.ErrInvalidAction)
}

func isValidationError(err error) bool {
	return errors.Is(err, receiptdomain.ErrInvalidPayer) ||
		errors.Is(err, receiptdomain.ErrInvalidPayerEmail) ||
		errors.Is(err, receiptdomain.ErrInvalidPurpose) ||
		errors.Is(err, receiptdomain.ErrInvalidAmount) ||
		errors.Is(err, receiptdomain.ErrInvalidCategory) ||
		errors.Is(err, receiptdomain.ErrInvalidTemplate) ||
		errors.Is(err, receiptdomain.ErrInvalidIssuedBy) ||
		errors.Is(err, receiptdomain.ErrInvalidOrganization)
}

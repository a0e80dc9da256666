package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/resibo-ph/resibo/internal/authorization"
	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
	"gorm.io/gorm"
)

func TestClassifyIssueReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: IssueReasonDeadlineExceeded,
		},
		{
			name: "forbidden",
			err:  authorization.ErrForbidden,
			want: IssueReasonForbidden,
		},
		{
			name: "duplicate_number",
			err:  receiptdomain.ErrDuplicateReceiptNumber,
			want: IssueReasonDuplicateNumber,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: IssueReasonDuplicateNumber,
		},
		{
			name: "validation",
			err:  receiptdomain.ErrInvalidAmount,
			want: IssueReasonValidation,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: IssueReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: IssueReasonSerializationFailure,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: IssueReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyIssueReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIncDispatchAttempt(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newLifecycleMetrics(registry, Config{
		ServiceName: "resibo",
		Environment: "test",
	})

	metrics.IncDispatchAttempt("email", DispatchOutcomeSent)
	metrics.IncDispatchAttempt("email", DispatchOutcomeSent)
	metrics.IncDispatchAttempt("sms", DispatchOutcomeFailed)

	got := testutil.ToFloat64(metrics.dispatchAttempts.WithLabelValues("email", DispatchOutcomeSent))
	if got != 2 {
		t.Fatalf("expected 2 email sends, got %v", got)
	}
	got = testutil.ToFloat64(metrics.dispatchAttempts.WithLabelValues("sms", DispatchOutcomeFailed))
	if got != 1 {
		t.Fatalf("expected 1 sms failure, got %v", got)
	}
}

func TestObserveDispatchDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newLifecycleMetrics(registry, Config{
		ServiceName: "resibo",
		Environment: "test",
	})

	metrics.ObserveDispatchDuration("email", 150*time.Millisecond)

	count := testutil.CollectAndCount(metrics.dispatchDuration)
	if count == 0 {
		t.Fatalf("expected dispatch duration to be recorded")
	}
}

func TestVerificationAndStatusCountersCarryServiceLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newLifecycleMetrics(registry, Config{
		ServiceName: "resibo",
		Environment: "test",
	})

	metrics.IncVerification(VerificationOutcomeVerified)
	metrics.IncVerification(VerificationOutcomeVerified)
	metrics.IncVerification(VerificationOutcomeMalformed)
	metrics.IncStatusTransition("payment", string(receiptdomain.PaymentStatusCompleted))

	verifiedLabels := map[string]string{
		"service": "resibo",
		"env":     "test",
		"outcome": VerificationOutcomeVerified,
	}
	if got := getCounterValue(t, registry, "resibo_verifications_total", verifiedLabels); got != 2 {
		t.Fatalf("expected 2 verified lookups, got %v", got)
	}

	malformedLabels := map[string]string{
		"service": "resibo",
		"env":     "test",
		"outcome": VerificationOutcomeMalformed,
	}
	if got := getCounterValue(t, registry, "resibo_verifications_total", malformedLabels); got != 1 {
		t.Fatalf("expected 1 malformed lookup, got %v", got)
	}

	statusLabels := map[string]string{
		"service": "resibo",
		"env":     "test",
		"channel": "payment",
		"status":  string(receiptdomain.PaymentStatusCompleted),
	}
	if got := getCounterValue(t, registry, "resibo_status_transitions_total", statusLabels); got != 1 {
		t.Fatalf("expected 1 payment completion, got %v", got)
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

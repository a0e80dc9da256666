package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/resibo-ph/resibo/internal/observability/logger"
	"github.com/resibo-ph/resibo/internal/ratelimit"
	verificationdomain "github.com/resibo-ph/resibo/internal/verification/domain"
	"go.uber.org/zap"
)

type verifyRequest struct {
	ReceiptNumber string `json:"receipt_number"`
	Payload       string `json:"payload"`
}

// VerifyReceipt is the staff-facing check: the full live record comes
// back on a hit.
func (s *Server) VerifyReceipt(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.verificationSvc.Verify(c.Request.Context(), verificationdomain.VerifyRequest{
		ReceiptNumber: req.ReceiptNumber,
		Payload:       req.Payload,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_number", result.ReceiptNumber)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// publicReceiptView is the payer-facing verification answer. It carries
// only what the printed receipt already shows; contact details stay off
// the public surface.
type publicReceiptView struct {
	ReceiptNumber string    `json:"receipt_number"`
	Organization  string    `json:"organization,omitempty"`
	Payer         string    `json:"payer"`
	Amount        string    `json:"amount"`
	AmountInWords string    `json:"amount_in_words"`
	Purpose       string    `json:"purpose"`
	IssuedAt      time.Time `json:"issued_at"`
	PaymentStatus string    `json:"payment_status"`
}

func (s *Server) PublicVerifyReceipt(c *gin.Context) {
	ctx := c.Request.Context()

	result, err := s.verificationSvc.Verify(ctx, verificationdomain.VerifyRequest{
		ReceiptNumber: c.Param("receiptNumber"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_number", result.ReceiptNumber)
	if !result.Verified || result.Receipt == nil {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{
			"verified":       false,
			"receipt_number": result.ReceiptNumber,
		}})
		return
	}

	receipt := result.Receipt
	view := publicReceiptView{
		ReceiptNumber: receipt.ReceiptNumber,
		Payer:         receipt.Payer,
		Amount:        "PHP " + receipt.Amount.StringFixed(2),
		AmountInWords: receipt.AmountInWords + " Pesos Only",
		Purpose:       receipt.Purpose,
		IssuedAt:      receipt.IssuedAt,
		PaymentStatus: string(receipt.PaymentStatus),
	}
	if org, err := s.refrepo.GetOrganization(ctx, receipt.OrgID); err == nil && org != nil {
		view.Organization = org.Name
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"verified": true,
		"receipt":  view,
	}})
}

const publicVerifyEndpoint = "public_verify"

// PublicVerifyRateLimit throttles the unauthenticated endpoint on two
// axes: the calling address and the probed number. Either bucket running
// dry denies the request.
func (s *Server) PublicVerifyRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.verifyLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		result, err := s.verifyLimiter.AllowClient(ctx, c.ClientIP())
		if err != nil {
			logger.FromContext(ctx).Warn("public verify client rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		setRateLimitHeaders(c, result)
		if !result.Allowed {
			s.denyPublicVerify(c, result, "client-rate")
			return
		}

		result, err = s.verifyLimiter.AllowNumber(ctx, c.Param("receiptNumber"))
		if err != nil {
			logger.FromContext(ctx).Warn("public verify number rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			s.denyPublicVerify(c, result, "number-rate")
			return
		}

		if s.obsMetrics != nil {
			s.obsMetrics.RecordRateLimitAllowed(ctx, "public", publicVerifyEndpoint)
		}
		c.Next()
	}
}

func (s *Server) denyPublicVerify(c *gin.Context, result *ratelimit.RateLimitResult, reason string) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("public verify rate limit exceeded",
		zap.String("reason", reason),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordRateLimitDenied(ctx, "public", publicVerifyEndpoint, reason)
	}

	retryAfter := int(result.RetryAfter / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", reason)
	AbortWithError(c, ErrRateLimited)
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.RateLimitResult) {
	if result == nil || result.Limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
}

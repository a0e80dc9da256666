package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	dispatchdomain "github.com/resibo-ph/resibo/internal/dispatch/domain"
	"github.com/resibo-ph/resibo/internal/providers/pdf"
	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
	"github.com/shopspring/decimal"
)

type createReceiptRequest struct {
	Payer      string          `json:"payer"`
	PayerEmail string          `json:"payer_email"`
	PayerPhone string          `json:"payer_phone"`
	Purpose    string          `json:"purpose"`
	CategoryID string          `json:"category_id"`
	TemplateID string          `json:"template_id"`
	IssuedBy   string          `json:"issued_by"`
	Amount     decimal.Decimal `json:"amount"`
}

func (s *Server) CreateReceipt(c *gin.Context) {
	var req createReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issuedBy := strings.TrimSpace(req.IssuedBy)
	if issuedBy == "" {
		if actor, ok := actorFromContext(c); ok {
			issuedBy = actor.subject()
		}
	}

	created, err := s.receiptSvc.Issue(c.Request.Context(), receiptdomain.IssueReceiptRequest{
		Payer:      req.Payer,
		PayerEmail: req.PayerEmail,
		PayerPhone: req.PayerPhone,
		Purpose:    req.Purpose,
		CategoryID: req.CategoryID,
		TemplateID: req.TemplateID,
		IssuedBy:   issuedBy,
		Amount:     req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_number", created.ReceiptNumber)
	c.JSON(http.StatusCreated, gin.H{"data": created})
}

type listReceiptsQuery struct {
	PageToken     string `form:"page_token"`
	PageSize      int32  `form:"page_size"`
	Payer         string `form:"payer"`
	CategoryID    string `form:"category_id"`
	PaymentStatus string `form:"payment_status"`
	IssuedFrom    string `form:"issued_from"`
	IssuedTo      string `form:"issued_to"`
}

func (s *Server) ListReceipts(c *gin.Context) {
	var query listReceiptsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issuedFrom, err := parseOptionalTime(query.IssuedFrom, false)
	if err != nil {
		AbortWithError(c, newValidationError("issued_from", "invalid_issued_from", "invalid issued_from"))
		return
	}
	issuedTo, err := parseOptionalTime(query.IssuedTo, true)
	if err != nil {
		AbortWithError(c, newValidationError("issued_to", "invalid_issued_to", "invalid issued_to"))
		return
	}

	resp, err := s.receiptSvc.List(c.Request.Context(), receiptdomain.ListReceiptRequest{
		PageToken:     query.PageToken,
		PageSize:      query.PageSize,
		Payer:         query.Payer,
		CategoryID:    query.CategoryID,
		PaymentStatus: query.PaymentStatus,
		IssuedFrom:    issuedFrom,
		IssuedTo:      issuedTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Receipts,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) GetReceiptByID(c *gin.Context) {
	receipt, err := s.receiptSvc.GetByID(c.Request.Context(), receiptdomain.GetReceiptRequest{
		ID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

// DownloadReceiptPDF renders the live record, so a receipt always prints
// with its current channel statuses.
func (s *Server) DownloadReceiptPDF(c *gin.Context) {
	ctx := c.Request.Context()

	receipt, err := s.receiptSvc.GetByID(ctx, receiptdomain.GetReceiptRequest{ID: c.Param("id")})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	org, err := s.refrepo.GetOrganization(ctx, receipt.OrgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc := pdf.ReceiptDocument{
		ReceiptNumber: receipt.ReceiptNumber,
		IssuedAt:      receipt.IssuedAt.Format("January 2, 2006"),
		PayerName:     receipt.Payer,
		PayerEmail:    receipt.PayerEmail,
		PayerPhone:    receipt.PayerPhone,
		Amount:        "PHP " + receipt.Amount.StringFixed(2),
		AmountInWords: receipt.AmountInWords + " Pesos Only",
		Purpose:       receipt.Purpose,
		PaymentStatus: string(receipt.PaymentStatus),
		IssuedBy:      receipt.IssuedBy,

		VerificationPayload: receipt.Payload,
	}
	if s.cfg.PublicBaseURL != "" {
		doc.VerifyURL = s.cfg.PublicBaseURL + "/public/verify/" + receipt.ReceiptNumber
	}
	if org != nil {
		doc.OrganizationName = org.Name
		doc.OrganizationAddress = org.Address
		doc.ContactEmail = org.ContactEmail
	}
	if category, err := s.refrepo.FindCategory(ctx, receipt.OrgID, receipt.CategoryID); err == nil && category != nil {
		doc.Category = category.Name
	}
	if template, err := s.refrepo.FindTemplate(ctx, receipt.OrgID, receipt.TemplateID); err == nil && template != nil {
		doc.HeaderText = template.HeaderText
		doc.FooterText = template.FooterText
	}

	reader, err := s.pdfRenderer.RenderReceipt(ctx, doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_number", receipt.ReceiptNumber)
	c.Header("Content-Disposition", `attachment; filename="`+receipt.ReceiptNumber+`.pdf"`)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, reader)
}

// PatchReceiptStatus accepts a raw field patch. The service rejects any
// key outside the three channel status fields, so identity and amount
// stay frozen at this surface too.
func (s *Server) PatchReceiptStatus(c *gin.Context) {
	var patch map[string]string
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	receipt, err := s.receiptSvc.ApplyStatusPatch(c.Request.Context(), receiptdomain.StatusPatchRequest{
		ID:    c.Param("id"),
		Patch: patch,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_number", receipt.ReceiptNumber)
	c.JSON(http.StatusOK, gin.H{"data": receipt})
}

// DispatchReceipt fans out over payment, email and sms concurrently.
// Per-channel refusals ride in the outcome list with a 200.
func (s *Server) DispatchReceipt(c *gin.Context) {
	outcomes, err := s.dispatchSvc.DispatchAll(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": outcomes})
}

func (s *Server) DispatchReceiptChannel(c *gin.Context) {
	attempt, err := s.dispatchSvc.Dispatch(c.Request.Context(), dispatchdomain.DispatchRequest{
		ReceiptID: c.Param("id"),
		Channel:   c.Param("channel"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempt})
}

func (s *Server) ListDispatchAttempts(c *gin.Context) {
	attempts, err := s.dispatchSvc.ListAttempts(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempts})
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/resibo-ph/resibo/internal/authorization"
	"github.com/resibo-ph/resibo/internal/config"
	dispatchdomain "github.com/resibo-ph/resibo/internal/dispatch/domain"
	"github.com/resibo-ph/resibo/internal/providers/pdf"
	receiptdomain "github.com/resibo-ph/resibo/internal/receipt/domain"
	referencedomain "github.com/resibo-ph/resibo/internal/reference/domain"
	verificationdomain "github.com/resibo-ph/resibo/internal/verification/domain"
	"github.com/shopspring/decimal"
)

type fakeReceiptService struct {
	issued    receiptdomain.Receipt
	issueErr  error
	lastIssue receiptdomain.IssueReceiptRequest

	byID    receiptdomain.Receipt
	byIDErr error

	byNumber    receiptdomain.Receipt
	byNumberErr error

	listResp receiptdomain.ListReceiptResponse
	listErr  error

	patched   receiptdomain.Receipt
	patchErr  error
	lastPatch receiptdomain.StatusPatchRequest
}

func (f *fakeReceiptService) Issue(ctx context.Context, req receiptdomain.IssueReceiptRequest) (receiptdomain.Receipt, error) {
	_ = ctx
	f.lastIssue = req
	if f.issueErr != nil {
		return receiptdomain.Receipt{}, f.issueErr
	}
	return f.issued, nil
}

func (f *fakeReceiptService) GetByID(ctx context.Context, req receiptdomain.GetReceiptRequest) (receiptdomain.Receipt, error) {
	_ = ctx
	_ = req
	if f.byIDErr != nil {
		return receiptdomain.Receipt{}, f.byIDErr
	}
	return f.byID, nil
}

func (f *fakeReceiptService) GetByNumber(ctx context.Context, receiptNumber string) (receiptdomain.Receipt, error) {
	_ = ctx
	_ = receiptNumber
	if f.byNumberErr != nil {
		return receiptdomain.Receipt{}, f.byNumberErr
	}
	return f.byNumber, nil
}

func (f *fakeReceiptService) List(ctx context.Context, req receiptdomain.ListReceiptRequest) (receiptdomain.ListReceiptResponse, error) {
	_ = ctx
	_ = req
	if f.listErr != nil {
		return receiptdomain.ListReceiptResponse{}, f.listErr
	}
	return f.listResp, nil
}

func (f *fakeReceiptService) UpdateStatus(ctx context.Context, req receiptdomain.UpdateStatusRequest) (receiptdomain.Receipt, error) {
	_ = ctx
	_ = req
	return f.patched, f.patchErr
}

func (f *fakeReceiptService) ApplyStatusPatch(ctx context.Context, req receiptdomain.StatusPatchRequest) (receiptdomain.Receipt, error) {
	_ = ctx
	f.lastPatch = req
	if f.patchErr != nil {
		return receiptdomain.Receipt{}, f.patchErr
	}
	return f.patched, nil
}

type fakeDispatchService struct {
	attempt    dispatchdomain.DispatchAttempt
	attemptErr error
	lastReq    dispatchdomain.DispatchRequest

	outcomes []dispatchdomain.ChannelOutcome
	attempts []dispatchdomain.DispatchAttempt
}

func (f *fakeDispatchService) Dispatch(ctx context.Context, req dispatchdomain.DispatchRequest) (dispatchdomain.DispatchAttempt, error) {
	_ = ctx
	f.lastReq = req
	if f.attemptErr != nil {
		return dispatchdomain.DispatchAttempt{}, f.attemptErr
	}
	return f.attempt, nil
}

func (f *fakeDispatchService) DispatchAll(ctx context.Context, receiptID string) ([]dispatchdomain.ChannelOutcome, error) {
	_ = ctx
	_ = receiptID
	return f.outcomes, nil
}

func (f *fakeDispatchService) ListAttempts(ctx context.Context, receiptID string) ([]dispatchdomain.DispatchAttempt, error) {
	_ = ctx
	_ = receiptID
	return f.attempts, nil
}

type fakeVerificationService struct {
	result verificationdomain.VerificationResult
	err    error
	calls  int
	last   verificationdomain.VerifyRequest
}

func (f *fakeVerificationService) Verify(ctx context.Context, req verificationdomain.VerifyRequest) (verificationdomain.VerificationResult, error) {
	_ = ctx
	f.calls++
	f.last = req
	if f.err != nil {
		return verificationdomain.VerificationResult{}, f.err
	}
	return f.result, nil
}

type fakeAuthzService struct {
	err        error
	calls      int
	lastObject string
	lastAction string
	lastActor  string
}

func (f *fakeAuthzService) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	_ = ctx
	_ = orgID
	f.calls++
	f.lastActor = actor
	f.lastObject = object
	f.lastAction = action
	return f.err
}

type fakeReferenceRepo struct {
	org      *referencedomain.Organization
	category *referencedomain.Category
	template *referencedomain.Template
}

func (f *fakeReferenceRepo) GetOrganization(ctx context.Context, id snowflake.ID) (*referencedomain.Organization, error) {
	_ = ctx
	_ = id
	return f.org, nil
}

func (f *fakeReferenceRepo) ListCategories(ctx context.Context, orgID snowflake.ID) ([]referencedomain.Category, error) {
	_ = ctx
	_ = orgID
	if f.category == nil {
		return nil, nil
	}
	return []referencedomain.Category{*f.category}, nil
}

func (f *fakeReferenceRepo) FindCategory(ctx context.Context, orgID, id snowflake.ID) (*referencedomain.Category, error) {
	_ = ctx
	_ = orgID
	_ = id
	return f.category, nil
}

func (f *fakeReferenceRepo) ListTemplates(ctx context.Context, orgID snowflake.ID) ([]referencedomain.Template, error) {
	_ = ctx
	_ = orgID
	if f.template == nil {
		return nil, nil
	}
	return []referencedomain.Template{*f.template}, nil
}

func (f *fakeReferenceRepo) FindTemplate(ctx context.Context, orgID, id snowflake.ID) (*referencedomain.Template, error) {
	_ = ctx
	_ = orgID
	_ = id
	return f.template, nil
}

func (f *fakeReferenceRepo) DefaultTemplate(ctx context.Context, orgID snowflake.ID) (*referencedomain.Template, error) {
	_ = ctx
	_ = orgID
	return f.template, nil
}

func receiptFixture() receiptdomain.Receipt {
	return receiptdomain.Receipt{
		ID:            snowflake.ID(1001),
		OrgID:         snowflake.ID(1),
		ReceiptNumber: "OR-2025-000123",
		Payer:         "Juan Dela Cruz",
		PayerEmail:    "juan@example.com",
		PayerPhone:    "+639170000001",
		Purpose:       "Tuition",
		CategoryID:    snowflake.ID(11),
		TemplateID:    snowflake.ID(21),
		IssuedBy:      "encoder:42",
		Amount:        decimal.NewFromInt(1500),
		AmountInWords: "One Thousand Five Hundred",
		IssuedAt:      time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		PaymentStatus: receiptdomain.PaymentStatusPending,
		EmailStatus:   receiptdomain.DeliveryStatusPending,
		SMSStatus:     receiptdomain.DeliveryStatusPending,
	}
}

func newTestServer() (*Server, *fakeReceiptService, *fakeAuthzService) {
	receiptSvc := &fakeReceiptService{issued: receiptFixture(), byID: receiptFixture(), byNumber: receiptFixture(), patched: receiptFixture()}
	authzSvc := &fakeAuthzService{}
	srv := &Server{
		cfg:        config.Config{DefaultOrgID: 1},
		authzSvc:   authzSvc,
		receiptSvc: receiptSvc,
		refrepo: &fakeReferenceRepo{
			org: &referencedomain.Organization{ID: snowflake.ID(1), Name: "Barangay San Isidro", Address: "San Isidro, Quezon City"},
			category: &referencedomain.Category{ID: snowflake.ID(11), OrgID: snowflake.ID(1), Name: "Tuition", IsActive: true},
			template: &referencedomain.Template{ID: snowflake.ID(21), OrgID: snowflake.ID(1), Name: "Default", NumberFormat: "OR-{YYYY}-{SEQ6}"},
		},
		pdfRenderer: pdf.New(),
	}
	return srv, receiptSvc, authzSvc
}

func newTestRouter(srv *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	srv.engine = r
	srv.registerAPIRoutes()
	srv.registerPublicRoutes()
	return r
}

func asEncoder(req *http.Request) *http.Request {
	req.Header.Set(HeaderActorRole, "encoder")
	req.Header.Set(HeaderActorID, "42")
	return req
}

func TestCreateReceiptReturns201(t *testing.T) {
	srv, receiptSvc, authzSvc := newTestServer()
	router := newTestRouter(srv)

	body := `{"payer":"Juan Dela Cruz","payer_email":"juan@example.com","purpose":"Tuition","category_id":"11","amount":1500}`
	req := asEncoder(httptest.NewRequest(http.MethodPost, "/api/receipts", bytes.NewBufferString(body)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if authzSvc.lastAction != authorization.ActionReceiptCreate {
		t.Fatalf("expected receipt.create check, got %q", authzSvc.lastAction)
	}
	if authzSvc.lastActor != "encoder:42" {
		t.Fatalf("expected actor encoder:42, got %q", authzSvc.lastActor)
	}
	if receiptSvc.lastIssue.Payer != "Juan Dela Cruz" {
		t.Fatalf("unexpected payer %q", receiptSvc.lastIssue.Payer)
	}
	// Issuer defaults to the acting principal when the body omits it.
	if receiptSvc.lastIssue.IssuedBy != "encoder:42" {
		t.Fatalf("expected issued_by to default to actor, got %q", receiptSvc.lastIssue.IssuedBy)
	}

	var parsed struct {
		Data receiptdomain.Receipt `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if parsed.Data.ReceiptNumber != "OR-2025-000123" {
		t.Fatalf("unexpected receipt number %q", parsed.Data.ReceiptNumber)
	}
}

func TestCreateReceiptInvalidBodyReturns400(t *testing.T) {
	srv, _, _ := newTestServer()
	router := newTestRouter(srv)

	req := asEncoder(httptest.NewRequest(http.MethodPost, "/api/receipts", bytes.NewBufferString(`{"payer":`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCreateReceiptDuplicateNumberReturns409(t *testing.T) {
	srv, receiptSvc, _ := newTestServer()
	receiptSvc.issueErr = receiptdomain.ErrDuplicateReceiptNumber
	router := newTestRouter(srv)

	req := asEncoder(httptest.NewRequest(http.MethodPost, "/api/receipts", bytes.NewBufferString(`{"payer":"Juan","purpose":"Tuition","category_id":"11","amount":100}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateReceiptWithoutActorReturns401(t *testing.T) {
	srv, receiptSvc, _ := newTestServer()
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/receipts", bytes.NewBufferString(`{"payer":"Juan","purpose":"Tuition","category_id":"11","amount":100}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", resp.Code)
	}
	if receiptSvc.lastIssue.Payer != "" {
		t.Fatal("expected issue service not to be called")
	}
}

func TestCreateReceiptForbiddenRoleReturns403(t *testing.T) {
	srv, _, authzSvc := newTestServer()
	authzSvc.err = authorization.ErrForbidden
	router := newTestRouter(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/receipts", bytes.NewBufferString(`{"payer":"Juan","purpose":"Tuition","category_id":"11","amount":100}`))
	req.Header.Set(HeaderActorRole, "viewer")
	req.Header.Set(HeaderActorID, "7")
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", resp.Code)
	}
}

func TestGetReceiptByIDNotFoundReturns404(t *testing.T) {
	srv, receiptSvc, _ := newTestServer()
	receiptSvc.byIDErr = receiptdomain.ErrNotFound
	router := newTestRouter(srv)

	req := asEncoder(httptest.NewRequest(http.MethodGet, "/api/receipts/999", nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestPatchReceiptStatusImmutableFieldReturns422(t *testing.T) {
	srv, receiptSvc, _ := newTestServer()
	receiptSvc.patchErr = receiptdomain.ErrImmutableField
	router := newTestRouter(srv)

	req := asEncoder(httptest.NewRequest(http.MethodPatch, "/api/receipts/1001", bytes.NewBufferString(`{"amount":"999"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", resp.Code, resp.Body.String())
	}
	if receiptSvc.lastPatch.Patch["amount"] != "999" {
		t.Fatalf("expected patch to reach the service, got %v", receiptSvc.lastPatch.Patch)
	}
}

func TestPatchReceiptStatusIllegalTransitionReturns409(t *testing.T) {
	srv, receiptSvc, _ := newTestServer()
	receiptSvc.patchErr = receiptdomain.ErrIllegalStatusTransition
	router := newTestRouter(srv)

	req := asEncoder(httptest.NewRequest(http.MethodPatch, "/api/receipts/1001", bytes.NewBufferString(`{"payment_status":"COMPLETED"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
}

func TestDispatchReceiptChannelReturnsAttempt(t *testing.T) {
	srv, _, _ := newTestServer()
	dispatchSvc := &fakeDispatchService{
		attempt: dispatchdomain.DispatchAttempt{
			ID:        snowflake.ID(7001),
			ReceiptID: snowflake.ID(1001),
			Channel:   receiptdomain.ChannelEmail,
			Succeeded: true,
			Reference: "smtp-ref-1",
		},
	}
	srv.dispatchSvc = dispatchSvc
	router := newTestRouter(srv)

	req := asEncoder(httptest.NewRequest(http.MethodPost, "/api/receipts/1001/dispatch/email", nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if dispatchSvc.lastReq.ReceiptID != "1001" || dispatchSvc.lastReq.Channel != "email" {
		t.Fatalf("unexpected dispatch request %+v", dispatchSvc.lastReq)
	}
}

func TestDispatchReceiptDisabledChannelReturns422(t *testing.T) {
	srv, _, _ := newTestServer()
	srv.dispatchSvc = &fakeDispatchService{attemptErr: dispatchdomain.ErrChannelDisabled}
	router := newTestRouter(srv)

	req := asEncoder(httptest.NewRequest(http.MethodPost, "/api/receipts/1001/dispatch/sms", nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", resp.Code)
	}
}

func TestDownloadReceiptPDFRendersDocument(t *testing.T) {
	srv, _, _ := newTestServer()
	router := newTestRouter(srv)

	req := asEncoder(httptest.NewRequest(http.MethodGet, "/api/receipts/1001/pdf", nil))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if got := resp.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("expected application/pdf, got %q", got)
	}
	if resp.Body.Len() == 0 {
		t.Fatal("expected a non-empty PDF body")
	}
}

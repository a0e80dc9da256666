package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/resibo-ph/resibo/internal/audit"
	"github.com/resibo-ph/resibo/internal/authorization"
	"github.com/resibo-ph/resibo/internal/clock"
	"github.com/resibo-ph/resibo/internal/config"
	"github.com/resibo-ph/resibo/internal/dispatch"
	"github.com/resibo-ph/resibo/internal/observability"
	"github.com/resibo-ph/resibo/internal/providers"
	"github.com/resibo-ph/resibo/internal/ratelimit"
	"github.com/resibo-ph/resibo/internal/receipt"
	"github.com/resibo-ph/resibo/internal/reference"
	"github.com/resibo-ph/resibo/internal/seed"
	"github.com/resibo-ph/resibo/internal/server"
	"github.com/resibo-ph/resibo/internal/verification"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type testEnv struct {
	app     *fx.App
	server  *server.Server
	db      *gorm.DB
	cfg     config.Config
	baseURL string
	httpSrv *httptest.Server
}

var env *testEnv

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	setDefaultEnv()

	var err error
	env, err = startEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to start test environment:", err)
		os.Exit(1)
	}

	code := m.Run()
	env.shutdown()
	os.Exit(code)
}

func setDefaultEnv() {
	setEnvIfEmpty("ENVIRONMENT", "test")
	setEnvIfEmpty("LOG_LEVEL", "error")
	setEnvIfEmpty("OTEL_ENABLED", "false")
	setEnvIfEmpty("RATE_LIMIT_ENABLED", "false")
	setEnvIfEmpty("DEFAULT_ORG", "1")
}

func setEnvIfEmpty(key, value string) {
	if strings.TrimSpace(os.Getenv(key)) != "" {
		return
	}
	_ = os.Setenv(key, value)
}

func startEnv() (*testEnv, error) {
	var (
		srv    *server.Server
		dbConn *gorm.DB
		cfg    config.Config
	)

	app := fx.New(
		observability.Module,
		config.Module,
		clock.Module,
		fx.Provide(newTestDB),
		authorization.Module,
		audit.Module,
		reference.Module,
		providers.Module,
		receipt.Module,
		verification.Module,
		dispatch.Module,
		ratelimit.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Populate(&srv, &dbConn, &cfg),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	if err := seed.EnsureDefaults(dbConn, cfg); err != nil {
		app.Stop(context.Background())
		return nil, err
	}

	httpSrv := httptest.NewServer(srv.Engine())

	return &testEnv{
		app:     app,
		server:  srv,
		db:      dbConn,
		cfg:     cfg,
		baseURL: httpSrv.URL,
		httpSrv: httpSrv,
	}, nil
}

func (e *testEnv) shutdown() {
	if e == nil {
		return
	}
	if e.httpSrv != nil {
		e.httpSrv.Close()
	}
	if e.app != nil {
		_ = e.app.Stop(context.Background())
	}
}

// newTestDB stands in for the database module: one shared in-memory
// sqlite the whole app writes through, carrying the same tables the
// migrations produce on postgres.
func newTestDB() (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := gdb.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return nil, err
	}
	return gdb, createSchema(gdb)
}

func createSchema(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS organizations (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			contact_email TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_organizations_slug ON organizations (slug)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS templates (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			name TEXT NOT NULL,
			number_format TEXT NOT NULL,
			header_text TEXT NOT NULL DEFAULT '',
			footer_text TEXT NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			receipt_number TEXT NOT NULL,
			payer TEXT NOT NULL,
			payer_email TEXT NOT NULL DEFAULT '',
			payer_phone TEXT NOT NULL DEFAULT '',
			purpose TEXT NOT NULL,
			category_id BIGINT NOT NULL,
			template_id BIGINT NOT NULL,
			issued_by TEXT NOT NULL,
			amount DECIMAL(12,2) NOT NULL,
			amount_in_words TEXT NOT NULL,
			issued_at DATETIME NOT NULL,
			verification_payload TEXT NOT NULL,
			payment_status TEXT NOT NULL DEFAULT 'PENDING',
			email_status TEXT NOT NULL DEFAULT 'PENDING',
			sms_status TEXT NOT NULL DEFAULT 'PENDING',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_receipts_number ON receipts (receipt_number)`,
		`CREATE TABLE IF NOT EXISTS receipt_sequences (
			org_id BIGINT NOT NULL,
			year INTEGER NOT NULL,
			last_seq BIGINT NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (org_id, year)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id BIGINT PRIMARY KEY,
			org_id BIGINT,
			actor_type TEXT NOT NULL,
			actor_id TEXT,
			action TEXT NOT NULL,
			target_type TEXT NOT NULL DEFAULT '',
			target_id TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			ip_address TEXT,
			user_agent TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS dispatch_attempts (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL,
			receipt_id BIGINT NOT NULL,
			channel TEXT NOT NULL,
			succeeded BOOLEAN NOT NULL DEFAULT FALSE,
			reference TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			attempted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func resetDatabase(t *testing.T, dbConn *gorm.DB) {
	t.Helper()
	for _, table := range []string{
		"dispatch_attempts", "audit_logs", "receipts", "receipt_sequences",
		"categories", "templates", "organizations",
	} {
		if err := dbConn.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("clear %s: %v", table, err)
		}
	}
	if err := seed.EnsureDefaults(dbConn, env.cfg); err != nil {
		t.Fatalf("seed defaults: %v", err)
	}
}

func asAdmin() map[string]string {
	return map[string]string{server.HeaderActorRole: "admin", server.HeaderActorID: "9001"}
}

func asEncoder() map[string]string {
	return map[string]string{server.HeaderActorRole: "encoder", server.HeaderActorID: "4002"}
}

func asViewer() map[string]string {
	return map[string]string{server.HeaderActorRole: "viewer", server.HeaderActorID: "7003"}
}

type receiptPayload struct {
	ID            string `json:"id"`
	ReceiptNumber string `json:"receipt_number"`
	Payer         string `json:"payer"`
	PayerEmail    string `json:"payer_email"`
	PayerPhone    string `json:"payer_phone"`
	Purpose       string `json:"purpose"`
	IssuedBy      string `json:"issued_by"`
	AmountInWords string `json:"amount_in_words"`
	Payload       string `json:"verification_payload"`
	PaymentStatus string `json:"payment_status"`
	EmailStatus   string `json:"email_status"`
	SMSStatus     string `json:"sms_status"`
}

func defaultCategoryID(t *testing.T, headers map[string]string) string {
	t.Helper()

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/categories", nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list categories failed: %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode categories: %v", err)
	}
	if len(payload.Data) == 0 {
		t.Fatalf("no categories seeded")
	}
	return payload.Data[0].ID
}

func issueReceipt(t *testing.T, headers map[string]string, overrides map[string]any) receiptPayload {
	t.Helper()

	req := map[string]any{
		"payer":       "Juan Dela Cruz",
		"payer_email": "juan@example.com",
		"payer_phone": "+639171234567",
		"purpose":     "Tuition payment",
		"category_id": defaultCategoryID(t, headers),
		"amount":      "1500.50",
	}
	for key, value := range overrides {
		req[key] = value
	}

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/receipts", req, headers)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("issue receipt failed: %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		Data receiptPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if payload.Data.ID == "" || payload.Data.ReceiptNumber == "" {
		t.Fatalf("incomplete receipt in response: %s", string(body))
	}
	return payload.Data
}

func getReceipt(t *testing.T, id string, headers map[string]string) receiptPayload {
	t.Helper()

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/receipts/"+id, nil, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get receipt failed: %d: %s", resp.StatusCode, string(body))
	}
	var payload struct {
		Data receiptPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	return payload.Data
}

func doJSON(t *testing.T, method, reqURL string, payload any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode json: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, reqURL, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func TestE2E_HealthCheck(t *testing.T) {
	resetDatabase(t, env.db)

	resp, err := http.Get(env.baseURL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestE2E_SeedReferenceData(t *testing.T) {
	resetDatabase(t, env.db)

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/organizations", nil, asViewer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list organizations failed: %d: %s", resp.StatusCode, string(body))
	}
	var orgs struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &orgs); err != nil {
		t.Fatalf("decode organizations: %v", err)
	}
	if len(orgs.Data) != 1 || orgs.Data[0].Name != "Main Office" {
		t.Fatalf("unexpected organizations: %s", string(body))
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/categories", nil, asViewer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list categories failed: %d: %s", resp.StatusCode, string(body))
	}
	var categories struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &categories); err != nil {
		t.Fatalf("decode categories: %v", err)
	}
	if len(categories.Data) != 5 {
		t.Fatalf("expected 5 seeded categories, got %d", len(categories.Data))
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/templates", nil, asViewer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list templates failed: %d: %s", resp.StatusCode, string(body))
	}
	var templates struct {
		Data []struct {
			NumberFormat string `json:"number_format"`
			IsDefault    bool   `json:"is_default"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &templates); err != nil {
		t.Fatalf("decode templates: %v", err)
	}
	if len(templates.Data) != 1 || !templates.Data[0].IsDefault {
		t.Fatalf("expected one default template, got %s", string(body))
	}
	if templates.Data[0].NumberFormat != "OR-{YYYY}-{SEQ6}" {
		t.Fatalf("unexpected number format %q", templates.Data[0].NumberFormat)
	}
}

func TestE2E_IssueAndVerifyReceipt(t *testing.T) {
	resetDatabase(t, env.db)

	issued := issueReceipt(t, asEncoder(), nil)

	wantNumber := fmt.Sprintf("OR-%d-000001", time.Now().UTC().Year())
	if issued.ReceiptNumber != wantNumber {
		t.Fatalf("expected %s, got %s", wantNumber, issued.ReceiptNumber)
	}
	if issued.AmountInWords != "One Thousand Five Hundred" {
		t.Fatalf("unexpected amount in words: %q", issued.AmountInWords)
	}
	if issued.PaymentStatus != "PENDING" || issued.EmailStatus != "PENDING" || issued.SMSStatus != "PENDING" {
		t.Fatalf("expected all channels pending, got %s/%s/%s",
			issued.PaymentStatus, issued.EmailStatus, issued.SMSStatus)
	}
	// Issuer defaults to the acting principal when the body omits it.
	if issued.IssuedBy != "encoder:4002" {
		t.Fatalf("expected issued_by encoder:4002, got %q", issued.IssuedBy)
	}

	// Staff verification accepts the scanned payload.
	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/verify",
		map[string]any{"payload": issued.Payload}, asViewer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify by payload failed: %d: %s", resp.StatusCode, string(body))
	}
	var verified struct {
		Data struct {
			Verified      bool           `json:"verified"`
			ReceiptNumber string         `json:"receipt_number"`
			Receipt       receiptPayload `json:"receipt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &verified); err != nil {
		t.Fatalf("decode verification: %v", err)
	}
	if !verified.Data.Verified || verified.Data.Receipt.ReceiptNumber != issued.ReceiptNumber {
		t.Fatalf("payload did not verify: %s", string(body))
	}

	// Lookup is case-insensitive on the typed-in number.
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/verify",
		map[string]any{"receipt_number": strings.ToLower(issued.ReceiptNumber)}, asViewer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify by number failed: %d: %s", resp.StatusCode, string(body))
	}

	// A garbled scan is rejected before any lookup.
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/verify",
		map[string]any{"payload": "not-a-receipt-payload"}, asViewer())
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed payload, got %d: %s", resp.StatusCode, string(body))
	}
	if !strings.Contains(string(body), "malformed_payload") {
		t.Fatalf("expected malformed_payload code, got %s", string(body))
	}
}

func TestE2E_PublicVerification(t *testing.T) {
	resetDatabase(t, env.db)

	issued := issueReceipt(t, asEncoder(), nil)

	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/public/verify/"+issued.ReceiptNumber, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public verify failed: %d: %s", resp.StatusCode, string(body))
	}
	var payload struct {
		Data struct {
			Verified bool `json:"verified"`
			Receipt  struct {
				ReceiptNumber string `json:"receipt_number"`
				Organization  string `json:"organization"`
				Payer         string `json:"payer"`
				Amount        string `json:"amount"`
			} `json:"receipt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode public verification: %v", err)
	}
	if !payload.Data.Verified || payload.Data.Receipt.ReceiptNumber != issued.ReceiptNumber {
		t.Fatalf("expected verified receipt, got %s", string(body))
	}
	if payload.Data.Receipt.Organization != "Main Office" {
		t.Fatalf("expected issuing organization, got %q", payload.Data.Receipt.Organization)
	}
	if payload.Data.Receipt.Amount != "PHP 1500.50" {
		t.Fatalf("unexpected amount %q", payload.Data.Receipt.Amount)
	}

	// The public answer never carries contact details.
	if strings.Contains(string(body), "juan@example.com") || strings.Contains(string(body), "+639171234567") {
		t.Fatalf("public verification leaked contact details: %s", string(body))
	}

	// An unknown number answers verified: false rather than an error.
	unknown := fmt.Sprintf("OR-%d-999999", time.Now().UTC().Year())
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/public/verify/"+unknown, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public verify of unknown number failed: %d: %s", resp.StatusCode, string(body))
	}
	var miss struct {
		Data struct {
			Verified      bool   `json:"verified"`
			ReceiptNumber string `json:"receipt_number"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &miss); err != nil {
		t.Fatalf("decode miss: %v", err)
	}
	if miss.Data.Verified || miss.Data.ReceiptNumber != unknown {
		t.Fatalf("expected unverified %s, got %s", unknown, string(body))
	}
}

func TestE2E_VerificationLeavesRecordUntouched(t *testing.T) {
	resetDatabase(t, env.db)

	issued := issueReceipt(t, asEncoder(), nil)

	resp, before := doJSON(t, http.MethodGet, env.baseURL+"/api/receipts/"+issued.ID, nil, asViewer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch before verification failed: %d: %s", resp.StatusCode, string(before))
	}

	// Hammer every verification path a few times. None of them may
	// write: the stored record has to come back byte for byte.
	for i := 0; i < 3; i++ {
		resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/verify",
			map[string]any{"receipt_number": issued.ReceiptNumber}, asViewer())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("verify by number failed: %d: %s", resp.StatusCode, string(body))
		}
		resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/verify",
			map[string]any{"payload": issued.Payload}, asViewer())
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("verify by payload failed: %d: %s", resp.StatusCode, string(body))
		}
		resp, body = doJSON(t, http.MethodGet, env.baseURL+"/public/verify/"+issued.ReceiptNumber, nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("public verify failed: %d: %s", resp.StatusCode, string(body))
		}
	}

	resp, after := doJSON(t, http.MethodGet, env.baseURL+"/api/receipts/"+issued.ID, nil, asViewer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch after verification failed: %d: %s", resp.StatusCode, string(after))
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("verification mutated the record:\nbefore: %s\nafter:  %s", string(before), string(after))
	}

	current := getReceipt(t, issued.ID, asViewer())
	if current.PaymentStatus != "PENDING" || current.EmailStatus != "PENDING" || current.SMSStatus != "PENDING" {
		t.Fatalf("expected all channels still pending, got %s/%s/%s",
			current.PaymentStatus, current.EmailStatus, current.SMSStatus)
	}
	if current.Payload != issued.Payload {
		t.Fatalf("verification payload changed: %q -> %q", issued.Payload, current.Payload)
	}
}

func TestE2E_RoleMatrix(t *testing.T) {
	resetDatabase(t, env.db)

	issued := issueReceipt(t, asEncoder(), nil)

	// No actor headers: unauthenticated.
	resp, body := doJSON(t, http.MethodGet, env.baseURL+"/api/receipts", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor, got %d: %s", resp.StatusCode, string(body))
	}

	// Viewers read but never write.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/receipts", nil, asViewer())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("viewer list failed: %d: %s", resp.StatusCode, string(body))
	}
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/receipts", map[string]any{
		"payer":       "Maria Clara",
		"purpose":     "Permit fee",
		"category_id": defaultCategoryID(t, asViewer()),
		"amount":      "100.00",
	}, asViewer())
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer create, got %d: %s", resp.StatusCode, string(body))
	}

	// Status corrections stay with admins.
	resp, body = doJSON(t, http.MethodPatch, env.baseURL+"/api/receipts/"+issued.ID,
		map[string]any{"payment_status": "COMPLETED"}, asEncoder())
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for encoder patch, got %d: %s", resp.StatusCode, string(body))
	}

	// Dispatch history reads as audit data: admin only.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/receipts/"+issued.ID+"/attempts", nil, asEncoder())
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for encoder attempts read, got %d: %s", resp.StatusCode, string(body))
	}

	// A role outside the policy set is refused outright.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/receipts", nil, map[string]string{
		server.HeaderActorRole: "auditor",
		server.HeaderActorID:   "1234",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown role, got %d: %s", resp.StatusCode, string(body))
	}

	// A garbled actor id fails validation before any policy check.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/receipts", nil, map[string]string{
		server.HeaderActorRole: "viewer",
		server.HeaderActorID:   "not-a-number",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed actor id, got %d: %s", resp.StatusCode, string(body))
	}
}

func TestE2E_StatusPatchLifecycle(t *testing.T) {
	resetDatabase(t, env.db)

	issued := issueReceipt(t, asEncoder(), nil)

	resp, body := doJSON(t, http.MethodPatch, env.baseURL+"/api/receipts/"+issued.ID,
		map[string]any{"payment_status": "COMPLETED"}, asAdmin())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch payment failed: %d: %s", resp.StatusCode, string(body))
	}
	var patched struct {
		Data receiptPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &patched); err != nil {
		t.Fatalf("decode patched receipt: %v", err)
	}
	if patched.Data.PaymentStatus != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %s", patched.Data.PaymentStatus)
	}
	if patched.Data.EmailStatus != "PENDING" || patched.Data.SMSStatus != "PENDING" {
		t.Fatalf("other channels must stay pending, got %s/%s",
			patched.Data.EmailStatus, patched.Data.SMSStatus)
	}

	// The payment channel is sealed; a second terminal write loses.
	resp, body = doJSON(t, http.MethodPatch, env.baseURL+"/api/receipts/"+issued.ID,
		map[string]any{"payment_status": "FAILED"}, asAdmin())
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for resealed channel, got %d: %s", resp.StatusCode, string(body))
	}
	if !strings.Contains(string(body), "illegal_status_transition") {
		t.Fatalf("expected illegal_status_transition, got %s", string(body))
	}

	// Identity fields are frozen at issue time.
	resp, body = doJSON(t, http.MethodPatch, env.baseURL+"/api/receipts/"+issued.ID,
		map[string]any{"payer": "Impostor", "email_status": "SENT"}, asAdmin())
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for immutable field, got %d: %s", resp.StatusCode, string(body))
	}

	// The poisoned patch must not have applied its legal half.
	current := getReceipt(t, issued.ID, asViewer())
	if current.EmailStatus != "PENDING" {
		t.Fatalf("rejected patch leaked a write: email is %s", current.EmailStatus)
	}
	if current.Payer != issued.Payer {
		t.Fatalf("payer changed to %q", current.Payer)
	}

	// Channels remain independent: email and sms still accept a seal.
	resp, body = doJSON(t, http.MethodPatch, env.baseURL+"/api/receipts/"+issued.ID,
		map[string]any{"email_status": "SENT", "sms_status": "FAILED"}, asAdmin())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch delivery channels failed: %d: %s", resp.StatusCode, string(body))
	}
	current = getReceipt(t, issued.ID, asViewer())
	if current.PaymentStatus != "COMPLETED" || current.EmailStatus != "SENT" || current.SMSStatus != "FAILED" {
		t.Fatalf("unexpected final statuses %s/%s/%s",
			current.PaymentStatus, current.EmailStatus, current.SMSStatus)
	}
}

func TestE2E_DispatchLifecycle(t *testing.T) {
	resetDatabase(t, env.db)

	issued := issueReceipt(t, asEncoder(), nil)

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/receipts/"+issued.ID+"/dispatch", nil, asEncoder())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch failed: %d: %s", resp.StatusCode, string(body))
	}
	var outcomes struct {
		Data []struct {
			Channel string `json:"channel"`
			Attempt *struct {
				Succeeded bool   `json:"succeeded"`
				Reference string `json:"reference"`
			} `json:"attempt"`
			Error string `json:"error"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &outcomes); err != nil {
		t.Fatalf("decode outcomes: %v", err)
	}
	if len(outcomes.Data) != 3 {
		t.Fatalf("expected 3 channel outcomes, got %d", len(outcomes.Data))
	}
	for _, outcome := range outcomes.Data {
		if outcome.Attempt == nil || !outcome.Attempt.Succeeded {
			t.Fatalf("channel %s did not succeed: %s", outcome.Channel, string(body))
		}
		if outcome.Channel == "payment" && !strings.HasPrefix(outcome.Attempt.Reference, "noop-") {
			t.Fatalf("expected gateway reference on payment, got %q", outcome.Attempt.Reference)
		}
	}

	// Every channel sealed with its success status.
	current := getReceipt(t, issued.ID, asViewer())
	if current.PaymentStatus != "COMPLETED" || current.EmailStatus != "SENT" || current.SMSStatus != "SENT" {
		t.Fatalf("unexpected statuses after dispatch %s/%s/%s",
			current.PaymentStatus, current.EmailStatus, current.SMSStatus)
	}

	// A sealed channel refuses re-dispatch before any provider call.
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/receipts/"+issued.ID+"/dispatch/payment", nil, asEncoder())
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for re-dispatch, got %d: %s", resp.StatusCode, string(body))
	}

	// The attempt history records all three calls.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/receipts/"+issued.ID+"/attempts", nil, asAdmin())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list attempts failed: %d: %s", resp.StatusCode, string(body))
	}
	var attempts struct {
		Data []struct {
			Channel   string `json:"channel"`
			Succeeded bool   `json:"succeeded"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &attempts); err != nil {
		t.Fatalf("decode attempts: %v", err)
	}
	if len(attempts.Data) != 3 {
		t.Fatalf("expected 3 attempts, got %d: %s", len(attempts.Data), string(body))
	}

	// A receipt without a phone number skips sms and says why; the
	// channel stays open rather than sealing on a send that never happened.
	phoneless := issueReceipt(t, asEncoder(), map[string]any{"payer_phone": ""})
	resp, body = doJSON(t, http.MethodPost, env.baseURL+"/api/receipts/"+phoneless.ID+"/dispatch", nil, asEncoder())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch without phone failed: %d: %s", resp.StatusCode, string(body))
	}
	outcomes.Data = nil // drop the previous decode so absent fields don't carry over
	if err := json.Unmarshal(body, &outcomes); err != nil {
		t.Fatalf("decode outcomes: %v", err)
	}
	for _, outcome := range outcomes.Data {
		if outcome.Channel != "sms" {
			continue
		}
		if outcome.Attempt != nil || outcome.Error != "missing_contact" {
			t.Fatalf("expected skipped sms channel, got %s", string(body))
		}
	}
	current = getReceipt(t, phoneless.ID, asViewer())
	if current.SMSStatus != "PENDING" {
		t.Fatalf("sms must stay pending without a destination, got %s", current.SMSStatus)
	}
}

func TestE2E_AuditTrail(t *testing.T) {
	resetDatabase(t, env.db)

	issued := issueReceipt(t, asEncoder(), nil)

	resp, body := doJSON(t, http.MethodPost, env.baseURL+"/api/receipts/"+issued.ID+"/dispatch/email", nil, asEncoder())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch email failed: %d: %s", resp.StatusCode, string(body))
	}

	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/audit_logs", nil, asAdmin())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list audit logs failed: %d: %s", resp.StatusCode, string(body))
	}
	var logs struct {
		Data []struct {
			Action    string `json:"action"`
			ActorType string `json:"actor_type"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &logs); err != nil {
		t.Fatalf("decode audit logs: %v", err)
	}
	actions := map[string]bool{}
	for _, entry := range logs.Data {
		actions[entry.Action] = true
	}
	if !actions["receipt.issued"] || !actions["receipt.dispatched"] {
		t.Fatalf("expected issue and dispatch entries, got %s", string(body))
	}

	// Action filter narrows the trail.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/audit_logs?action=receipt.issued", nil, asAdmin())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("filtered audit logs failed: %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &logs); err != nil {
		t.Fatalf("decode filtered audit logs: %v", err)
	}
	if len(logs.Data) != 1 || logs.Data[0].Action != "receipt.issued" {
		t.Fatalf("expected exactly the issue entry, got %s", string(body))
	}

	// Viewers cannot read the trail.
	resp, body = doJSON(t, http.MethodGet, env.baseURL+"/api/audit_logs", nil, asViewer())
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer audit read, got %d: %s", resp.StatusCode, string(body))
	}
}

package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/resibo-ph/resibo/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectReceipt   = "receipt"
	ObjectAuditLog  = "audit_log"
	ObjectReference = "reference"
)

const (
	ActionReceiptView         = "receipt.view"
	ActionReceiptCreate       = "receipt.create"
	ActionReceiptUpdateStatus = "receipt.update_status"
	ActionReceiptDispatch     = "receipt.dispatch"
	ActionReceiptExport       = "receipt.export"

	ActionAuditLogView = "audit_log.view"

	ActionReferenceView   = "reference.view"
	ActionReferenceManage = "reference.manage"
)

const (
	RoleAdmin   = "admin"
	RoleEncoder = "encoder"
	RoleViewer  = "viewer"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(actor)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, orgID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, orgID, object, action)
	}
	return nil
}

// resolveActor maps the gateway-supplied actor token to a casbin subject.
// User tokens carry the role assigned upstream: "<role>:<id>".
func (s *ServiceImpl) resolveActor(actor string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "api_key:") {
		// API keys act with system scope for machine integrations.
		raw := strings.TrimPrefix(actor, "api_key:")
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		idStr := id.String()
		return actor, "role:system", "api_key", &idStr, nil
	}
	for _, role := range []string{RoleAdmin, RoleEncoder, RoleViewer} {
		prefix := role + ":"
		if !strings.HasPrefix(actor, prefix) {
			continue
		}
		raw := strings.TrimPrefix(actor, prefix)
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		idStr := id.String()
		// The subject stays role-independent so a role change upstream
		// replaces the stale grouping instead of accumulating grants.
		subject := fmt.Sprintf("user:%s", idStr)
		return subject, fmt.Sprintf("role:%s", role), "user", &idStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"org_id":  orgID,
		"subject": actorSubject(actorType, actorID),
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, &parsedOrgID, actorType, actorID, "authorization.granted", "authorization", &targetID, map[string]any{
		"object":  object,
		"action":  action,
		"actor":   actorType,
		"org_id":  orgID,
		"subject": actorSubject(actorType, actorID),
	})
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("user:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

// shouldAuditGrant marks the actions sensitive enough to log on success too.
func shouldAuditGrant(action string) bool {
	switch action {
	case ActionReceiptUpdateStatus, ActionReferenceManage:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Viewer permissions (read-only)
		{"role:viewer", ObjectReceipt, ActionReceiptView},
		{"role:viewer", ObjectReceipt, ActionReceiptExport},
		{"role:viewer", ObjectReference, ActionReferenceView},

		// Encoder permissions
		{"role:encoder", ObjectReceipt, ActionReceiptView},
		{"role:encoder", ObjectReceipt, ActionReceiptExport},
		{"role:encoder", ObjectReceipt, ActionReceiptCreate},
		{"role:encoder", ObjectReceipt, ActionReceiptDispatch},
		{"role:encoder", ObjectReference, ActionReferenceView},

		// Admin permissions
		{"role:admin", ObjectReceipt, ActionReceiptView},
		{"role:admin", ObjectReceipt, ActionReceiptExport},
		{"role:admin", ObjectReceipt, ActionReceiptCreate},
		{"role:admin", ObjectReceipt, ActionReceiptDispatch},
		{"role:admin", ObjectReceipt, ActionReceiptUpdateStatus},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectReference, ActionReferenceView},
		{"role:admin", ObjectReference, ActionReferenceManage},

		// System permissions (for automated processes and API keys)
		{"role:system", ObjectReceipt, ActionReceiptView},
		{"role:system", ObjectReceipt, ActionReceiptExport},
		{"role:system", ObjectReceipt, ActionReceiptCreate},
		{"role:system", ObjectReceipt, ActionReceiptDispatch},
		{"role:system", ObjectReceipt, ActionReceiptUpdateStatus},
		{"role:system", ObjectAuditLog, ActionAuditLogView},
		{"role:system", ObjectReference, ActionReferenceView},
		{"role:system", ObjectReference, ActionReferenceManage},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/resibo-ph/resibo/internal/config"
	"github.com/resibo-ph/resibo/internal/receipt/format"
	referencedomain "github.com/resibo-ph/resibo/internal/reference/domain"
	"gorm.io/gorm"
)

const defaultOrgName = "Main Office"

// Starter purposes for a fresh install. Reference data is read-only
// through the API, so the seed is its only source.
var defaultCategories = []string{
	"Tuition",
	"Permit Fees",
	"Rent",
	"Donation",
	"Miscellaneous",
}

// EnsureDefaults seeds the reference data a deployment needs before the
// first receipt can be issued: one organization, a starter category set
// and a default numbering template. Safe to run on every startup.
func EnsureDefaults(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureOrganizationTx(ctx, tx, node, cfg.DefaultOrgID)
		if err != nil {
			return err
		}
		if err := ensureCategoriesTx(ctx, tx, node, org.ID); err != nil {
			return err
		}
		return ensureTemplateTx(ctx, tx, node, org.ID)
	})
}

func ensureOrganizationTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, wantID int64) (referencedomain.Organization, error) {
	var org referencedomain.Organization

	query := tx.WithContext(ctx)
	if wantID != 0 {
		query = query.Where("id = ?", wantID)
	} else {
		query = query.Where("slug = ?", slug.Make(defaultOrgName))
	}
	err := query.First(&org).Error
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}

	id := node.Generate()
	if wantID != 0 {
		id = snowflake.ID(wantID)
	}
	org = referencedomain.Organization{
		ID:        id,
		Name:      defaultOrgName,
		Slug:      slug.Make(defaultOrgName),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, nil
}

func ensureCategoriesTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) error {
	for _, name := range defaultCategories {
		var category referencedomain.Category
		err := tx.WithContext(ctx).
			Where("org_id = ? AND name = ?", orgID, name).
			First(&category).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		category = referencedomain.Category{
			ID:        node.Generate(),
			OrgID:     orgID,
			Name:      name,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.WithContext(ctx).Create(&category).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureTemplateTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID) error {
	var template referencedomain.Template
	err := tx.WithContext(ctx).
		Where("org_id = ? AND is_default = ?", orgID, true).
		First(&template).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	template = referencedomain.Template{
		ID:           node.Generate(),
		OrgID:        orgID,
		Name:         "Default Receipt",
		NumberFormat: format.DefaultReceiptNumberTemplate,
		FooterText:   "This receipt is generated electronically and is valid without a signature.",
		IsDefault:    true,
		CreatedAt:    time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&template).Error
}

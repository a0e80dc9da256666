package reference

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/resibo-ph/resibo/internal/reference/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) GetOrganization(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, name, slug, address, contact_email, created_at
		 FROM organizations WHERE id = ?`, id).
		Scan(&org).Error
	if err != nil {
		return nil, err
	}
	if org.ID == 0 {
		return nil, nil
	}
	return &org, nil
}

func (r *repository) ListCategories(ctx context.Context, orgID snowflake.ID) ([]domain.Category, error) {
	var categories []domain.Category
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, org_id, name, is_active, created_at
		 FROM categories WHERE org_id = ? AND is_active = true ORDER BY name`, orgID).
		Scan(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *repository) FindCategory(ctx context.Context, orgID, id snowflake.ID) (*domain.Category, error) {
	var category domain.Category
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, org_id, name, is_active, created_at
		 FROM categories WHERE org_id = ? AND id = ?`, orgID, id).
		Scan(&category).Error
	if err != nil {
		return nil, err
	}
	if category.ID == 0 {
		return nil, nil
	}
	return &category, nil
}

func (r *repository) ListTemplates(ctx context.Context, orgID snowflake.ID) ([]domain.Template, error) {
	var templates []domain.Template
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, org_id, name, number_format, header_text, footer_text, is_default, created_at
		 FROM templates WHERE org_id = ? ORDER BY name`, orgID).
		Scan(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *repository) FindTemplate(ctx context.Context, orgID, id snowflake.ID) (*domain.Template, error) {
	var template domain.Template
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, org_id, name, number_format, header_text, footer_text, is_default, created_at
		 FROM templates WHERE org_id = ? AND id = ?`, orgID, id).
		Scan(&template).Error
	if err != nil {
		return nil, err
	}
	if template.ID == 0 {
		return nil, nil
	}
	return &template, nil
}

func (r *repository) DefaultTemplate(ctx context.Context, orgID snowflake.ID) (*domain.Template, error) {
	var template domain.Template
	err := r.db.WithContext(ctx).
		Raw(`SELECT id, org_id, name, number_format, header_text, footer_text, is_default, created_at
		 FROM templates WHERE org_id = ? AND is_default = true ORDER BY created_at LIMIT 1`, orgID).
		Scan(&template).Error
	if err != nil {
		return nil, err
	}
	if template.ID == 0 {
		return nil, nil
	}
	return &template, nil
}

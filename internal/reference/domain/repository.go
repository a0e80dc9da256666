package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	GetOrganization(ctx context.Context, id snowflake.ID) (*Organization, error)
	ListCategories(ctx context.Context, orgID snowflake.ID) ([]Category, error)
	FindCategory(ctx context.Context, orgID, id snowflake.ID) (*Category, error)
	ListTemplates(ctx context.Context, orgID snowflake.ID) ([]Template, error)
	FindTemplate(ctx context.Context, orgID, id snowflake.ID) (*Template, error)
	DefaultTemplate(ctx context.Context, orgID snowflake.ID) (*Template, error)
}

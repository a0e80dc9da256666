package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Organization is the issuing body printed on every receipt. Deployments
// normally run with a single seeded organization.
type Organization struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	Slug         string       `json:"slug" gorm:"type:text;not null;uniqueIndex:ux_organizations_slug"`
	Address      string       `json:"address,omitempty" gorm:"type:text"`
	ContactEmail string       `json:"contact_email,omitempty" gorm:"type:text"`
	CreatedAt    time.Time    `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Organization) TableName() string { return "organizations" }

// Category classifies what a payment was for (tuition, permit, rent, ...).
// Receipts must reference an active category at issue time.
type Category struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID     snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	IsActive  bool         `json:"is_active,omitempty" gorm:"not null;default:true"`
	CreatedAt time.Time    `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Category) TableName() string { return "categories" }

// Template carries the receipt-number format plus the header and footer
// text rendered on printed output.
type Template struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	OrgID        snowflake.ID `json:"organization_id" gorm:"column:org_id;not null;index"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	NumberFormat string       `json:"number_format" gorm:"column:number_format;type:text;not null"`
	HeaderText   string       `json:"header_text,omitempty" gorm:"column:header_text;type:text"`
	FooterText   string       `json:"footer_text,omitempty" gorm:"column:footer_text;type:text"`
	IsDefault    bool         `json:"is_default,omitempty" gorm:"not null;default:false"`
	CreatedAt    time.Time    `json:"created_at,omitempty" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Template) TableName() string { return "templates" }

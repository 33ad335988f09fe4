// Package domain defines the persistence models for reflection reports and
// the rows they are generated from. These types are mapped with GORM and form
// the core data layer of the report service.
package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Report generation kinds.
const (
	ReportKindOnDemand  = "on_demand"
	ReportKindScheduled = "scheduled"
)

// Report is a generated reflection report. Reports are append-only from the
// generator's point of view; users may soft-delete them, and soft-deleted rows
// still count toward the weekly quota.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - UserID: report owner; indexed together with Kind/CreatedAt for quota counts.
//   - Kind: "on_demand" or "scheduled".
//   - CategoriesSnapshot: JSON array of the category IDs the report covers.
//   - Title / HTML / TextVersion: rendered content.
//   - Model / PromptVersion / TokensUsed: generation provenance.
//   - CreatedAt: creation instant (UTC).
//   - DeletedAt: soft deletion marker.
type Report struct {
	ID                 string         `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID             string         `json:"user_id"             gorm:"type:varchar(64);not null;index:idx_user_kind_created,priority:1"`
	Kind               string         `json:"kind"                gorm:"type:varchar(16);not null;index:idx_user_kind_created,priority:2;check:kind IN ('on_demand','scheduled')"`
	CategoriesSnapshot datatypes.JSON `json:"categories_snapshot" gorm:"not null"`
	Title              string         `json:"title"               gorm:"type:varchar(255);not null"`
	HTML               string         `json:"html"                gorm:"type:text;not null"`
	TextVersion        string         `json:"text_version"        gorm:"type:text;not null"`
	Model              string         `json:"model"               gorm:"type:varchar(128)"`
	PromptVersion      string         `json:"prompt_version"      gorm:"type:varchar(16)"`
	TokensUsed         int            `json:"tokens_used"`
	CreatedAt          time.Time      `json:"created_at"          gorm:"index:idx_user_kind_created,priority:3"`
	DeletedAt          gorm.DeletedAt `json:"-"                   gorm:"index"`
}

// TableName returns the database table name for Report.
func (Report) TableName() string { return "reports" }

// Category groups a user's notes. Only active categories may be reported on.
type Category struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_categories"`
	Name      string         `json:"name"       gorm:"type:varchar(128);not null"`
	Active    bool           `json:"active"     gorm:"not null;default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Category.
func (Category) TableName() string { return "categories" }

// Note is a single reflection entry. Notes are cascade-deleted with their
// category.
type Note struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_notes,priority:1"`
	CategoryID string         `json:"category_id" gorm:"type:char(36);not null;index"`
	Content    string         `json:"content"     gorm:"type:text;not null"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"index:idx_user_notes,priority:2"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`

	Category Category `json:"-" gorm:"foreignKey:CategoryID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Note.
func (Note) TableName() string { return "notes" }

// Profile carries per-user settings the report pipeline needs.
type Profile struct {
	UserID    string    `json:"user_id"  gorm:"type:varchar(64);primaryKey"`
	Timezone  string    `json:"timezone" gorm:"type:varchar(64);not null;default:'UTC'"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "profiles" }

// AuthContext is what the report pipeline may act on for one user: the
// timezone quota weeks are computed in and the IDs of categories the user
// owns and has active.
type AuthContext struct {
	Timezone    string
	CategoryIDs []string
}

package settings

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Template struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name        string         `gorm:"column:name;not null;uniqueIndex:idx_templates_creator_type_name"`
	Type        string         `gorm:"column:type;not null;uniqueIndex:idx_templates_creator_type_name;index:idx_templates_lookup"`
	Level       string         `gorm:"column:level;not null;index:idx_templates_lookup"`
	CreatedByID uuid.UUID      `gorm:"type:uuid;column:created_by_id;not null;uniqueIndex:idx_templates_creator_type_name"`
	TargetRole  string         `gorm:"column:target_role"`
	Config      map[string]any `gorm:"column:config;type:jsonb;serializer:json"`
	Priority    int            `gorm:"column:priority;not null"`
	IsActive    bool           `gorm:"column:is_active;not null"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
}

func (Template) TableName() string {
	return "settings_templates"
}

func (t *Template) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Settings is a per-user document for one category; a nil UserID marks the global document.
type Settings struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Category  string         `gorm:"column:category;not null;index:idx_settings_category_user"`
	UserID    *uuid.UUID     `gorm:"type:uuid;column:user_id;index:idx_settings_category_user"`
	Data      map[string]any `gorm:"column:data;type:jsonb;serializer:json"`
	CreatedAt time.Time      `gorm:"column:created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at"`
}

func (Settings) TableName() string {
	return "settings"
}

func (s *Settings) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

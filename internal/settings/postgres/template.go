package postgres

import (
	"context"
	"errors"

	settingsDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/settings"
	"github.com/frahmantamala/crm-backend/internal/settings"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) settings.TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) first(q *gorm.DB) (*settingsDatamodel.Template, error) {
	var row settingsDatamodel.Template
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Top picks the active template that wins for q.
func (r *TemplateRepository) Top(ctx context.Context, q settings.TemplateQuery) (*settingsDatamodel.Template, error) {
	query := r.db.WithContext(ctx).
		Where("is_active = ? AND type = ? AND level = ?", true, string(q.Type), string(q.Level)).
		Where("(target_role IS NULL OR target_role = '' OR target_role = ?)", q.TargetRole)
	if q.CreatedByID != nil {
		query = query.Where("created_by_id = ?", *q.CreatedByID)
	}
	query = query.Order("priority DESC").Order("updated_at DESC").Order("id DESC").Limit(1)
	return r.first(query)
}

func (r *TemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*settingsDatamodel.Template, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *TemplateRepository) GetByAuthorTypeName(ctx context.Context, authorID uuid.UUID, t settings.Type, name string) (*settingsDatamodel.Template, error) {
	return r.first(r.db.WithContext(ctx).
		Where("created_by_id = ? AND type = ? AND name = ?", authorID, string(t), name))
}

func (r *TemplateRepository) List(ctx context.Context, filter settings.TemplateFilter) ([]*settingsDatamodel.Template, error) {
	q := r.db.WithContext(ctx).Order("type ASC").Order("priority DESC").Order("name ASC")
	if filter.Type != "" {
		q = q.Where("type = ?", string(filter.Type))
	}
	switch {
	case filter.AuthorID != nil && filter.IncludeSystem:
		q = q.Where("(created_by_id = ? OR level = ?)", *filter.AuthorID, string(settings.LevelSystem))
	case filter.AuthorID != nil:
		q = q.Where("created_by_id = ?", *filter.AuthorID)
	case filter.IncludeSystem:
		q = q.Where("level = ?", string(settings.LevelSystem))
	}

	rows := []*settingsDatamodel.Template{}
	err := q.Find(&rows).Error
	return rows, err
}

func (r *TemplateRepository) Create(ctx context.Context, t *settingsDatamodel.Template) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TemplateRepository) Save(ctx context.Context, t *settingsDatamodel.Template) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *TemplateRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&settingsDatamodel.Template{}).Error
}

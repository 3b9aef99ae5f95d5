package postgres

import (
	"context"
	"errors"
	"time"

	settingsDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/settings"
	"github.com/frahmantamala/crm-backend/internal/settings"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) settings.DocumentRepository {
	return &DocumentRepository{db: db}
}

func scoped(db *gorm.DB, category string, userID *uuid.UUID) *gorm.DB {
	q := db.Where("category = ?", category)
	if userID == nil {
		return q.Where("user_id IS NULL")
	}
	return q.Where("user_id = ?", *userID)
}

func (r *DocumentRepository) Get(ctx context.Context, category settings.Type, userID *uuid.UUID) (*settingsDatamodel.Settings, error) {
	var row settingsDatamodel.Settings
	err := scoped(r.db.WithContext(ctx), string(category), userID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// Upsert replaces the stored data wholesale. doc is filled with the stored id and timestamps.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *settingsDatamodel.Settings) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing settingsDatamodel.Settings
		err := scoped(tx, doc.Category, doc.UserID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(doc).Error
		case err != nil:
			return err
		}

		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
		doc.UpdatedAt = time.Now()
		return tx.Save(doc).Error
	})
}

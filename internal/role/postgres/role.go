package postgres

import (
	"context"
	"errors"

	roleDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/role"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RoleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) role.RepositoryAPI {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) GetByID(ctx context.Context, id uuid.UUID) (*roleDatamodel.Role, error) {
	var row roleDatamodel.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) GetByTenantAndName(ctx context.Context, tenantID *uuid.UUID, name string) (*roleDatamodel.Role, error) {
	q := r.db.WithContext(ctx).Where("name = ?", name)
	if tenantID == nil {
		q = q.Where("tenant_id IS NULL")
	} else {
		q = q.Where("tenant_id = ?", *tenantID)
	}

	var row roleDatamodel.Role
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *RoleRepository) List(ctx context.Context, tenantID *uuid.UUID) ([]*roleDatamodel.Role, error) {
	q := r.db.WithContext(ctx).Order("is_system_role DESC").Order("name ASC")
	if tenantID != nil {
		q = q.Where("is_system_role = ? OR tenant_id = ?", true, *tenantID)
	}

	var rows []*roleDatamodel.Role
	err := q.Find(&rows).Error
	return rows, err
}

func (r *RoleRepository) Create(ctx context.Context, row *roleDatamodel.Role) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *RoleRepository) Update(ctx context.Context, row *roleDatamodel.Role) error {
	return r.db.WithContext(ctx).Save(row).Error
}

func (r *RoleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ? AND is_system_role = ?", id, false).
		Delete(&roleDatamodel.Role{}).Error
}

package postgres

import (
	"context"
	"errors"

	userDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/user"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) user.RepositoryAPI {
	return &UserRepository{db: db}
}

func (r *UserRepository) first(ctx context.Context, query string, args ...interface{}) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*userDatamodel.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (*userDatamodel.User, error) {
	return r.first(ctx, "google_id = ?", googleID)
}

// List translates a visibility scope into a query, newest first.
func (r *UserRepository) List(ctx context.Context, scope user.Scope) ([]*userDatamodel.User, error) {
	users := []*userDatamodel.User{}
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")

	switch scope.Kind {
	case user.ScopeAll:
	case user.ScopeIDs:
		if len(scope.IDs) == 0 {
			return users, nil
		}
		q = q.Where("id IN ?", scope.IDs)
	case user.ScopeTenant:
		q = q.Where("tenant_id = ?", scope.TenantID)
		if scope.HideProtected {
			q = q.Where("(is_super_admin_managed = ? OR id = ?)", false, scope.Self)
		}
	default:
		return users, nil
	}

	err := q.Find(&users).Error
	return users, err
}

func (r *UserRepository) Create(ctx context.Context, u *userDatamodel.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) Save(ctx context.Context, u *userDatamodel.User) error {
	return r.db.WithContext(ctx).Save(u).Error
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&userDatamodel.User{}).Error
}

package auth

import (
	"context"
	"log/slog"
	"net/http"

	apperrors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/frahmantamala/crm-backend/internal/transport"
)

type PermissionAuthorizer interface {
	Require(ctx context.Context, actor *role.Actor, resource permission.Resource, action permission.Action) error
}

// RBACAuthorization gates routes on a (resource, action) pair for the
// authenticated actor. Routes that also need a target check do it in the service.
type RBACAuthorization struct {
	*transport.BaseHandler
	authorizer PermissionAuthorizer
}

func NewRBACAuthorization(authorizer PermissionAuthorizer, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		authorizer:  authorizer,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, resource permission.Resource, action permission.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := role.ActorFromContext(r.Context())
		if actor == nil {
			ra.Logger.WarnContext(r.Context(), "authorization check failed: actor not found in context")
			ra.HandleError(w, r, apperrors.ErrUnauthenticated)
			return
		}

		if err := ra.authorizer.Require(r.Context(), actor, resource, action); err != nil {
			ra.Logger.WarnContext(r.Context(), "access denied",
				"user_id", actor.ID,
				"resource", resource,
				"action", action)
			ra.HandleError(w, r, err)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (ra *RBACAuthorization) Require(resource permission.Resource, action permission.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, resource, action)
	}
}

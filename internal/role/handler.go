package role

import (
	"context"
	"net/http"

	errors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/common/validation"
	"github.com/frahmantamala/crm-backend/internal/transport"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type ServiceAPI interface {
	ListRoles(ctx context.Context, actor Actor) ([]*Role, error)
	GetRole(ctx context.Context, actor Actor, id uuid.UUID) (*Role, error)
	CreateRole(ctx context.Context, actor Actor, dto CreateRoleDTO) (*Role, error)
	UpdateRole(ctx context.Context, actor Actor, id uuid.UUID, dto UpdateRoleDTO) (*Role, error)
	DeleteRole(ctx context.Context, actor Actor, id uuid.UUID) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if actor == nil {
		h.HandleError(w, r, errors.ErrUnauthenticated)
		return
	}

	roles, err := h.Service.ListRoles(r.Context(), *actor)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, RolesResponse{Roles: roles})
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if actor == nil {
		h.HandleError(w, r, errors.ErrUnauthenticated)
		return
	}
	id, err := validation.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	role, err := h.Service.GetRole(r.Context(), *actor, id)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if actor == nil {
		h.HandleError(w, r, errors.ErrUnauthenticated)
		return
	}

	var dto CreateRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	role, err := h.Service.CreateRole(r.Context(), *actor, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.Logger.Info("CreateRole: custom role created", "role_id", role.ID, "actor_id", actor.ID)
	h.WriteJSON(w, http.StatusCreated, role)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if actor == nil {
		h.HandleError(w, r, errors.ErrUnauthenticated)
		return
	}
	id, err := validation.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	var dto UpdateRoleDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	role, err := h.Service.UpdateRole(r.Context(), *actor, id, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	if actor == nil {
		h.HandleError(w, r, errors.ErrUnauthenticated)
		return
	}
	id, err := validation.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	if err := h.Service.DeleteRole(r.Context(), *actor, id); err != nil {
		h.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

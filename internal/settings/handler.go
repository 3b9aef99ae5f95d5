package settings

import (
	"context"
	"net/http"
	"strings"

	errors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/common/validation"
	"github.com/frahmantamala/crm-backend/internal/transport"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
)

type ServiceAPI interface {
	ListTemplates(ctx context.Context, actor *user.User, t Type) ([]*Template, error)
	CreateTemplate(ctx context.Context, actor *user.User, dto CreateTemplateDTO) (*Template, error)
	UpdateTemplate(ctx context.Context, actor *user.User, id uuid.UUID, dto UpdateTemplateDTO) (*Template, error)
	DeleteTemplate(ctx context.Context, actor *user.User, id uuid.UUID) error
	GetSettings(ctx context.Context, actor *user.User, category Type) (*Document, error)
	GetGlobalSettings(ctx context.Context, actor *user.User, category Type) (*Document, error)
	SaveSettings(ctx context.Context, actor *user.User, category Type, data map[string]any) (*Document, error)
	SaveGlobalSettings(ctx context.Context, actor *user.User, category Type, data map[string]any) (*Document, error)
	GetEffectiveConfig(ctx context.Context, actor *user.User, userID uuid.UUID, t Type) (*Effective, error)
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

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (*user.User, bool) {
	u, ok := user.FromContext(r.Context())
	if !ok {
		h.HandleError(w, r, errors.ErrUnauthenticated)
		return nil, false
	}
	return u, true
}

func categoryParam(r *http.Request, name string) Type {
	return Type(strings.ToLower(chi.URLParam(r, name)))
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	t := Type(strings.ToLower(r.URL.Query().Get("type")))
	templates, err := h.Service.ListTemplates(r.Context(), actor, t)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, TemplatesResponse{Templates: templates})
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var dto CreateTemplateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	tpl, err := h.Service.CreateTemplate(r.Context(), actor, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.Logger.Info("CreateTemplate: template created", "template_id", tpl.ID, "level", tpl.Level, "actor_id", actor.ID)
	h.WriteJSON(w, http.StatusCreated, tpl)
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := validation.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	var dto UpdateTemplateDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	tpl, err := h.Service.UpdateTemplate(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, tpl)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, err := validation.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	if err := h.Service.DeleteTemplate(r.Context(), actor, id); err != nil {
		h.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	doc, err := h.Service.GetSettings(r.Context(), actor, categoryParam(r, "category"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var dto SaveSettingsDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	doc, err := h.Service.SaveSettings(r.Context(), actor, categoryParam(r, "category"), dto.Data)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) GetGlobalSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	doc, err := h.Service.GetGlobalSettings(r.Context(), actor, categoryParam(r, "category"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) SaveGlobalSettings(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var dto SaveSettingsDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	doc, err := h.Service.SaveGlobalSettings(r.Context(), actor, categoryParam(r, "category"), dto.Data)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.Logger.Info("SaveGlobalSettings: global settings replaced", "category", doc.Category, "actor_id", actor.ID)
	h.WriteJSON(w, http.StatusOK, doc)
}

func (h *Handler) GetEffectiveConfig(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, err := validation.ParseID("userId", chi.URLParam(r, "userId"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	eff, err := h.Service.GetEffectiveConfig(r.Context(), actor, userID, categoryParam(r, "type"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, eff)
}

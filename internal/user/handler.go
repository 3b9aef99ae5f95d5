package user

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
	ListVisible(ctx context.Context, actor *User) ([]*User, error)
	ListManageable(ctx context.Context, actor *User) ([]*User, error)
	Get(ctx context.Context, actor *User, id uuid.UUID) (*User, error)
	Create(ctx context.Context, actor *User, dto CreateUserDTO) (*User, error)
	Update(ctx context.Context, actor *User, id uuid.UUID, dto UpdateUserDTO) (*User, error)
	Delete(ctx context.Context, actor *User, id uuid.UUID) error
	SetRestrictions(ctx context.Context, actor *User, id uuid.UUID, r Restrictions) (*User, error)
	ToggleStatus(ctx context.Context, actor *User, id uuid.UUID) (*User, error)
	UpdateAvatar(ctx context.Context, actor *User, id uuid.UUID, upload AvatarUpload) (*User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service       ServiceAPI
	maxAvatarSize int64
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, maxAvatarSize int64) *Handler {
	if maxAvatarSize <= 0 {
		maxAvatarSize = 2 << 20
	}
	return &Handler{
		BaseHandler:   baseHandler,
		Service:       service,
		maxAvatarSize: maxAvatarSize,
	}
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*User, bool) {
	u, ok := FromContext(r.Context())
	if !ok {
		h.HandleError(w, r, errors.ErrUnauthenticated)
		return nil, false
	}
	return u, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := validation.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.HandleError(w, r, err)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

// ListUsers returns visible users, or manageable ones with ?scope=manageable.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var users []*User
	var err error
	switch r.URL.Query().Get("scope") {
	case "", "visible":
		users, err = h.Service.ListVisible(r.Context(), actor)
	case "manageable":
		users, err = h.Service.ListManageable(r.Context(), actor)
	default:
		err = errors.NewValidationFieldError("scope", "scope must be one of: visible, manageable", errors.ErrCodeValidationFailed)
	}
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, UsersResponse{Users: users, Total: len(users)})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	u, err := h.Service.Get(r.Context(), actor, id)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var dto CreateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	u, err := h.Service.Create(r.Context(), actor, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var dto UpdateUserDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	u, err := h.Service.Update(r.Context(), actor, id, dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.Service.Delete(r.Context(), actor, id); err != nil {
		h.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetRestrictions(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var dto RestrictionsDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}
	restrictions, err := dto.ToRestrictions()
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	u, err := h.Service.SetRestrictions(r.Context(), actor, id, restrictions)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	u, err := h.Service.ToggleStatus(r.Context(), actor, id)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, StatusResponse{ID: u.ID.String(), IsActive: u.IsActive})
}

// UploadAvatar accepts a multipart form with the image in the "avatar" field.
func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatarSize+(64<<10))
	if err := r.ParseMultipartForm(h.maxAvatarSize); err != nil {
		h.HandleError(w, r, errors.NewValidationFieldError("avatar", "avatar upload is too large or malformed", errors.ErrCodeValidationFailed))
		return
	}
	file, header, err := r.FormFile("avatar")
	if err != nil {
		h.HandleError(w, r, errors.NewValidationFieldError("avatar", "avatar is required", errors.ErrCodeValidationFailed))
		return
	}
	defer file.Close()

	u, err := h.Service.UpdateAvatar(r.Context(), actor, id, AvatarUpload{
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, u)
}

package auth

import (
	"context"
	"net/http"
	"time"

	apperrors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/frahmantamala/crm-backend/internal/transport"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/frahmantamala/crm-backend/pkg/logger"
)

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO) (*LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResponse, error)
	Logout(ctx context.Context, accessToken string) error
	Authenticate(ctx context.Context, accessToken string) (*user.User, error)
	RequestOTP(ctx context.Context, dto RequestOTPDTO) (time.Duration, error)
	VerifyOTP(ctx context.Context, dto VerifyOTPDTO) (*LoginResponse, error)
	GoogleAuthURL(ctx context.Context) (string, error)
	GoogleCallback(ctx context.Context, code, state string) (*LoginResponse, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	resp, err := h.Service.Login(r.Context(), dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	resp, err := h.Service.Refresh(r.Context(), dto.RefreshToken)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.ExtractTokenFromHeader(r)
	if token == "" {
		h.HandleError(w, r, apperrors.ErrUnauthenticated)
		return
	}
	if err := h.Service.Logout(r.Context(), token); err != nil {
		h.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var dto RequestOTPDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	ttl, err := h.Service.RequestOTP(r.Context(), dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, OTPRequestedResponse{Status: "sent", ExpiresIn: int64(ttl.Seconds())})
}

func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var dto VerifyOTPDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.HandleError(w, r, err)
		return
	}

	resp, err := h.Service.VerifyOTP(r.Context(), dto)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// GoogleLogin answers with the consent URL. Browsers asking for HTML are redirected.
func (h *Handler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	url, err := h.Service.GoogleAuthURL(r.Context())
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, url, http.StatusFound)
		return
	}
	h.WriteJSON(w, http.StatusOK, AuthURLResponse{URL: url})
}

func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		h.HandleError(w, r, apperrors.ErrOAuthStateInvalid.WithDetails(map[string]string{"reason": reason}))
		return
	}

	resp, err := h.Service.GoogleCallback(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, resp)
}

// AuthMiddleware loads the bearer token's user and puts it, its actor and a
// per-request role cache on the context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.HandleError(w, r, apperrors.ErrUnauthenticated)
			return
		}

		u, err := h.Service.Authenticate(r.Context(), token)
		if err != nil {
			if appErr, ok := apperrors.IsAppError(err); !ok || appErr.Type != apperrors.ErrorTypeUnauthenticated {
				h.Logger.WarnContext(r.Context(), "auth middleware: authentication failed", "error", err)
				err = apperrors.ErrUnauthenticated
			}
			h.HandleError(w, r, err)
			return
		}

		ctx := user.ContextWithUser(r.Context(), u)
		ctx = role.ContextWithActor(ctx, u.Actor())
		ctx = role.WithLookupCache(ctx)
		ctx = apperrors.ContextWithUserID(ctx, u.ID.String())
		ctx = logger.With(ctx, "user_id", u.ID.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

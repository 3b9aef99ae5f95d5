package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	apperrors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/frahmantamala/crm-backend/internal/transport"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/frahmantamala/crm-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

type stubService struct {
	users map[string]*user.User
	err   error
}

func (s *stubService) Login(context.Context, LoginDTO) (*LoginResponse, error) { return nil, s.err }
func (s *stubService) Refresh(context.Context, string) (*LoginResponse, error) { return nil, s.err }
func (s *stubService) Logout(context.Context, string) error                    { return s.err }
func (s *stubService) RequestOTP(context.Context, RequestOTPDTO) (time.Duration, error) {
	return 5 * time.Minute, s.err
}
func (s *stubService) VerifyOTP(context.Context, VerifyOTPDTO) (*LoginResponse, error) {
	return nil, s.err
}
func (s *stubService) GoogleAuthURL(context.Context) (string, error) {
	return "https://accounts.example.com/o?state=abc", s.err
}
func (s *stubService) GoogleCallback(context.Context, string, string) (*LoginResponse, error) {
	return nil, s.err
}

func (s *stubService) Authenticate(_ context.Context, token string) (*user.User, error) {
	u, ok := s.users[token]
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	return u, nil
}

type denyAll struct{}

func (denyAll) Require(context.Context, *role.Actor, permission.Resource, permission.Action) error {
	return apperrors.ErrPermissionDenied
}

type allowAll struct{}

func (allowAll) Require(context.Context, *role.Actor, permission.Resource, permission.Action) error {
	return nil
}

var _ = ginkgo.Describe("Auth HTTP", func() {
	var (
		stub    *stubService
		handler *Handler
		admin   *user.User
	)

	ginkgo.BeforeEach(func() {
		admin = &user.User{ID: uuid.New(), Email: "admin@example.com", SystemRole: permission.RoleAdmin, IsActive: true}
		stub = &stubService{users: map[string]*user.User{"good": admin}}
		handler = NewHandler(transport.NewBaseHandler(logger.Discard()), stub)
	})

	ginkgo.Describe("AuthMiddleware", func() {
		var seen *user.User
		var actor *role.Actor

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = user.FromContext(r.Context())
			actor = role.ActorFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		})

		ginkgo.BeforeEach(func() {
			seen, actor = nil, nil
		})

		ginkgo.It("should put the user and actor on the context", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			req.Header.Set("Authorization", "Bearer good")
			rec := httptest.NewRecorder()

			handler.AuthMiddleware(next).ServeHTTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(seen.ID).To(gomega.Equal(admin.ID))
			gomega.Expect(actor.SystemRole).To(gomega.Equal(permission.RoleAdmin))
		})

		ginkgo.DescribeTable("should answer 401",
			func(header string) {
				req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
				if header != "" {
					req.Header.Set("Authorization", header)
				}
				rec := httptest.NewRecorder()

				handler.AuthMiddleware(next).ServeHTTP(rec, req)

				gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
				gomega.Expect(seen).To(gomega.BeNil())
			},
			ginkgo.Entry("without a header", ""),
			ginkgo.Entry("with a non-bearer scheme", "Basic Zm9vOmJhcg=="),
			ginkgo.Entry("with an unknown token", "Bearer bad"),
		)
	})

	ginkgo.Describe("RBACAuthorization", func() {
		ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

		serve := func(authz PermissionAuthorizer, withActor bool) int {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
			if withActor {
				req = req.WithContext(role.ContextWithActor(req.Context(), admin.Actor()))
			}
			rec := httptest.NewRecorder()
			NewRBACAuthorization(authz, logger.Discard()).
				Require(permission.ResourceUsers, permission.ActionView)(ok).ServeHTTP(rec, req)
			return rec.Code
		}

		ginkgo.It("should pass allowed actors through", func() {
			gomega.Expect(serve(allowAll{}, true)).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should answer 403 when the permission is missing", func() {
			gomega.Expect(serve(denyAll{}, true)).To(gomega.Equal(http.StatusForbidden))
		})

		ginkgo.It("should answer 401 without an actor", func() {
			gomega.Expect(serve(allowAll{}, false)).To(gomega.Equal(http.StatusUnauthorized))
		})
	})

	ginkgo.Describe("RequestOTP", func() {
		ginkgo.It("should answer 202 with the code lifetime", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/otp/request", strings.NewReader(`{"email":"a@example.com"}`))
			rec := httptest.NewRecorder()

			handler.RequestOTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusAccepted))
			var body OTPRequestedResponse
			gomega.Expect(json.NewDecoder(rec.Body).Decode(&body)).To(gomega.Succeed())
			gomega.Expect(body.ExpiresIn).To(gomega.Equal(int64(300)))
		})

		ginkgo.It("should reject unknown fields", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/otp/request", strings.NewReader(`{"mail":"a@example.com"}`))
			rec := httptest.NewRecorder()

			handler.RequestOTP(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Describe("GoogleLogin", func() {
		ginkgo.It("should redirect when asked to", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/login?redirect=true", nil)
			rec := httptest.NewRecorder()

			handler.GoogleLogin(rec, req)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusFound))
			gomega.Expect(rec.Header().Get("Location")).To(gomega.ContainSubstring("state=abc"))
		})
	})
})

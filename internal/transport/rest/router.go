package rest

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/crm-backend/internal/auth"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/frahmantamala/crm-backend/internal/settings"
	"github.com/frahmantamala/crm-backend/internal/transport/middleware"
	"github.com/frahmantamala/crm-backend/internal/transport/swagger"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

type Handlers struct {
	Health   *HealthHandler
	Auth     *auth.Handler
	RBAC     *auth.RBACAuthorization
	User     *user.Handler
	Role     *role.Handler
	Settings *settings.Handler
}

type Options struct {
	AllowedOrigins []string
	// OpenAPISpec is served at /openapi.yml.
	OpenAPISpec []byte
	// Validator, when set, checks requests against the OpenAPI document.
	Validator func(http.Handler) http.Handler
}

func RegisterAllRoutes(router chi.Router, h Handlers, opts Options, logger *slog.Logger) {
	router.Use(middleware.CORS(opts.AllowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.TraceID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	if opts.OpenAPISpec != nil {
		router.Get(swagger.SpecPath, swagger.Spec(opts.OpenAPISpec))
		router.Handle("/swagger/*", swagger.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health.Health)
		r.Get("/ping", h.Health.Ping)

		r.Group(func(r chi.Router) {
			if opts.Validator != nil {
				r.Use(opts.Validator)
			}

			r.Route("/auth", func(ar chi.Router) {
				ar.Post("/login", h.Auth.Login)
				ar.Post("/refresh", h.Auth.RefreshToken)
				ar.Post("/logout", h.Auth.Logout)
				ar.Post("/otp/request", h.Auth.RequestOTP)
				ar.Post("/otp/verify", h.Auth.VerifyOTP)
				ar.Get("/google", h.Auth.GoogleLogin)
				ar.Get("/google/callback", h.Auth.GoogleCallback)
			})

			r.Group(func(pr chi.Router) {
				pr.Use(h.Auth.AuthMiddleware)
				registerUserRoutes(pr, h)
				registerRoleRoutes(pr, h)
				registerSettingsRoutes(pr, h)
			})
		})
	})
}

func registerUserRoutes(r chi.Router, h Handlers) {
	r.Route("/users", func(ur chi.Router) {
		ur.Get("/me", h.User.GetCurrentUser)
		ur.Get("/", h.User.ListUsers)
		ur.Get("/{id}", h.User.GetUser)

		ur.With(h.RBAC.Require(permission.ResourceUsers, permission.ActionCreate)).Post("/", h.User.CreateUser)

		ur.Group(func(er chi.Router) {
			er.Use(h.RBAC.Require(permission.ResourceUsers, permission.ActionEdit))
			er.Put("/{id}", h.User.UpdateUser)
			er.Put("/{id}/restrictions", h.User.SetRestrictions)
			er.Patch("/{id}/status", h.User.ToggleStatus)
		})

		ur.With(h.RBAC.Require(permission.ResourceUsers, permission.ActionDelete)).Delete("/{id}", h.User.DeleteUser)

		// own avatar needs no permission; the service checks the rest
		ur.Post("/{id}/avatar", h.User.UploadAvatar)
	})
}

func registerRoleRoutes(r chi.Router, h Handlers) {
	r.Route("/roles", func(rr chi.Router) {
		rr.Get("/", h.Role.ListRoles)
		rr.Get("/{id}", h.Role.GetRole)
		rr.Post("/", h.Role.CreateRole)
		rr.Put("/{id}", h.Role.UpdateRole)
		rr.Delete("/{id}", h.Role.DeleteRole)
	})
}

func registerSettingsRoutes(r chi.Router, h Handlers) {
	r.Route("/settings", func(sr chi.Router) {
		sr.Route("/templates", func(tr chi.Router) {
			tr.Get("/", h.Settings.ListTemplates)
			tr.Post("/", h.Settings.CreateTemplate)
			tr.Put("/{id}", h.Settings.UpdateTemplate)
			tr.Delete("/{id}", h.Settings.DeleteTemplate)
		})
		sr.Get("/effective/{userId}/{type}", h.Settings.GetEffectiveConfig)
		sr.Get("/{category}", h.Settings.GetSettings)
		sr.Put("/{category}", h.Settings.SaveSettings)
		sr.Get("/{category}/global", h.Settings.GetGlobalSettings)
		sr.Put("/{category}/global", h.Settings.SaveGlobalSettings)
	})
}

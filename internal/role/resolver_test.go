package role_test

import (
	"context"
	"errors"

	apperrors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var allActions = []permission.Action{
	permission.ActionView,
	permission.ActionCreate,
	permission.ActionEdit,
	permission.ActionDelete,
	permission.ActionExport,
	permission.ActionAssign,
}

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		lookup   *CountingLookup
		resolver *role.Resolver
		custom   *role.Role
	)

	BeforeEach(func() {
		ctx = context.Background()
		tenant := uuid.New()
		custom = &role.Role{
			ID:       uuid.New(),
			Name:     "Sales Manager",
			TenantID: &tenant,
			Permissions: permission.Matrix{
				permission.ResourceLeads:   {permission.ActionView: true, permission.ActionExport: true, permission.ActionDelete: false},
				permission.ResourceReports: {permission.ActionView: true},
			},
		}
		lookup = &CountingLookup{roles: map[uuid.UUID]*role.Role{custom.ID: custom}}
		resolver = role.NewResolver(lookup, testLogger())
	})

	Describe("Classify", func() {
		It("prefers a custom role over Moderator and Guest", func() {
			id := uuid.New()
			c := role.Classify(role.Actor{SystemRole: permission.RoleModerator, CustomRoleID: &id})
			Expect(c.Kind).To(Equal(role.KindCustom))
			Expect(c.CustomRoleID).To(Equal(id))
		})

		It("keeps Admin above a custom role reference", func() {
			id := uuid.New()
			c := role.Classify(role.Actor{SystemRole: permission.RoleAdmin, CustomRoleID: &id})
			Expect(c.Kind).To(Equal(role.KindAdmin))
		})

		It("treats a nil uuid reference as no custom role", func() {
			nilID := uuid.Nil
			c := role.Classify(role.Actor{CustomRoleID: &nilID})
			Expect(c.Kind).To(Equal(role.KindNone))
		})

		It("classifies unknown system roles as none", func() {
			Expect(role.Classify(role.Actor{SystemRole: "Owner"}).Kind).To(Equal(role.KindNone))
		})
	})

	Describe("Authorize", func() {
		It("allows SuperAdmin everything", func() {
			actor := role.Actor{ID: uuid.New(), SystemRole: permission.RoleSuperAdmin}
			for _, res := range permission.Resources() {
				for _, act := range allActions {
					Expect(resolver.Authorize(ctx, actor, res, act).Allowed).To(BeTrue())
				}
			}
			Expect(lookup.Calls()).To(Equal(0))
		})

		It("allows Admin everything", func() {
			actor := role.Actor{ID: uuid.New(), SystemRole: permission.RoleAdmin}
			d := resolver.Authorize(ctx, actor, permission.ResourceSettings, permission.ActionDelete)
			Expect(d).To(Equal(role.Decision{Allowed: true, Reason: role.ReasonAdmin}))
		})

		It("answers exactly the stored boolean for custom roles", func() {
			actor := role.Actor{ID: uuid.New(), SystemRole: permission.RoleModerator, CustomRoleID: &custom.ID}
			for _, res := range permission.Resources() {
				for _, act := range allActions {
					d := resolver.Authorize(ctx, actor, res, act)
					Expect(d.Allowed).To(Equal(custom.Permissions.Allows(res, act)),
						"resource %s action %s", res, act)
				}
			}
		})

		It("does not fall back to Moderator rights when the custom role denies", func() {
			actor := role.Actor{ID: uuid.New(), SystemRole: permission.RoleModerator, CustomRoleID: &custom.ID}
			d := resolver.Authorize(ctx, actor, permission.ResourceCalls, permission.ActionView)
			Expect(d).To(Equal(role.Decision{Allowed: false, Reason: role.ReasonCustomRoleDeny}))
		})

		It("denies with role_not_found when the custom role is missing", func() {
			missing := uuid.New()
			actor := role.Actor{ID: uuid.New(), CustomRoleID: &missing}
			for _, res := range permission.Resources() {
				d := resolver.Authorize(ctx, actor, res, permission.ActionView)
				Expect(d).To(Equal(role.Decision{Allowed: false, Reason: role.ReasonRoleNotFound}))
			}
		})

		It("denies with role_lookup_failed when the store errors", func() {
			lookup.err = errStore
			actor := role.Actor{ID: uuid.New(), CustomRoleID: &custom.ID}
			d := resolver.Authorize(ctx, actor, permission.ResourceLeads, permission.ActionView)
			Expect(d).To(Equal(role.Decision{Allowed: false, Reason: role.ReasonRoleLookup}))
		})

		It("uses the Moderator allow-list", func() {
			actor := role.Actor{ID: uuid.New(), SystemRole: permission.RoleModerator}
			Expect(resolver.Authorize(ctx, actor, permission.ResourceLeads, permission.ActionEdit).Allowed).To(BeTrue())
			Expect(resolver.Authorize(ctx, actor, permission.ResourceCalls, permission.ActionCreate).Allowed).To(BeTrue())
			Expect(resolver.Authorize(ctx, actor, permission.ResourceCalls, permission.ActionEdit).Allowed).To(BeFalse())
			Expect(resolver.Authorize(ctx, actor, permission.ResourceUsers, permission.ActionView).Allowed).To(BeFalse())
			Expect(resolver.Authorize(ctx, actor, permission.ResourceLeads, permission.ActionDelete).Allowed).To(BeFalse())
		})

		It("never lets Guest do what Moderator cannot", func() {
			guest := role.Actor{ID: uuid.New(), SystemRole: permission.RoleGuest}
			moderator := role.Actor{ID: uuid.New(), SystemRole: permission.RoleModerator}
			for _, res := range permission.Resources() {
				for _, act := range allActions {
					if resolver.Authorize(ctx, guest, res, act).Allowed {
						Expect(resolver.Authorize(ctx, moderator, res, act).Allowed).To(BeTrue())
					}
				}
			}
			Expect(resolver.Authorize(ctx, guest, permission.ResourceLeads, permission.ActionCreate).Allowed).To(BeFalse())
		})

		It("denies actors without any role", func() {
			d := resolver.Authorize(ctx, role.Actor{ID: uuid.New()}, permission.ResourceDashboard, permission.ActionView)
			Expect(d).To(Equal(role.Decision{Allowed: false, Reason: role.ReasonNoRole}))
		})
	})

	Describe("Require", func() {
		It("reports Unauthenticated before evaluating anything", func() {
			err := resolver.Require(ctx, nil, permission.ResourceLeads, permission.ActionView)
			Expect(errors.Is(err, apperrors.ErrUnauthenticated)).To(BeTrue())
			Expect(lookup.Calls()).To(Equal(0))
		})

		It("returns PermissionDenied carrying the reason", func() {
			actor := &role.Actor{ID: uuid.New(), SystemRole: permission.RoleGuest}
			err := resolver.Require(ctx, actor, permission.ResourceUsers, permission.ActionDelete)
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())

			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details).To(HaveKeyWithValue("reason", role.ReasonStaticDeny))
		})

		It("returns nil on allow", func() {
			actor := &role.Actor{ID: uuid.New(), SystemRole: permission.RoleSuperAdmin}
			Expect(resolver.Require(ctx, actor, permission.ResourceUsers, permission.ActionDelete)).To(Succeed())
		})
	})

	Describe("per-request lookup cache", func() {
		It("hits the store once per role within one request", func() {
			reqCtx := role.WithLookupCache(ctx)
			actor := role.Actor{ID: uuid.New(), CustomRoleID: &custom.ID}
			for i := 0; i < 5; i++ {
				resolver.Authorize(reqCtx, actor, permission.ResourceLeads, permission.ActionView)
			}
			Expect(lookup.Calls()).To(Equal(1))
		})

		It("caches a missing role too", func() {
			reqCtx := role.WithLookupCache(ctx)
			missing := uuid.New()
			actor := role.Actor{ID: uuid.New(), CustomRoleID: &missing}
			resolver.Authorize(reqCtx, actor, permission.ResourceLeads, permission.ActionView)
			resolver.Authorize(reqCtx, actor, permission.ResourceCalls, permission.ActionView)
			Expect(lookup.Calls()).To(Equal(1))
		})

		It("does not share results across requests", func() {
			actor := role.Actor{ID: uuid.New(), CustomRoleID: &custom.ID}
			resolver.Authorize(role.WithLookupCache(ctx), actor, permission.ResourceLeads, permission.ActionView)

			custom.Permissions[permission.ResourceLeads][permission.ActionView] = false
			d := resolver.Authorize(role.WithLookupCache(ctx), actor, permission.ResourceLeads, permission.ActionView)
			Expect(d.Allowed).To(BeFalse())
			Expect(lookup.Calls()).To(Equal(2))
		})

		It("goes to the store every time without a cache", func() {
			actor := role.Actor{ID: uuid.New(), CustomRoleID: &custom.ID}
			resolver.Authorize(ctx, actor, permission.ResourceLeads, permission.ActionView)
			resolver.Authorize(ctx, actor, permission.ResourceLeads, permission.ActionView)
			Expect(lookup.Calls()).To(Equal(2))
		})

		It("does not cache store errors", func() {
			reqCtx := role.WithLookupCache(ctx)
			actor := role.Actor{ID: uuid.New(), CustomRoleID: &custom.ID}
			lookup.err = errStore
			Expect(resolver.Authorize(reqCtx, actor, permission.ResourceLeads, permission.ActionView).Allowed).To(BeFalse())
			lookup.err = nil
			Expect(resolver.Authorize(reqCtx, actor, permission.ResourceLeads, permission.ActionView).Allowed).To(BeTrue())
		})
	})

	Describe("actor context", func() {
		It("round-trips the actor", func() {
			a := role.Actor{ID: uuid.New(), SystemRole: permission.RoleGuest}
			got := role.ActorFromContext(role.ContextWithActor(ctx, a))
			Expect(got).NotTo(BeNil())
			Expect(*got).To(Equal(a))
			Expect(role.ActorFromContext(ctx)).To(BeNil())
		})
	})
})

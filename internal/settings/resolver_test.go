package settings_test

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/frahmantamala/crm-backend/internal"
	settingsDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/settings"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/settings"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Overlay", func() {
	It("replaces top-level keys wholesale, right-biased", func() {
		merged := settings.Overlay(
			map[string]any{"theme": "light", "layout": map[string]any{"cols": 2, "rows": 3}},
			nil,
			map[string]any{"layout": map[string]any{"cols": 4}},
		)
		Expect(merged).To(Equal(map[string]any{
			"theme":  "light",
			"layout": map[string]any{"cols": 4},
		}))
	})

	It("returns an empty map for no layers", func() {
		Expect(settings.Overlay()).To(BeEmpty())
	})

	It("does not modify its inputs", func() {
		base := map[string]any{"a": 1}
		settings.Overlay(base, map[string]any{"a": 2})
		Expect(base["a"]).To(Equal(1))
	})
})

var _ = Describe("Settings Resolver", func() {
	var (
		ctx       context.Context
		users     MapUsers
		templates *MockTemplates
		documents *MockDocuments
		resolver  *settings.Resolver
		super     *user.User
		admin     *user.User
		target    *user.User
	)

	template := func(level settings.Level, author uuid.UUID, priority int, cfg map[string]any) *settingsDatamodel.Template {
		return templates.Put(&settingsDatamodel.Template{
			Name:        string(level) + "-" + uuid.NewString()[:8],
			Type:        string(settings.TypeCalling),
			Level:       string(level),
			CreatedByID: author,
			Config:      cfg,
			Priority:    priority,
			IsActive:    true,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		users = MapUsers{}
		templates = NewMockTemplates()
		documents = NewMockDocuments()
		resolver = settings.NewResolver(users, templates, documents, testLogger())

		super = users.Add("root", permission.RoleSuperAdmin, nil)
		admin = users.Add("admin", permission.RoleAdmin, nil)
		admin.TenantID = ptr(admin.ID)
		target = users.Add("agent", permission.RoleGuest, admin.TenantID)
		target.ParentAdminID = ptr(admin.ID)
		target.CreatedByID = ptr(admin.ID)
	})

	It("overlays the user's document on the system template", func() {
		sys := template(settings.LevelSystem, super.ID, 0, map[string]any{"theme": "light", "pageSize": 10})
		documents.Put(settings.TypeCalling, &target.ID, map[string]any{"pageSize": 25})

		eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
		Expect(err).NotTo(HaveOccurred())
		Expect(eff.Config).To(Equal(map[string]any{"theme": "light", "pageSize": 25}))
		Expect(eff.Sources.System).To(Equal(&sys.ID))
		Expect(eff.Sources.Organization).To(BeNil())
		Expect(eff.Sources.Group).To(BeNil())
		Expect(eff.Sources.User).To(BeTrue())
	})

	It("applies system < organization < group < user", func() {
		manager := users.Add("lead", permission.RoleModerator, admin.TenantID)
		target.ManagerID = ptr(manager.ID)

		sys := template(settings.LevelSystem, super.ID, 0, map[string]any{"a": "system", "b": "system", "c": "system", "d": "system"})
		org := template(settings.LevelOrganization, admin.ID, 0, map[string]any{"b": "org", "c": "org", "d": "org"})
		grp := template(settings.LevelGroup, manager.ID, 0, map[string]any{"c": "group", "d": "group"})
		documents.Put(settings.TypeCalling, &target.ID, map[string]any{"d": "user"})

		eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
		Expect(err).NotTo(HaveOccurred())
		Expect(eff.Config).To(Equal(map[string]any{"a": "system", "b": "org", "c": "group", "d": "user"}))
		Expect(eff.Sources.System).To(Equal(&sys.ID))
		Expect(eff.Sources.Organization).To(Equal(&org.ID))
		Expect(eff.Sources.Group).To(Equal(&grp.ID))
	})

	It("ignores organization templates from other admins", func() {
		other := users.Add("other", permission.RoleAdmin, nil)
		template(settings.LevelOrganization, other.ID, 100, map[string]any{"x": 1})

		eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
		Expect(err).NotTo(HaveOccurred())
		Expect(eff.Config).To(BeEmpty())
		Expect(eff.Sources.Organization).To(BeNil())
		Expect(eff.Sources.User).To(BeFalse())
	})

	It("picks the highest priority and then the most recently updated template", func() {
		template(settings.LevelSystem, super.ID, 1, map[string]any{"pick": "low"})
		older := template(settings.LevelSystem, super.ID, 5, map[string]any{"pick": "older"})
		older.UpdatedAt = time.Now().Add(-time.Hour)
		templates.Put(older)
		newer := template(settings.LevelSystem, super.ID, 5, map[string]any{"pick": "newer"})

		eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
		Expect(err).NotTo(HaveOccurred())
		Expect(eff.Config["pick"]).To(Equal("newer"))
		Expect(eff.Sources.System).To(Equal(&newer.ID))
	})

	It("skips inactive templates and templates aimed at another role", func() {
		inactive := template(settings.LevelSystem, super.ID, 10, map[string]any{"pick": "inactive"})
		inactive.IsActive = false
		templates.Put(inactive)
		aimed := template(settings.LevelSystem, super.ID, 9, map[string]any{"pick": "admins"})
		aimed.TargetRole = string(permission.RoleAdmin)
		templates.Put(aimed)
		template(settings.LevelSystem, super.ID, 1, map[string]any{"pick": "everyone"})

		eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
		Expect(err).NotTo(HaveOccurred())
		Expect(eff.Config["pick"]).To(Equal("everyone"))
	})

	Describe("manager resolution", func() {
		It("treats a creator other than the parent admin as the manager", func() {
			creator := users.Add("creator", permission.RoleModerator, admin.TenantID)
			target.CreatedByID = ptr(creator.ID)
			grp := template(settings.LevelGroup, creator.ID, 0, map[string]any{"queue": "east"})

			eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Config["queue"]).To(Equal("east"))
			Expect(eff.Sources.Group).To(Equal(&grp.ID))
		})

		It("has no group layer when the parent admin created the user", func() {
			template(settings.LevelGroup, admin.ID, 0, map[string]any{"queue": "admin"})

			eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Sources.Group).To(BeNil())
			Expect(eff.Config).NotTo(HaveKey("queue"))
		})

		It("prefers the explicit manager over the creator", func() {
			creator := users.Add("creator", permission.RoleModerator, admin.TenantID)
			manager := users.Add("manager", permission.RoleModerator, admin.TenantID)
			target.CreatedByID = ptr(creator.ID)
			target.ManagerID = ptr(manager.ID)
			template(settings.LevelGroup, creator.ID, 0, map[string]any{"queue": "creator"})
			template(settings.LevelGroup, manager.ID, 0, map[string]any{"queue": "manager"})

			eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Config["queue"]).To(Equal("manager"))
		})
	})

	Describe("failures", func() {
		It("rejects an unknown type", func() {
			_, err := resolver.EffectiveConfig(ctx, target.ID, settings.Type("billing"))
			Expect(err).To(HaveOccurred())
			var appErr *apperrors.AppError
			Expect(errors.As(err, &appErr)).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("returns NotFound for a missing user", func() {
			_, err := resolver.EffectiveConfig(ctx, uuid.New(), settings.TypeCalling)
			Expect(errors.Is(err, apperrors.ErrUserNotFound)).To(BeTrue())
		})

		It("treats a failing template store as absent layers", func() {
			documents.Put(settings.TypeCalling, &target.ID, map[string]any{"pageSize": 25})
			templates.SetShouldFail(true, errors.New("connection reset"))

			eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Config).To(Equal(map[string]any{"pageSize": 25}))
			Expect(eff.Sources.System).To(BeNil())
		})

		It("treats a failing document store as an absent layer", func() {
			template(settings.LevelSystem, super.ID, 0, map[string]any{"theme": "dark"})
			documents.SetShouldFail(true, errors.New("timeout"))

			eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Config).To(Equal(map[string]any{"theme": "dark"}))
			Expect(eff.Sources.User).To(BeFalse())
		})
	})

	Describe("api settings", func() {
		It("concatenates global and personal aiServices with origin tags", func() {
			documents.Put(settings.TypeAPI, nil, map[string]any{
				"aiServices": []any{map[string]any{"name": "shared-gpt"}},
				"twilio":     map[string]any{"sid": "global"},
				"smtp":       map[string]any{"host": "mail.global"},
			})
			documents.Put(settings.TypeAPI, &target.ID, map[string]any{
				"aiServices": []any{map[string]any{"name": "mine"}},
				"twilio":     map[string]any{"sid": "mine"},
			})

			eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeAPI)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Config["aiServices"]).To(Equal([]any{
				map[string]any{"name": "shared-gpt", "isInherited": true, "inheritedFrom": "SuperAdmin"},
				map[string]any{"name": "mine", "isInherited": false},
			}))
			Expect(eff.Config["twilio"]).To(Equal(map[string]any{"sid": "mine"}))
			Expect(eff.Config["smtp"]).To(Equal(map[string]any{"host": "mail.global"}))
			Expect(eff.Sources.Global).To(BeTrue())
			Expect(eff.Sources.User).To(BeTrue())
		})

		It("keeps inherited entries when the user has none", func() {
			documents.Put(settings.TypeAPI, nil, map[string]any{
				"aiServices": []any{map[string]any{"name": "shared"}},
			})

			eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeAPI)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Config["aiServices"]).To(HaveLen(1))
			Expect(eff.Sources.User).To(BeFalse())
		})

		It("does not use the global document for other types", func() {
			documents.Put(settings.TypeCalling, nil, map[string]any{"theme": "global"})

			eff, err := resolver.EffectiveConfig(ctx, target.ID, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Config).To(BeEmpty())
		})
	})
})

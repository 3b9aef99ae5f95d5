package settings_test

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/frahmantamala/crm-backend/internal/settings"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type noRoles struct{}

func (noRoles) GetByID(context.Context, uuid.UUID) (*role.Role, error) { return nil, nil }

var _ = Describe("Settings Service", func() {
	var (
		ctx       context.Context
		users     MapUsers
		templates *MockTemplates
		documents *MockDocuments
		service   *settings.Service
		super     *user.User
		admin     *user.User
		moderator *user.User
		guest     *user.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		users = MapUsers{}
		templates = NewMockTemplates()
		documents = NewMockDocuments()
		authz := role.NewResolver(noRoles{}, testLogger())
		service = settings.NewService(templates, documents, users, authz, events.Noop{}, testLogger())

		super = users.Add("root", permission.RoleSuperAdmin, nil)
		admin = users.Add("admin", permission.RoleAdmin, nil)
		admin.TenantID = ptr(admin.ID)
		moderator = users.Add("mod", permission.RoleModerator, admin.TenantID)
		guest = users.Add("guest", permission.RoleGuest, admin.TenantID)
		guest.ParentAdminID = ptr(admin.ID)
	})

	create := func(actor *user.User, name string, level settings.Level) (*settings.Template, error) {
		return service.CreateTemplate(ctx, actor, settings.CreateTemplateDTO{
			Name:   name,
			Type:   string(settings.TypeLeads),
			Level:  string(level),
			Config: map[string]any{"columns": 5},
		})
	}

	Describe("CreateTemplate", func() {
		It("lets an Admin author an organization template, active by default", func() {
			tpl, err := create(admin, "  Org defaults ", settings.LevelOrganization)
			Expect(err).NotTo(HaveOccurred())
			Expect(tpl.Name).To(Equal("Org defaults"))
			Expect(tpl.Type).To(Equal(settings.TypeLeads))
			Expect(tpl.Level).To(Equal(settings.LevelOrganization))
			Expect(tpl.Config).To(HaveKeyWithValue("columns", 5))
			Expect(tpl.CreatedByID).To(Equal(admin.ID))
			Expect(tpl.IsActive).To(BeTrue())
			Expect(templates.Count()).To(Equal(1))
		})

		DescribeTable("enforces who may author each level",
			func(actorName string, level settings.Level, allowed bool) {
				actors := map[string]*user.User{"super": super, "admin": admin, "moderator": moderator, "guest": guest}
				_, err := create(actors[actorName], "tpl", level)
				if allowed {
					Expect(err).NotTo(HaveOccurred())
				} else {
					Expect(errors.Is(err, apperrors.ErrInvalidLevelAuthor)).To(BeTrue())
				}
			},
			Entry("super at system", "super", settings.LevelSystem, true),
			Entry("admin at system", "admin", settings.LevelSystem, false),
			Entry("admin at organization", "admin", settings.LevelOrganization, true),
			Entry("super at organization", "super", settings.LevelOrganization, false),
			Entry("moderator at group", "moderator", settings.LevelGroup, true),
			Entry("guest at group", "guest", settings.LevelGroup, false),
			Entry("guest at user", "guest", settings.LevelUser, true),
		)

		It("rejects a duplicate name for the same author and type", func() {
			_, err := create(admin, "Defaults", settings.LevelOrganization)
			Expect(err).NotTo(HaveOccurred())

			_, err = create(admin, "Defaults", settings.LevelOrganization)
			Expect(errors.Is(err, apperrors.ErrDuplicateTemplateName)).To(BeTrue())
			var appErr *apperrors.AppError
			Expect(errors.As(err, &appErr)).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("allows the same name for a different author", func() {
			_, err := create(admin, "Defaults", settings.LevelGroup)
			Expect(err).NotTo(HaveOccurred())
			_, err = create(moderator, "Defaults", settings.LevelGroup)
			Expect(err).NotTo(HaveOccurred())
		})

		It("validates the payload", func() {
			_, err := service.CreateTemplate(ctx, admin, settings.CreateTemplateDTO{
				Name: "x", Type: "billing", Level: "organization", Priority: 5000,
			})
			var appErr *apperrors.AppError
			Expect(errors.As(err, &appErr)).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
			Expect(templates.Count()).To(BeZero())
		})
	})

	Describe("UpdateTemplate and DeleteTemplate", func() {
		var tpl *settings.Template

		BeforeEach(func() {
			var err error
			tpl, err = create(admin, "Defaults", settings.LevelOrganization)
			Expect(err).NotTo(HaveOccurred())
		})

		It("lets the author update", func() {
			updated, err := service.UpdateTemplate(ctx, admin, tpl.ID, settings.UpdateTemplateDTO{
				Priority: ptr(7),
				IsActive: ptr(false),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.Priority).To(Equal(7))
			Expect(updated.IsActive).To(BeFalse())
		})

		It("lets a SuperAdmin update anyone's template", func() {
			_, err := service.UpdateTemplate(ctx, super, tpl.ID, settings.UpdateTemplateDTO{Name: ptr("Renamed")})
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses other users", func() {
			_, err := service.UpdateTemplate(ctx, moderator, tpl.ID, settings.UpdateTemplateDTO{Priority: ptr(1)})
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())

			err = service.DeleteTemplate(ctx, moderator, tpl.ID)
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())
			Expect(templates.Count()).To(Equal(1))
		})

		It("rejects a rename onto an existing name", func() {
			_, err := create(admin, "Other", settings.LevelOrganization)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.UpdateTemplate(ctx, admin, tpl.ID, settings.UpdateTemplateDTO{Name: ptr("Other")})
			Expect(errors.Is(err, apperrors.ErrDuplicateTemplateName)).To(BeTrue())
		})

		It("deletes", func() {
			Expect(service.DeleteTemplate(ctx, admin, tpl.ID)).To(Succeed())
			Expect(templates.Count()).To(BeZero())
		})

		It("returns NotFound for an unknown id", func() {
			err := service.DeleteTemplate(ctx, admin, uuid.New())
			Expect(errors.Is(err, apperrors.ErrTemplateNotFound)).To(BeTrue())
		})
	})

	Describe("ListTemplates", func() {
		It("returns the actor's own templates and the system ones", func() {
			_, err := create(super, "System", settings.LevelSystem)
			Expect(err).NotTo(HaveOccurred())
			_, err = create(admin, "Mine", settings.LevelOrganization)
			Expect(err).NotTo(HaveOccurred())
			_, err = create(moderator, "Theirs", settings.LevelGroup)
			Expect(err).NotTo(HaveOccurred())

			list, err := service.ListTemplates(ctx, admin, "")
			Expect(err).NotTo(HaveOccurred())
			var names []string
			for _, t := range list {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("Mine", "System"))

			all, err := service.ListTemplates(ctx, super, settings.TypeLeads)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
		})
	})

	Describe("settings documents", func() {
		It("returns an empty document when nothing is stored", func() {
			doc, err := service.GetSettings(ctx, guest, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Data).To(BeEmpty())
			Expect(doc.UserID).To(Equal(&guest.ID))
		})

		It("replaces the whole document on save", func() {
			_, err := service.SaveSettings(ctx, guest, settings.TypeCalling, map[string]any{"a": 1, "b": 2})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.SaveSettings(ctx, guest, settings.TypeCalling, map[string]any{"b": 3})
			Expect(err).NotTo(HaveOccurred())

			doc, err := service.GetSettings(ctx, guest, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Data).To(Equal(map[string]any{"b": 3}))
		})

		It("keeps exactly one of two concurrent writes", func() {
			first := map[string]any{"writer": "first"}
			second := map[string]any{"writer": "second"}

			var wg sync.WaitGroup
			for _, data := range []map[string]any{first, second} {
				wg.Add(1)
				go func(d map[string]any) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := service.SaveSettings(ctx, guest, settings.TypeLeads, d)
					Expect(err).NotTo(HaveOccurred())
				}(data)
			}
			wg.Wait()

			doc, err := service.GetSettings(ctx, guest, settings.TypeLeads)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Data).To(Or(Equal(first), Equal(second)))
		})

		It("rejects an unknown category", func() {
			_, err := service.SaveSettings(ctx, guest, settings.Type("billing"), map[string]any{})
			var appErr *apperrors.AppError
			Expect(errors.As(err, &appErr)).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("only lets a SuperAdmin write the global document", func() {
			_, err := service.SaveGlobalSettings(ctx, admin, settings.TypeAPI, map[string]any{"aiServices": []any{}})
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())

			doc, err := service.SaveGlobalSettings(ctx, super, settings.TypeAPI, map[string]any{"aiServices": []any{}})
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.UserID).To(BeNil())
		})

		It("requires settings:view to read the global document", func() {
			_, err := service.SaveGlobalSettings(ctx, super, settings.TypeCalling, map[string]any{"dialer": "auto"})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.GetGlobalSettings(ctx, guest, settings.TypeCalling)
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())
			_, err = service.GetGlobalSettings(ctx, moderator, settings.TypeCalling)
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())

			doc, err := service.GetGlobalSettings(ctx, admin, settings.TypeCalling)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Data).To(HaveKeyWithValue("dialer", "auto"))
		})

		It("surfaces store failures as internal errors", func() {
			documents.SetShouldFail(true, errors.New("disk full"))
			_, err := service.SaveSettings(ctx, guest, settings.TypeCalling, map[string]any{"a": 1})
			var appErr *apperrors.AppError
			Expect(errors.As(err, &appErr)).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeInternal))
		})
	})

	Describe("GetEffectiveConfig", func() {
		BeforeEach(func() {
			_, err := create(admin, "Org", settings.LevelOrganization)
			Expect(err).NotTo(HaveOccurred())
		})

		It("lets anyone read their own configuration", func() {
			eff, err := service.GetEffectiveConfig(ctx, guest, guest.ID, settings.TypeLeads)
			Expect(err).NotTo(HaveOccurred())
			Expect(eff.Config).To(HaveKeyWithValue("columns", 5))
			Expect(eff.Sources.Organization).NotTo(BeNil())
		})

		It("requires settings:view to read someone else's", func() {
			_, err := service.GetEffectiveConfig(ctx, moderator, guest.ID, settings.TypeLeads)
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())
		})

		It("lets an Admin read users in the tenant", func() {
			_, err := service.GetEffectiveConfig(ctx, admin, guest.ID, settings.TypeLeads)
			Expect(err).NotTo(HaveOccurred())
		})

		It("hides users outside the actor's tenant", func() {
			stranger := users.Add("stranger", permission.RoleGuest, ptr(uuid.New()))
			_, err := service.GetEffectiveConfig(ctx, admin, stranger.ID, settings.TypeLeads)
			Expect(errors.Is(err, apperrors.ErrUserNotFound)).To(BeTrue())
		})

		It("returns Unauthenticated without an actor", func() {
			_, err := service.GetEffectiveConfig(ctx, nil, guest.ID, settings.TypeLeads)
			Expect(errors.Is(err, apperrors.ErrUnauthenticated)).To(BeTrue())
		})
	})
})

package user_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	apperrors "github.com/frahmantamala/crm-backend/internal"
	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	"github.com/frahmantamala/crm-backend/internal/user"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("User Service", func() {
	var (
		ctx     context.Context
		repo    *MockRepository
		roles   MapLookup
		blobs   *FakeBlobStore
		service *user.Service
		super   *user.User
		admin   *user.User
		member  *user.User
		managed *user.User
		closer  *role.Role
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = NewMockRepository()
		roles = MapLookup{}
		blobs = &FakeBlobStore{}
		resolver := role.NewResolver(roles, testLogger())
		service = user.NewService(repo, resolver, roles, FakeHasher{}, blobs, events.Noop{}, testLogger())

		super = repo.Put(newUser("root", permission.RoleSuperAdmin, nil), 0)
		admin = newUser("admin", permission.RoleAdmin, nil)
		admin.TenantID = ptr(admin.ID)
		repo.Put(admin, 0)
		member = repo.Put(newUser("member", permission.RoleGuest, admin.TenantID), 0)
		protected := newUser("planted", permission.RoleGuest, admin.TenantID)
		protected.IsSuperAdminManaged = true
		managed = repo.Put(protected, 0)

		closer = &role.Role{
			ID:       uuid.New(),
			Name:     "Closer",
			TenantID: admin.TenantID,
			Permissions: permission.Matrix{
				permission.ResourceUsers: {permission.ActionView: true, permission.ActionCreate: true, permission.ActionEdit: true},
			},
		}
		roles[closer.ID] = closer
	})

	Describe("ListVisible", func() {
		It("returns the tenant newest first without protected accounts for an Admin", func() {
			newest := repo.Put(newUser("newest", permission.RoleGuest, admin.TenantID), -1_000_000_000)
			users, err := service.ListVisible(ctx, admin)
			Expect(err).NotTo(HaveOccurred())

			var ids []uuid.UUID
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			Expect(ids).To(ConsistOf(admin.ID, member.ID, newest.ID))
			Expect(ids[0]).To(Equal(newest.ID))
		})

		It("requires users:view", func() {
			_, err := service.ListVisible(ctx, member)
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())
		})

		It("returns Unauthenticated without an actor", func() {
			_, err := service.ListVisible(ctx, nil)
			Expect(errors.Is(err, apperrors.ErrUnauthenticated)).To(BeTrue())
			_, err = service.ListManageable(ctx, nil)
			Expect(errors.Is(err, apperrors.ErrUnauthenticated)).To(BeTrue())
		})
	})

	Describe("Get", func() {
		It("lets anyone read themselves", func() {
			got, err := service.Get(ctx, member, member.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(member.ID))
		})

		It("hides users outside the visible scope", func() {
			_, err := service.Get(ctx, admin, managed.ID)
			Expect(errors.Is(err, apperrors.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("Create", func() {
		It("places an Admin's new user in the Admin's tenant", func() {
			u, err := service.Create(ctx, admin, user.CreateUserDTO{
				Email: "New.Hire@Example.com", Name: "New Hire", Password: "s3cretpass", SystemRole: "Moderator",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Email).To(Equal("new.hire@example.com"))
			Expect(*u.TenantID).To(Equal(admin.ID))
			Expect(*u.ParentAdminID).To(Equal(admin.ID))
			Expect(*u.CreatedByID).To(Equal(admin.ID))
			Expect(u.SystemRole).To(Equal(permission.RoleModerator))
			Expect(repo.Stored(u.ID).PasswordHash).To(Equal("hashed:s3cretpass"))
		})

		It("makes a new Admin the root of its own tenant", func() {
			u, err := service.Create(ctx, super, user.CreateUserDTO{
				Email: "owner@example.com", Name: "Owner", Password: "s3cretpass", SystemRole: "Admin",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(*u.TenantID).To(Equal(u.ID))
			Expect(u.ParentAdminID).To(BeNil())
		})

		It("does not let an Admin create Admins", func() {
			_, err := service.Create(ctx, admin, user.CreateUserDTO{
				Email: "owner@example.com", Name: "Owner", Password: "s3cretpass", SystemRole: "Admin",
			})
			Expect(errors.Is(err, apperrors.ErrInvalidRoleAssignment)).To(BeTrue())
		})

		It("records the custom-role creator as manager", func() {
			manager := repo.Put(newUser("manager", "", admin.TenantID), 0)
			manager.CustomRoleID = &closer.ID
			repo.Put(manager, 0)

			u, err := service.Create(ctx, manager, user.CreateUserDTO{
				Email: "rep@example.com", Name: "Sales Rep", Password: "s3cretpass",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(*u.ManagerID).To(Equal(manager.ID))
			Expect(*u.TenantID).To(Equal(admin.ID))
			Expect(u.SystemRole).To(Equal(permission.RoleGuest))
		})

		It("rejects a custom role from another tenant", func() {
			foreign := &role.Role{ID: uuid.New(), Name: "Foreign", TenantID: ptr(uuid.New())}
			roles[foreign.ID] = foreign
			_, err := service.Create(ctx, admin, user.CreateUserDTO{
				Email: "rep@example.com", Name: "Sales Rep", Password: "s3cretpass", CustomRoleID: ptr(foreign.ID.String()),
			})
			Expect(errors.Is(err, apperrors.ErrInvalidRoleAssignment)).To(BeTrue())
		})

		It("rejects both a system and a custom role", func() {
			_, err := service.Create(ctx, admin, user.CreateUserDTO{
				Email: "rep@example.com", Name: "Sales Rep", Password: "s3cretpass",
				SystemRole: "Guest", CustomRoleID: ptr(closer.ID.String()),
			})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
		})

		It("drops the protected flag for non-SuperAdmins", func() {
			u, err := service.Create(ctx, admin, user.CreateUserDTO{
				Email: "rep@example.com", Name: "Sales Rep", Password: "s3cretpass", IsSuperAdminManaged: ptr(true),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsSuperAdminManaged).To(BeFalse())
		})

		It("keeps the protected flag for SuperAdmin", func() {
			u, err := service.Create(ctx, super, user.CreateUserDTO{
				Email: "rep@example.com", Name: "Sales Rep", Password: "s3cretpass",
				TenantID: ptr(admin.ID.String()), IsSuperAdminManaged: ptr(true),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsSuperAdminManaged).To(BeTrue())
			Expect(*u.TenantID).To(Equal(admin.ID))
		})

		It("rejects duplicate emails", func() {
			_, err := service.Create(ctx, admin, user.CreateUserDTO{
				Email: member.Email, Name: "Copy", Password: "s3cretpass",
			})
			Expect(errors.Is(err, apperrors.ErrDuplicateEmail)).To(BeTrue())
		})

		It("requires users:create", func() {
			_, err := service.Create(ctx, member, user.CreateUserDTO{Email: "x@example.com", Name: "X", Password: "s3cretpass"})
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())
		})
	})

	Describe("mutations on protected users", func() {
		It("returns SuperAdminManaged to an Admin for every mutation", func() {
			_, err := service.Update(ctx, admin, managed.ID, user.UpdateUserDTO{Name: ptr("Renamed")})
			Expect(errors.Is(err, apperrors.ErrSuperAdminManaged)).To(BeTrue())

			_, err = service.SetRestrictions(ctx, admin, managed.ID, user.Restrictions{IsRestricted: true})
			Expect(errors.Is(err, apperrors.ErrSuperAdminManaged)).To(BeTrue())

			_, err = service.ToggleStatus(ctx, admin, managed.ID)
			Expect(errors.Is(err, apperrors.ErrSuperAdminManaged)).To(BeTrue())

			err = service.Delete(ctx, admin, managed.ID)
			Expect(errors.Is(err, apperrors.ErrSuperAdminManaged)).To(BeTrue())
			Expect(repo.Stored(managed.ID)).NotTo(BeNil())
		})

		It("lets SuperAdmin change them", func() {
			u, err := service.Update(ctx, super, managed.ID, user.UpdateUserDTO{Name: ptr("Renamed")})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Name).To(Equal("Renamed"))
			Expect(u.IsSuperAdminManaged).To(BeTrue())
		})
	})

	Describe("Update", func() {
		It("hides users of other tenants", func() {
			stranger := repo.Put(newUser("stranger", permission.RoleGuest, ptr(uuid.New())), 0)
			_, err := service.Update(ctx, admin, stranger.ID, user.UpdateUserDTO{Name: ptr("Renamed")})
			Expect(errors.Is(err, apperrors.ErrUserNotFound)).To(BeTrue())
		})

		It("switches a user to a tenant custom role", func() {
			u, err := service.Update(ctx, admin, member.ID, user.UpdateUserDTO{CustomRoleID: ptr(closer.ID.String())})
			Expect(err).NotTo(HaveOccurred())
			Expect(*u.CustomRoleID).To(Equal(closer.ID))
			Expect(string(u.SystemRole)).To(BeEmpty())
		})

		It("ignores an attempt to protect a user", func() {
			u, err := service.Update(ctx, admin, member.ID, user.UpdateUserDTO{IsSuperAdminManaged: ptr(true)})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsSuperAdminManaged).To(BeFalse())
			Expect(repo.Stored(member.ID).IsSuperAdminManaged).To(BeFalse())
		})

		It("does not let a custom-role manager change the tenant Admin's role", func() {
			lead := newUser("lead", "", admin.TenantID)
			lead.CustomRoleID = &closer.ID
			repo.Put(lead, 0)

			_, err := service.Update(ctx, lead, admin.ID, user.UpdateUserDTO{SystemRole: ptr("Guest")})
			Expect(errors.Is(err, apperrors.ErrInvalidRoleAssignment)).To(BeTrue())
			Expect(repo.Stored(admin.ID).SystemRole).To(Equal(permission.RoleAdmin))
		})

		It("does not let an Admin change its own role", func() {
			_, err := service.Update(ctx, admin, admin.ID, user.UpdateUserDTO{SystemRole: ptr("Guest")})
			Expect(errors.Is(err, apperrors.ErrInvalidRoleAssignment)).To(BeTrue())
		})

		It("roots a new tenant when SuperAdmin promotes a user to Admin", func() {
			u, err := service.Update(ctx, super, member.ID, user.UpdateUserDTO{SystemRole: ptr("Admin")})
			Expect(err).NotTo(HaveOccurred())
			Expect(*u.TenantID).To(Equal(member.ID))
			Expect(u.ParentAdminID).To(BeNil())
			Expect(user.VisibleUsers(u).Contains(u)).To(BeTrue())
			Expect(*repo.Stored(member.ID).TenantID).To(Equal(member.ID))
		})

		It("detaches a demoted Admin from the tenant it owned", func() {
			u, err := service.Update(ctx, super, admin.ID, user.UpdateUserDTO{SystemRole: ptr("Moderator")})
			Expect(err).NotTo(HaveOccurred())
			Expect(u.SystemRole).To(Equal(permission.RoleModerator))
			Expect(u.TenantID).To(BeNil())
			Expect(u.ParentAdminID).To(BeNil())
		})

		It("reports visible but unmanageable users as forbidden", func() {
			lead := newUser("lead", "", admin.TenantID)
			lead.CustomRoleID = &closer.ID
			lead.Restrictions = user.Restrictions{IsRestricted: true, CanViewUsers: []uuid.UUID{member.ID}}
			repo.Put(lead, 0)

			_, err := service.Update(ctx, lead, member.ID, user.UpdateUserDTO{Name: ptr("Renamed")})
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())
		})
	})

	Describe("SetRestrictions", func() {
		It("keeps the last of two concurrent writes", func() {
			first := user.Restrictions{IsRestricted: true, CanViewUsers: []uuid.UUID{admin.ID}}
			second := user.Restrictions{IsRestricted: true, CanManageUsers: []uuid.UUID{member.ID}}

			_, err := service.SetRestrictions(ctx, admin, member.ID, first)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.SetRestrictions(ctx, admin, member.ID, second)
			Expect(err).NotTo(HaveOccurred())

			stored := repo.Stored(member.ID).Restrictions
			Expect(stored.CanViewUsers).To(BeEmpty())
			Expect(stored.CanManageUsers).To(Equal([]uuid.UUID{member.ID}))
		})

		It("never leaves a mix of two racing documents", func() {
			docs := []user.Restrictions{
				{IsRestricted: true, CanViewUsers: []uuid.UUID{admin.ID}, CanManageUsers: []uuid.UUID{admin.ID}},
				{IsRestricted: false, CanViewUsers: []uuid.UUID{member.ID}, CanManageUsers: []uuid.UUID{member.ID}},
			}
			var wg sync.WaitGroup
			for _, d := range docs {
				wg.Add(1)
				go func(d user.Restrictions) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := service.SetRestrictions(ctx, admin, member.ID, d)
					Expect(err).NotTo(HaveOccurred())
				}(d)
			}
			wg.Wait()

			stored := repo.Stored(member.ID).Restrictions
			Expect(stored).To(SatisfyAny(Equal(docs[0]), Equal(docs[1])))
		})
	})

	Describe("ToggleStatus and Delete", func() {
		It("flips is_active", func() {
			u, err := service.ToggleStatus(ctx, admin, member.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsActive).To(BeFalse())
			u, err = service.ToggleStatus(ctx, admin, member.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsActive).To(BeTrue())
		})

		It("refuses self changes", func() {
			_, err := service.ToggleStatus(ctx, admin, admin.ID)
			Expect(errors.Is(err, apperrors.ErrPermissionDenied)).To(BeTrue())
			Expect(errors.Is(service.Delete(ctx, admin, admin.ID), apperrors.ErrPermissionDenied)).To(BeTrue())
		})

		It("deletes a manageable user", func() {
			Expect(service.Delete(ctx, admin, member.ID)).To(Succeed())
			Expect(repo.Stored(member.ID)).To(BeNil())
		})
	})

	Describe("UpdateAvatar", func() {
		upload := func(body string) user.AvatarUpload {
			return user.AvatarUpload{ContentType: "image/png", Size: int64(len(body)), Body: strings.NewReader(body)}
		}

		It("uploads and rotates history for the user themselves", func() {
			for i := 0; i < 6; i++ {
				_, err := service.UpdateAvatar(ctx, member, member.ID, upload("png-bytes"))
				Expect(err).NotTo(HaveOccurred())
			}
			stored := repo.Stored(member.ID)
			Expect(stored.AvatarURL).To(HavePrefix("https://cdn.example.com/avatars/" + member.ID.String()))
			Expect(stored.AvatarHistory).To(HaveLen(user.MaxAvatarHistory))
			Expect(stored.AvatarHistory[0]).To(Equal("https://cdn.example.com/" + blobs.keys[4]))
		})

		It("rejects unsupported content types", func() {
			_, err := service.UpdateAvatar(ctx, member, member.ID, user.AvatarUpload{
				ContentType: "application/pdf", Size: 3, Body: strings.NewReader("pdf"),
			})
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeValidation))
			Expect(blobs.keys).To(BeEmpty())
		})

		It("maps storage failures to an external error", func() {
			blobs.err = errors.New("s3 down")
			_, err := service.UpdateAvatar(ctx, member, member.ID, upload("png-bytes"))
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(apperrors.ErrCodeUploadFailed))
		})

		It("refuses a super-admin-managed user's own avatar change", func() {
			_, err := service.UpdateAvatar(ctx, managed, managed.ID, upload("png-bytes"))
			Expect(errors.Is(err, apperrors.ErrSuperAdminManaged)).To(BeTrue())
			Expect(blobs.keys).To(BeEmpty())
			Expect(repo.Stored(managed.ID).AvatarURL).To(BeEmpty())
		})

		It("requires manageability for someone else's avatar", func() {
			_, err := service.UpdateAvatar(ctx, admin, managed.ID, upload("png-bytes"))
			Expect(errors.Is(err, apperrors.ErrSuperAdminManaged)).To(BeTrue())
		})
	})
})

package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/frahmantamala/crm-backend/internal/auth"
	settingsDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/settings"
	userDatamodel "github.com/frahmantamala/crm-backend/internal/core/datamodel/user"
	"github.com/frahmantamala/crm-backend/internal/core/events"
	"github.com/frahmantamala/crm-backend/internal/permission"
	"github.com/frahmantamala/crm-backend/internal/role"
	rolepg "github.com/frahmantamala/crm-backend/internal/role/postgres"
	"github.com/frahmantamala/crm-backend/internal/settings"
	settingspg "github.com/frahmantamala/crm-backend/internal/settings/postgres"
	userpg "github.com/frahmantamala/crm-backend/internal/user/postgres"
	"github.com/frahmantamala/crm-backend/pkg/logger"
	"github.com/spf13/cobra"
)

var (
	seedAdminEmail    string
	seedAdminName     string
	seedAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed system roles, the super admin account and default settings templates",
	Long:  `Idempotently bootstrap the built-in roles, a SuperAdmin account and one system-level template per settings type.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		lg := logger.LoggerWrapper()

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := initGorm(sqlDB)
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		roleService := role.NewService(rolepg.NewRoleRepository(db), rolepg.NewUsageCounter(sqlDB), events.Noop{}, lg)
		created, err := roleService.SeedSystemRoles(ctx)
		if err != nil {
			log.Fatalf("failed to seed system roles: %v", err)
		}
		fmt.Printf("Seeded %d system roles\n", created)

		if seedAdminPassword == "" {
			seedAdminPassword = os.Getenv("SEED_ADMIN_PASSWORD")
		}
		if seedAdminPassword == "" {
			log.Fatal("a super admin password is required: pass --password or set SEED_ADMIN_PASSWORD")
		}
		email := strings.ToLower(strings.TrimSpace(seedAdminEmail))

		users := userpg.NewUserRepository(db)
		admin, err := users.GetByEmail(ctx, email)
		if err != nil {
			log.Fatalf("failed to lookup super admin: %v", err)
		}
		if admin != nil {
			fmt.Println("super admin already exists:", email)
		} else {
			hash, err := auth.NewBcryptHasher(cfg.Security.BCryptCost).Hash(seedAdminPassword)
			if err != nil {
				log.Fatalf("failed to hash password: %v", err)
			}
			admin = &userDatamodel.User{
				Email:        email,
				Name:         seedAdminName,
				PasswordHash: hash,
				SystemRole:   string(permission.RoleSuperAdmin),
				IsActive:     true,
			}
			if err := users.Create(ctx, admin); err != nil {
				log.Fatalf("failed to insert super admin: %v", err)
			}
			fmt.Println("Seeded super admin:", email)
		}

		templates := settingspg.NewTemplateRepository(db)
		for _, t := range settings.Types() {
			name := "Default " + string(t)
			existing, err := templates.GetByAuthorTypeName(ctx, admin.ID, t, name)
			if err != nil {
				log.Fatalf("failed to lookup template %s: %v", name, err)
			}
			if existing != nil {
				continue
			}

			row := &settingsDatamodel.Template{
				Name:        name,
				Type:        string(t),
				Level:       string(settings.LevelSystem),
				CreatedByID: admin.ID,
				Config:      defaultConfig(t),
				IsActive:    true,
			}
			if err := templates.Create(ctx, row); err != nil {
				log.Fatalf("failed to insert template %s: %v", name, err)
			}
			fmt.Printf("Seeded system template: %s\n", name)
		}

		fmt.Println("Seeding finished")
	},
}

func defaultConfig(t settings.Type) map[string]any {
	switch t {
	case settings.TypeCalling:
		return map[string]any{"recordCalls": false, "maxConcurrentCalls": 1, "voicemailEnabled": true}
	case settings.TypeAPI:
		return map[string]any{"rateLimitPerMinute": 60, "aiServices": []any{}}
	case settings.TypeLeads:
		return map[string]any{"autoAssign": false, "defaultStatus": "new"}
	case settings.TypeSystem:
		return map[string]any{"timezone": "UTC", "language": "en"}
	case settings.TypeUserManagement:
		return map[string]any{"allowSelfSignup": false, "passwordMinLength": 8}
	}
	return map[string]any{}
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "email", "superadmin@crm.local", "super admin email")
	seedCmd.Flags().StringVar(&seedAdminName, "name", "Super Admin", "super admin display name")
	seedCmd.Flags().StringVar(&seedAdminPassword, "password", "", "super admin password (falls back to SEED_ADMIN_PASSWORD)")
}

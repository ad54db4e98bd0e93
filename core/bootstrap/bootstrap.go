package bootstrap

import (
	"context"
	"fmt"

	"skote-admin/config"
	"skote-admin/core/auth"
	"skote-admin/core/store"
	"skote-admin/core/utils"
)

// SeedRoleNames returns the built-in roles in creation order. The reserved
// super admin role is always first.
func SeedRoleNames(cfg *config.AppConfig) []string {
	return []string{cfg.SuperAdminRole, "admin", "user"}
}

func EnsureRoles(ctx context.Context, roles store.RolesStore, cfg *config.AppConfig) error {
	for _, name := range SeedRoleNames(cfg) {
		if _, err := roles.Ensure(ctx, name); err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
	}
	return nil
}

// EnsureDefaultAdmin creates the super admin account on an empty users table.
func EnsureDefaultAdmin(ctx context.Context, users store.UsersStore, roles store.RolesStore, cfg *config.AppConfig, logger *utils.Logger) error {
	cnt, err := users.Count(ctx)
	if err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}
	role, err := roles.FindByName(ctx, cfg.SuperAdminRole)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("role %q missing", cfg.SuperAdminRole)
	}
	password := cfg.DefaultAdmin.Password
	generated := false
	if password == "" {
		password, err = utils.RandString(12)
		if err != nil {
			return err
		}
		generated = true
	}
	hash, err := auth.HashPassword(password, cfg.Accounts.BcryptCost)
	if err != nil {
		return err
	}
	u := &store.User{
		Name:         cfg.DefaultAdmin.Name,
		Email:        utils.NormalizeEmail(cfg.DefaultAdmin.Email),
		PasswordHash: hash,
		RoleID:       role.ID,
		Active:       true,
	}
	if _, err := users.Create(ctx, u); err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}
	if logger != nil {
		if generated {
			logger.Printf("default admin %s created with password %s", u.Email, password)
		} else {
			logger.Printf("default admin %s created", u.Email)
		}
	}
	return nil
}

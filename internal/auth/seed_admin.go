package auth

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/codeshop/codeshop-backend/internal/users"
	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db"
	"github.com/codeshop/codeshop-backend/pkg/enums"
	pkgerrors "github.com/codeshop/codeshop-backend/pkg/errors"
	"github.com/codeshop/codeshop-backend/pkg/security"
)

// SeedAdminRequest names the admin account to create or reset.
type SeedAdminRequest struct {
	Email       string
	DisplayName string
	Password    string
}

// SeedAdmin creates the admin account, or resets the password and role of an
// existing account with the same email. The bool reports whether it was created.
func SeedAdmin(ctx context.Context, client *db.Client, passwordCfg config.PasswordConfig, req SeedAdminRequest) (*users.UserDTO, bool, error) {
	if client == nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeInternal, "database client required")
	}
	email := users.NormalizeEmail(req.Email)
	if email == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if err := security.ValidatePassword(req.Password); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = "Admin"
	}

	passwordHash, err := security.HashPassword(req.Password, passwordCfg)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	var (
		result  *users.UserDTO
		created bool
	)
	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		userRepo := users.NewRepository(tx)

		existing, err := userRepo.FindByEmail(ctx, email)
		switch {
		case err == nil:
			if err := userRepo.UpdateCredentials(ctx, existing.ID, passwordHash, enums.UserRoleAdmin); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update user")
			}
			existing.Role = enums.UserRoleAdmin
			existing.IsActive = true
			result = users.FromModel(existing)
			return nil
		case !errors.Is(err, users.ErrNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check user email")
		}

		user, err := userRepo.Create(ctx, users.CreateUserDTO{
			Email:        email,
			PasswordHash: passwordHash,
			DisplayName:  displayName,
			Role:         enums.UserRoleAdmin,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
		}
		result = users.FromModel(user)
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

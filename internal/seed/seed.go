// Package seed bootstraps a default organization and admin account so a
// fresh self-hosted install is immediately usable.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/joblane/joblane/internal/auth/domain"
	"github.com/joblane/joblane/internal/auth/password"
	organizationdomain "github.com/joblane/joblane/internal/organization/domain"
	"gorm.io/gorm"
)

const (
	defaultOrgName       = "Main"
	defaultOrgSlug       = "main"
	defaultAdminEmail    = "admin@joblane.local"
	defaultAdminPassword = "admin"
	defaultAdminDisplay  = "Joblane Admin"
)

// EnsureDefaultOrgAndAdmin seeds the default organization with one admin
// member. Safe to run on every startup.
func EnsureDefaultOrgAndAdmin(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		org, err := ensureDefaultOrgTx(ctx, tx, node)
		if err != nil {
			return err
		}

		user, err := ensureAdminUserTx(ctx, tx, node)
		if err != nil {
			return err
		}

		now := time.Now().UTC()

		var admin organizationdomain.OrganizationAdmin
		err = tx.WithContext(ctx).
			Where("org_id = ? AND user_id = ?", org.ID, user.ID).
			First(&admin).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			admin = organizationdomain.OrganizationAdmin{
				ID:        node.Generate(),
				OrgID:     org.ID,
				UserID:    user.ID,
				CreatedAt: now,
			}
			if err := tx.WithContext(ctx).Create(&admin).Error; err != nil {
				return err
			}
		}

		var member organizationdomain.OrganizationMember
		err = tx.WithContext(ctx).
			Where("org_id = ? AND user_id = ?", org.ID, user.ID).
			First(&member).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			member = organizationdomain.OrganizationMember{
				ID:        node.Generate(),
				OrgID:     org.ID,
				UserID:    user.ID,
				Role:      organizationdomain.RoleAdmin,
				CreatedAt: now,
			}
			if err := tx.WithContext(ctx).Create(&member).Error; err != nil {
				return err
			}
		}

		var request organizationdomain.JoinRequest
		err = tx.WithContext(ctx).
			Where("org_id = ? AND user_id = ?", org.ID, user.ID).
			First(&request).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			resolvedAt := now
			request = organizationdomain.JoinRequest{
				ID:          node.Generate(),
				OrgID:       org.ID,
				UserID:      user.ID,
				Role:        organizationdomain.RoleAdmin,
				Status:      organizationdomain.RequestAccepted,
				Origin:      organizationdomain.OriginRequested,
				RequestedAt: now,
				ResolvedAt:  &resolvedAt,
				ResolvedBy:  &user.ID,
			}
			if err := tx.WithContext(ctx).Create(&request).Error; err != nil {
				return err
			}
		}

		if user.CompanyID == nil {
			role := organizationdomain.RoleAdmin
			return tx.WithContext(ctx).
				Model(&authdomain.User{}).
				Where("id = ?", user.ID).
				Updates(map[string]any{
					"company_id":   org.ID,
					"company_role": role,
					"role":         organizationdomain.DeriveGlobalRole(&role),
				}).Error
		}
		return nil
	})
}

func ensureDefaultOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (organizationdomain.Organization, error) {
	var org organizationdomain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", defaultOrgSlug).First(&org).Error
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return org, err
	}

	now := time.Now().UTC()
	org = organizationdomain.Organization{
		ID:        node.Generate(),
		Name:      defaultOrgName,
		Slug:      defaultOrgSlug,
		IsDefault: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return org, err
	}
	return org, nil
}

func ensureAdminUserTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (authdomain.User, error) {
	var user authdomain.User
	err := tx.WithContext(ctx).
		Where("provider = ? AND external_id = ?", "local", defaultAdminEmail).
		First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return user, err
	}

	hashed, err := password.Hash(defaultAdminPassword)
	if err != nil {
		return user, err
	}

	now := time.Now().UTC()
	user = authdomain.User{
		ID:           node.Generate(),
		ExternalID:   defaultAdminEmail,
		Provider:     "local",
		DisplayName:  defaultAdminDisplay,
		Email:        strings.ToLower(defaultAdminEmail),
		PasswordHash: &hashed,
		Role:         authdomain.RoleCandidate,
		IsDefault:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return user, err
	}
	return user, nil
}

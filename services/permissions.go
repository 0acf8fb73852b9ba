package services

import (
	"context"

	"dandi-api/models"
	"dandi-api/repositories"
)

// PermissionChecker answers whether a principal holds a role on a dandiset.
type PermissionChecker interface {
	HasRole(ctx context.Context, principal *models.Principal, dandisetID uint, role models.DandisetRole) (bool, error)
}

type permissionChecker struct {
	dandisets repositories.DandisetRepository
}

func NewPermissionChecker(dandisets repositories.DandisetRepository) PermissionChecker {
	return &permissionChecker{dandisets: dandisets}
}

func (p *permissionChecker) HasRole(ctx context.Context, principal *models.Principal, dandisetID uint, role models.DandisetRole) (bool, error) {
	if principal == nil {
		return false, nil
	}
	return p.dandisets.HasRole(ctx, nil, dandisetID, principal.UserID, role)
}

// PublishPolicy decides whether an owner may publish. It runs after the
// owner check.
type PublishPolicy func(principal *models.Principal) bool

// AdminOnly allows only admins to publish.
func AdminOnly(principal *models.Principal) bool {
	return principal.IsAdmin()
}

// AnyOwner allows every owner to publish.
func AnyOwner(*models.Principal) bool {
	return true
}

func PolicyFor(requireAdmin bool) PublishPolicy {
	if requireAdmin {
		return AdminOnly
	}
	return AnyOwner
}

func requireOwner(ctx context.Context, perms PermissionChecker, principal *models.Principal, dandisetID uint) error {
	ok, err := perms.HasRole(ctx, principal, dandisetID, models.RoleOwner)
	if err != nil {
		return err
	}
	if !ok {
		return models.NotOwner()
	}
	return nil
}

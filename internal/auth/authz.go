package auth

import (
	"fmt"

	core "github.com/switchboard-ai/switchboard/internal"
)

// RequireRole returns ErrForbidden unless the identity holds one of the
// given roles. Admin always passes.
func RequireRole(id *core.Identity, roles ...string) error {
	if id == nil {
		return core.ErrUnauthorized
	}
	if id.Role == core.RoleAdmin {
		return nil
	}
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return fmt.Errorf("role %q: %w", id.Role, core.ErrForbidden)
}

// RequirePermission returns ErrForbidden unless the identity's resolved
// bitmask includes p.
func RequirePermission(id *core.Identity, p core.Permission) error {
	if id == nil {
		return core.ErrUnauthorized
	}
	if !id.Can(p) {
		return fmt.Errorf("missing permission: %w", core.ErrForbidden)
	}
	return nil
}

// CheckResourceAccess authorizes access to an owned resource. When the
// owner is known, only the owner or an admin may touch it; when ownership
// is unrecorded (legacy rows), the permission check decides.
func CheckResourceAccess(id *core.Identity, ownerID string, p core.Permission) error {
	if id == nil {
		return core.ErrUnauthorized
	}
	if id.Role == core.RoleAdmin {
		return nil
	}
	if ownerID != "" {
		if ownerID != id.UserID {
			return fmt.Errorf("not the owner: %w", core.ErrForbidden)
		}
		return nil
	}
	return RequirePermission(id, p)
}

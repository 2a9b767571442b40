package service

import (
	"context"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/internal/auth/store"
)

// Actor is the verified caller of a user-management operation.
type Actor struct {
	UserID   string
	TenantID string
	Role     domain.Role
}

func (a Actor) IsAdmin() bool { return a.Role == domain.RoleAdmin }

// Guard rule names, used as metric labels.
const (
	RuleSelfDemote       = "self_demote"
	RuleSelfDeactivate   = "self_deactivate"
	RuleLastAdminDemote  = "last_admin_demote"
	RuleLastAdminDisable = "last_admin_deactivate"
)

// CheckPrivilegeChange rejects a role or status change that would leave the
// tenant without an active administrator. An actor editing their own record
// may not demote or deactivate themselves at all; for anyone else the change
// is refused only when the target is the last active administrator.
//
// users must be bound to the transaction that applies the change.
func CheckPrivilegeChange(ctx context.Context, users store.Users, actor Actor, target domain.User, update domain.UserAdminUpdate) error {
	demotes := update.Role != nil && *update.Role != domain.RoleAdmin && target.Role == domain.RoleAdmin
	deactivates := update.Active != nil && !*update.Active && target.Active

	if !demotes && !deactivates {
		return nil
	}

	if actor.UserID == target.ID {
		if demotes {
			return &GuardError{Rule: RuleSelfDemote, Reason: "cannot change your own administrator role"}
		}
		return &GuardError{Rule: RuleSelfDeactivate, Reason: "cannot deactivate your own account"}
	}

	if !target.IsActiveAdmin() {
		return nil
	}

	admins, err := users.CountActiveAdmins(ctx, target.TenantID)
	if err != nil {
		return transient(err)
	}
	if admins-1 >= 1 {
		return nil
	}

	if deactivates {
		return &GuardError{Rule: RuleLastAdminDisable, Reason: "cannot deactivate the only active administrator"}
	}
	return &GuardError{Rule: RuleLastAdminDemote, Reason: "cannot demote the only active administrator"}
}

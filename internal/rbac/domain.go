package rbac

import (
	"sort"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// Permission names guarding HTTP route groups.
const (
	PermInventoryView = "inventory.view"
	PermInventoryPost = "inventory.post"
	PermItemsEdit     = "items.edit"
	PermCountsSubmit  = "counts.submit"
	PermCountsAdmin   = "counts.admin"
	PermPlannerView   = "planner.view"
	PermPlannerEdit   = "planner.edit"
	PermPlannerRevert = "planner.revert"
	PermReportsView   = "reports.view"
	PermAuditView     = "audit.view"
)

// roleGrants is the fixed role to permission matrix.
var roleGrants = map[shared.Role][]string{
	shared.RoleOwner: {
		PermInventoryView, PermInventoryPost, PermItemsEdit, PermCountsSubmit, PermCountsAdmin,
		PermPlannerView, PermPlannerEdit, PermPlannerRevert, PermReportsView, PermAuditView,
	},
	shared.RoleManager: {
		PermInventoryView, PermInventoryPost, PermItemsEdit, PermCountsSubmit, PermCountsAdmin,
		PermPlannerView, PermPlannerEdit, PermReportsView,
	},
	shared.RoleStaff: {
		PermInventoryView, PermCountsSubmit, PermPlannerView,
	},
}

var grantSets = func() map[shared.Role]map[string]struct{} {
	out := make(map[shared.Role]map[string]struct{}, len(roleGrants))
	for role, perms := range roleGrants {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		out[role] = set
	}
	return out
}()

// Granted reports whether role holds perm.
func Granted(role shared.Role, perm string) bool {
	_, ok := grantSets[role][perm]
	return ok
}

// PermissionsFor returns the sorted permissions granted to role.
func PermissionsFor(role shared.Role) []string {
	perms := append([]string(nil), roleGrants[role]...)
	sort.Strings(perms)
	return perms
}

// Profile is the persisted identity of a user.
type Profile struct {
	ID       string
	FullName string
	Role     shared.Role
}

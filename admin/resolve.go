package admin

// Resolve reports whether a user holding roles and overrides is granted
// permissionID. A DENY override wins over everything; an owner role grants
// everything else; an ALLOW override or any role grant allows.
func Resolve(roles []Role, overrides []Override, permissionID string) bool {
	allowed := false
	for _, o := range overrides {
		if o.PermissionID != permissionID {
			continue
		}
		if o.Effect == Deny {
			return false
		}
		if o.Effect == Allow {
			allowed = true
		}
	}
	if allowed {
		return true
	}
	for _, r := range roles {
		if r.Owner {
			return true
		}
		for _, p := range r.PermissionIDs {
			if p == permissionID {
				return true
			}
		}
	}
	return false
}

// AssignedRoles picks the catalog entries assigned to u, in catalog order.
func AssignedRoles(catalog []Role, u User) []Role {
	out := make([]Role, 0, len(u.RoleIDs))
	for _, r := range catalog {
		if u.HasRole(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// HoldsOwner reports whether any of roleIDs is an owner role in catalog.
// Owners may hold no overrides.
func HoldsOwner(catalog []Role, roleIDs []string) bool {
	for _, r := range catalog {
		if !r.Owner {
			continue
		}
		for _, id := range roleIDs {
			if id == r.ID {
				return true
			}
		}
	}
	return false
}

package user

// Policy decides whether actor may act on a resource owned by the user ownerID (0 when the resource has no owner).
type Policy func(actor User, ownerID int) bool

func Admin(actor User, _ int) bool { return actor.IsAdmin() }

func Organizer(actor User, _ int) bool { return actor.IsOrganizer() }

func RegularUser(actor User, _ int) bool { return actor.IsRegular() }

func Self(actor User, ownerID int) bool { return ownerID != 0 && actor.ID == ownerID }

// AnyOf grants access when at least one of the policies does.
func AnyOf(policies ...Policy) Policy {
	return func(actor User, ownerID int) bool {
		for _, p := range policies {
			if p(actor, ownerID) {
				return true
			}
		}
		return false
	}
}

// AllOf grants access only when every policy does.
func AllOf(policies ...Policy) Policy {
	return func(actor User, ownerID int) bool {
		for _, p := range policies {
			if !p(actor, ownerID) {
				return false
			}
		}
		return len(policies) > 0
	}
}

// NotAbove grants access to target's own account, or to actors ranked at least as high as target.
func NotAbove(target User) Policy {
	return func(actor User, _ int) bool {
		return actor.ID == target.ID || RolePriority(target.Role) <= RolePriority(actor.Role)
	}
}

var (
	AdminOrOrganizer       = AnyOf(Admin, Organizer)
	AdminOrOrganizerOrSelf = AnyOf(Admin, Organizer, Self)
)

// CanGrantRole reports whether actor may give role to someone: nobody grants a role above their own.
func CanGrantRole(actor User, role string) bool {
	return RolePriority(role) <= RolePriority(actor.Role)
}

package roles

// Role is the permission level carried in the access token.
type Role string

const (
	Staff      Role = "staff"
	Pharmacist Role = "pharmacist"
	Admin      Role = "admin"
)

type HierarchyLevel int

const (
	UnknownLevel    HierarchyLevel = 0
	StaffLevel      HierarchyLevel = 1
	PharmacistLevel HierarchyLevel = 2
	AdminLevel      HierarchyLevel = 3
)

func (r Role) GetHierarchyLevel() HierarchyLevel {
	switch r {
	case Staff:
		return StaffLevel
	case Pharmacist:
		return PharmacistLevel
	case Admin:
		return AdminLevel
	default:
		return UnknownLevel
	}
}

// HasPermission reports whether r is at least requiredRole. Unknown roles have none.
func (r Role) HasPermission(requiredRole Role) bool {
	return r.IsValid() && requiredRole.IsValid() && r.GetHierarchyLevel() >= requiredRole.GetHierarchyLevel()
}

func (r Role) IsValid() bool {
	switch r {
	case Staff, Pharmacist, Admin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

package admission

import (
	"strings"

	"github.com/charlesng35/campuslink/internal/models"
)

// Policy decides which logins must wait for an operator and who may decide.
type Policy struct {
	Enabled       bool
	GatedRoles    []string
	OperatorRoles []string
}

// DefaultPolicy gates staff logins and lets administrators decide.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:       true,
		GatedRoles:    []string{models.RoleStaff},
		OperatorRoles: []string{models.RoleAdmin},
	}
}

// IsOperator reports whether the role may join the operator room and submit decisions.
func (p Policy) IsOperator(role string) bool {
	return containsRole(p.OperatorRoles, role)
}

// RequiresApproval reports whether a login by the user must be approved live.
// Operators are never gated.
func (p Policy) RequiresApproval(user models.User) bool {
	if !p.Enabled {
		return false
	}
	if p.IsOperator(user.Role) {
		return false
	}
	return user.RequiresApproval || containsRole(p.GatedRoles, user.Role)
}

func containsRole(roles []string, role string) bool {
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, candidate := range roles {
		if strings.EqualFold(strings.TrimSpace(candidate), role) {
			return true
		}
	}
	return false
}

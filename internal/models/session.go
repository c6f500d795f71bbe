package models

// Role values carried in the session token
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// Session - acting user of a mutating operation. Built from the bearer
// token by middleware and passed explicitly down to the store so that
// audit columns never depend on ambient state.
type Session struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Actor - label written into created_by / updated_by.
func (s Session) Actor() string {
	if s.Name != "" {
		return s.Name
	}
	return "system"
}

func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// SystemSession - used by maintenance paths that have no human actor.
var SystemSession = Session{Name: "system", Role: RoleAdmin}

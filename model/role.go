package model

import "fmt"

// Role is a closed set of account role labels. The label carried here is
// informational only; permission evaluation happens outside this service.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleAgent   Role = "agent"
	// RoleUser is the lowest-privilege role and the default for accounts
	// created by remote import.
	RoleUser Role = "user"
)

var roleLabels = map[Role]string{
	RoleAdmin:   "Administrator",
	RoleManager: "Manager",
	RoleAgent:   "Field Agent",
	RoleUser:    "User",
}

func (r Role) Valid() bool {
	_, ok := roleLabels[r]
	return ok
}

func (r Role) Label() string {
	if label, ok := roleLabels[r]; ok {
		return label
	}
	return string(r)
}

func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

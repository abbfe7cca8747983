package models

// Role is the console a caller acts from.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleOwner    Role = "owner"
)

// Actor is the verified identity behind a request. Identity itself is
// managed externally; tokens only carry the subject and role.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

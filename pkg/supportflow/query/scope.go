// Package query builds and runs role-scoped, parameterized SQL for
// the support data source. Every admitted filter becomes exactly one
// predicate with one bound parameter; values are never interpolated
// into SQL text.
package query

// Role is a caller's privilege level, derived from the user record.
type Role int

const (
	// RoleCustomer may only see their own data.
	RoleCustomer Role = iota

	// RoleAdmin has unrestricted access and may target other users.
	RoleAdmin
)

// User type codes as stored in the users table.
const (
	UserTypeAdmin    = 1
	UserTypeCustomer = 4
)

// String implements fmt.Stringer.
func (r Role) String() string {
	if r == RoleAdmin {
		return "admin"
	}
	return "customer"
}

// RoleFromUserType maps a stored user_type code to a Role. Unknown
// codes resolve to customer.
func RoleFromUserType(userType int) Role {
	if userType == UserTypeAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}

// Scope is the resolved access restriction for a query. UserID zero
// means unrestricted, which only an admin can reach.
type Scope struct {
	Role   Role
	UserID int64
}

// ResolveScope derives the effective identity for a query. Customers
// are always pinned to their session identity regardless of the
// requested target; admins may target any user, or nobody for an
// unrestricted query.
func ResolveScope(role Role, sessionUserID, requestedTarget int64) Scope {
	if role == RoleAdmin {
		return Scope{Role: RoleAdmin, UserID: requestedTarget}
	}
	return Scope{Role: RoleCustomer, UserID: sessionUserID}
}

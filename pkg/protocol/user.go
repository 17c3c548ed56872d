package protocol

// Role classifies what a user is allowed to do.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
)

// Staff reports whether the role acts on behalf of the support team.
func (r Role) Staff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// User is a registered account: a customer opening tickets or a member
// of the support team answering them.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	PasswordHash string `json:"-"`
}

// Public returns a copy safe for API responses and broadcasts.
func (u *User) Public() *User {
	return &User{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

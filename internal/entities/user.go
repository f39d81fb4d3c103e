package entities

// User is the single operator account allowed onto the admin API.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
}

const RoleAdmin = "admin"

package repository

import (
	"github.com/huduma/answer-service/internal/entities"
)

// UserRepository resolves operator accounts. The service has a single
// admin configured through the environment, so lookups never hit the
// database.
type UserRepository struct {
	admin *entities.User
}

// NewUserRepository returns a repository with no accounts when username
// or hash is empty.
func NewUserRepository(username, passwordHash string) *UserRepository {
	if username == "" || passwordHash == "" {
		return &UserRepository{}
	}
	return &UserRepository{admin: &entities.User{
		Username:     username,
		PasswordHash: passwordHash,
		Role:         entities.RoleAdmin,
	}}
}

// GetByUsername returns nil, nil when the user does not exist.
func (r *UserRepository) GetByUsername(username string) (*entities.User, error) {
	if r.admin == nil || r.admin.Username != username {
		return nil, nil
	}
	u := *r.admin
	return &u, nil
}

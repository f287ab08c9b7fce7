package users

import "context"

// UserRepo is the persistent user storage collaborator.
// Lookups return internal/errors.ErrNotFound when no row matches and Create
// returns internal/errors.ErrDuplicate on an email or username clash.
type UserRepo interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByEmailOrUsername is used for registration uniqueness checks
	GetByEmailOrUsername(ctx context.Context, email, username string) (*User, error)
	Update(ctx context.Context, id string, update Update) error
	List(ctx context.Context, offset, limit int) ([]*User, error)
}

package identity

import "context"

// UserRepository persists accounts.
type UserRepository interface {
	List(ctx context.Context) ([]User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Create appends u, failing with ErrUserAlreadyExists when the email is
	// taken.
	Create(ctx context.Context, u *User) error
	// Update applies fn to the stored user with the given id and returns the
	// result.
	Update(ctx context.Context, id string, fn func(*User) error) (*User, error)
}

// CredentialRepository keeps password hashes apart from the user records.
type CredentialRepository interface {
	SetHash(ctx context.Context, userID string, hash []byte) error
	GetHash(ctx context.Context, userID string) ([]byte, bool, error)
}

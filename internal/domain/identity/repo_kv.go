package identity

import (
	"context"
	"fmt"

	"github.com/Anup697028/mediwise-chat/internal/platform/localdb"
)

// -- Users --

type userRepoKV struct {
	db *localdb.Database
}

// NewUserRepoKV stores users in the users collection.
func NewUserRepoKV(db *localdb.Database) UserRepository {
	return &userRepoKV{db: db}
}

func (r *userRepoKV) List(ctx context.Context) ([]User, error) {
	return localdb.GetList[User](ctx, r.db, localdb.Users)
}

func (r *userRepoKV) GetByID(ctx context.Context, id string) (*User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *userRepoKV) FindByEmail(ctx context.Context, email string) (*User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if sameEmail(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *userRepoKV) Create(ctx context.Context, u *User) error {
	applied, err := localdb.UpdateList(ctx, r.db, localdb.Users, func(users []User) ([]User, error) {
		for _, existing := range users {
			if sameEmail(existing.Email, u.Email) {
				return nil, ErrUserAlreadyExists
			}
		}
		return append(users, *u), nil
	})
	if err != nil {
		return err
	}
	if !applied {
		// The collection has never been written; start it.
		if err := r.db.Save(ctx, localdb.Users, []User{*u}); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
	}
	return nil
}

func (r *userRepoKV) Update(ctx context.Context, id string, fn func(*User) error) (*User, error) {
	var updated *User
	applied, err := localdb.UpdateList(ctx, r.db, localdb.Users, func(users []User) ([]User, error) {
		for i := range users {
			if users[i].ID != id {
				continue
			}
			if err := fn(&users[i]); err != nil {
				return nil, err
			}
			updated = users[i].Clone()
			return users, nil
		}
		return nil, ErrUserNotFound
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, ErrUserNotFound
	}
	return updated, nil
}

// -- Credentials --

type credential struct {
	UserID string `json:"userId"`
	Hash   string `json:"hash"`
}

type credentialRepoKV struct {
	db *localdb.Database
}

// NewCredentialRepoKV stores password hashes in the credentials collection.
func NewCredentialRepoKV(db *localdb.Database) CredentialRepository {
	return &credentialRepoKV{db: db}
}

func (r *credentialRepoKV) SetHash(ctx context.Context, userID string, hash []byte) error {
	entry := credential{UserID: userID, Hash: string(hash)}
	applied, err := localdb.UpdateList(ctx, r.db, localdb.Credentials, func(creds []credential) ([]credential, error) {
		for i := range creds {
			if creds[i].UserID == userID {
				creds[i] = entry
				return creds, nil
			}
		}
		return append(creds, entry), nil
	})
	if err != nil {
		return err
	}
	if !applied {
		if err := r.db.Save(ctx, localdb.Credentials, []credential{entry}); err != nil {
			return fmt.Errorf("store credential: %w", err)
		}
	}
	return nil
}

func (r *credentialRepoKV) GetHash(ctx context.Context, userID string) ([]byte, bool, error) {
	creds, err := localdb.GetList[credential](ctx, r.db, localdb.Credentials)
	if err != nil {
		return nil, false, err
	}
	for _, c := range creds {
		if c.UserID == userID {
			return []byte(c.Hash), true, nil
		}
	}
	return nil, false, nil
}

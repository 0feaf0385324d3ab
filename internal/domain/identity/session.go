package identity

import (
	"context"
	"sync"

	"github.com/Anup697028/mediwise-chat/internal/platform/localdb"
)

// Unprefixed keys holding the session mirror and the biometric snapshot.
const (
	SessionKey   = "user"
	BiometricKey = "biometricUser"
)

// Sessions holds the one signed-in user and mirrors it into the store so a
// restarted process can pick the session up again.
type Sessions struct {
	db *localdb.Database

	mu      sync.RWMutex
	current *User
	onEnd   []func(userID string)
}

func NewSessions(db *localdb.Database) *Sessions {
	return &Sessions{db: db}
}

// Current returns a copy of the signed-in user, or nil.
func (s *Sessions) Current() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// ActiveUserID returns the id of the signed-in user, or "".
func (s *Sessions) ActiveUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// OnEnd registers fn to run whenever a user stops being the signed-in user,
// by logging out or by someone else signing in. Register before serving.
func (s *Sessions) OnEnd(fn func(userID string)) {
	s.mu.Lock()
	s.onEnd = append(s.onEnd, fn)
	s.mu.Unlock()
}

// Start makes u the signed-in user.
func (s *Sessions) Start(ctx context.Context, u *User) error {
	s.mu.Lock()
	if err := s.db.SaveRaw(ctx, SessionKey, u); err != nil {
		s.mu.Unlock()
		return err
	}
	prev := s.activeID()
	s.current = u.Clone()
	s.mu.Unlock()

	if prev != u.ID {
		s.ended(prev)
	}
	return nil
}

// Refresh replaces the session copy of u when u is the signed-in user, and
// the biometric snapshot when it belongs to u.
func (s *Sessions) Refresh(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshBiometric(ctx, u); err != nil {
		return err
	}
	if s.current == nil || s.current.ID != u.ID {
		return nil
	}
	if err := s.db.SaveRaw(ctx, SessionKey, u); err != nil {
		return err
	}
	s.current = u.Clone()
	return nil
}

// End signs the current user out.
func (s *Sessions) End(ctx context.Context) error {
	s.mu.Lock()
	if err := s.db.DeleteRaw(ctx, SessionKey); err != nil {
		s.mu.Unlock()
		return err
	}
	prev := s.activeID()
	s.current = nil
	s.mu.Unlock()

	s.ended(prev)
	return nil
}

// activeID is ActiveUserID for callers holding mu.
func (s *Sessions) activeID() string {
	if s.current == nil {
		return ""
	}
	return s.current.ID
}

func (s *Sessions) ended(userID string) {
	if userID == "" {
		return
	}
	s.mu.RLock()
	hooks := s.onEnd
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(userID)
	}
}

// Restore loads the mirrored session, if any, and makes it current.
func (s *Sessions) Restore(ctx context.Context) (*User, error) {
	var u User
	found, err := s.db.GetRaw(ctx, SessionKey, &u)
	if err != nil || !found {
		return nil, err
	}
	s.mu.Lock()
	s.current = u.Clone()
	s.mu.Unlock()
	return &u, nil
}

// -- Biometric snapshot --

// refreshBiometric rewrites the snapshot with u while u is the enrolled user.
func (s *Sessions) refreshBiometric(ctx context.Context, u *User) error {
	if !u.BiometricsEnabled {
		return nil
	}
	snap, err := s.Biometric(ctx)
	if err != nil || snap == nil || snap.ID != u.ID {
		return err
	}
	return s.db.SaveRaw(ctx, BiometricKey, u)
}

func (s *Sessions) SaveBiometric(ctx context.Context, u *User) error {
	return s.db.SaveRaw(ctx, BiometricKey, u)
}

func (s *Sessions) ClearBiometric(ctx context.Context) error {
	return s.db.DeleteRaw(ctx, BiometricKey)
}

// Biometric returns the enrolled snapshot, or nil when none is stored.
func (s *Sessions) Biometric(ctx context.Context) (*User, error) {
	var u User
	found, err := s.db.GetRaw(ctx, BiometricKey, &u)
	if err != nil || !found {
		return nil, err
	}
	return &u, nil
}

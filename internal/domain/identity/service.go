package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
	"github.com/Anup697028/mediwise-chat/internal/platform/messaging"
	"github.com/Anup697028/mediwise-chat/internal/platform/notification"
)

// Config carries the collaborators and policy of a Service. Zero values fall
// back to defaults.
type Config struct {
	Notifier *notification.Manager
	Events   messaging.Publisher
	Clock    clock.Clock
	Latency  *clock.Latency
	Logger   zerolog.Logger

	OTPTTL         time.Duration
	OTPCooldown    time.Duration
	OTPMaxAttempts int

	// VerifyPasswords turns on bcrypt checks at login. Off, any password is
	// accepted.
	VerifyPasswords bool
	BcryptCost      int
	// LogCodes writes issued one-time codes to the log. Development only.
	LogCodes bool
}

// Service signs users in and out and manages their accounts.
type Service struct {
	users    UserRepository
	creds    CredentialRepository
	sessions *Sessions
	otps     OTPStore
	cfg      Config
	logger   zerolog.Logger

	otpMu sync.Mutex
}

func NewService(users UserRepository, creds CredentialRepository, sessions *Sessions, otps OTPStore, cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Events == nil {
		cfg.Events = messaging.NopPublisher{}
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = DefaultOTPTTL
	}
	if cfg.OTPCooldown <= 0 {
		cfg.OTPCooldown = DefaultOTPCooldown
	}
	if cfg.OTPMaxAttempts <= 0 {
		cfg.OTPMaxAttempts = DefaultOTPMaxAttempts
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if otps == nil {
		otps = NewMemoryOTPStore()
	}
	return &Service{
		users:    users,
		creds:    creds,
		sessions: sessions,
		otps:     otps,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "identity").Logger(),
	}
}

// Sessions exposes the session holder for the auth middleware.
func (s *Service) Sessions() *Sessions { return s.sessions }

// -- Password login and registration --

// Login signs in the user with the given email. An unknown email gets a new
// patient account named after the address.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	u, err := s.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		u = &User{
			ID:    newUserID(),
			Email: email,
			Name:  nameFromEmail(email),
			Role:  RolePatient,
		}
		u.applyRoleDefaults()
		if err := s.createAccount(ctx, u, password); err != nil {
			return nil, err
		}
		s.publishRegistered(ctx, u, "login")
	case err != nil:
		return nil, err
	default:
		if err := s.checkPassword(ctx, u.ID, password); err != nil {
			return nil, err
		}
	}

	if err := s.sessions.Start(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("user logged in")
	return u, nil
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, email, password, name string, role Role) (*User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}
	u, err := newAccount(email, name, role)
	if err != nil {
		return nil, err
	}
	if err := s.createAccount(ctx, u, password); err != nil {
		return nil, err
	}
	if err := s.sessions.Start(ctx, u); err != nil {
		return nil, err
	}
	s.publishRegistered(ctx, u, "password")
	s.logger.Info().Str("user_id", u.ID).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

func newAccount(email, name string, role Role) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: role must be patient or doctor", ErrInvalidInput)
	}
	u := &User{ID: newUserID(), Email: email, Name: name, Role: role}
	u.applyRoleDefaults()
	return u, nil
}

func (s *Service) createAccount(ctx context.Context, u *User, password string) error {
	if err := s.users.Create(ctx, u); err != nil {
		return err
	}
	if password == "" || s.creds == nil {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.creds.SetHash(ctx, u.ID, hash)
}

// checkPassword compares against the stored hash when verification is on and
// a hash exists.
func (s *Service) checkPassword(ctx context.Context, userID, password string) error {
	if !s.cfg.VerifyPasswords || s.creds == nil {
		return nil
	}
	hash, ok, err := s.creds.GetHash(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// -- One-time codes --

// OTPDelivery describes an issued code. Code is returned to the caller as
// well as delivered.
type OTPDelivery struct {
	Identifier     string    `json:"identifier"`
	Method         string    `json:"method"`
	Code           string    `json:"otp"`
	ExpiresAt      time.Time `json:"expiresAt"`
	NotificationID string    `json:"notificationId,omitempty"`
}

// SendOTP issues a six digit code for identifier and delivers it by email or
// SMS.
func (s *Service) SendOTP(ctx context.Context, identifier, method string) (*OTPDelivery, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayShort); err != nil {
		return nil, err
	}
	channel, err := channelFor(method)
	if err != nil {
		return nil, err
	}
	key := normalizeIdentifier(identifier)
	if key == "" {
		return nil, ErrMissingIdentifier
	}

	s.otpMu.Lock()
	now := s.cfg.Clock.Now()
	if rec, ok := s.otps.Get(key); ok && now.Before(rec.ExpiresAt) && now.Sub(rec.LastSent) < s.cfg.OTPCooldown {
		s.otpMu.Unlock()
		return nil, ErrCooldownActive
	}
	code, err := generateCode()
	if err != nil {
		s.otpMu.Unlock()
		return nil, err
	}
	rec := OTPRecord{
		Identifier: key,
		Code:       code,
		ExpiresAt:  now.Add(s.cfg.OTPTTL),
		LastSent:   now,
	}
	s.otps.Put(rec)
	s.otpMu.Unlock()

	out := &OTPDelivery{Identifier: key, Method: method, Code: code, ExpiresAt: rec.ExpiresAt}
	if s.cfg.Notifier != nil {
		data := map[string]string{"otp": code, "ttl": s.cfg.OTPTTL.String()}
		n, err := s.cfg.Notifier.SendFromTemplateVia(ctx, channel, notification.TemplateOTPCode, data, strings.TrimSpace(identifier))
		if err != nil {
			s.logger.Warn().Err(err).Str("method", method).Msg("verification code not delivered")
		}
		if n != nil {
			out.NotificationID = n.ID
		}
	}

	ev := s.logger.Info().Str("method", method)
	if s.cfg.LogCodes {
		ev = ev.Str("identifier", key).Str("otp", code)
	}
	ev.Msg("otp issued")
	return out, nil
}

func channelFor(method string) (notification.NotificationType, error) {
	switch method {
	case MethodEmail:
		return notification.TypeEmail, nil
	case MethodPhone:
		return notification.TypeSMS, nil
	}
	return "", fmt.Errorf("%w: method must be email or phone", ErrInvalidInput)
}

// VerifyOTP checks code against the outstanding record for identifier. A
// match consumes the record.
func (s *Service) VerifyOTP(ctx context.Context, identifier, code string) (bool, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayShort); err != nil {
		return false, err
	}
	return s.verify(identifier, code)
}

// verify counts the attempt before comparing, so the attempt past the limit
// is rejected even when its code is right.
func (s *Service) verify(identifier, code string) (bool, error) {
	key := normalizeIdentifier(identifier)

	s.otpMu.Lock()
	defer s.otpMu.Unlock()

	rec, ok := s.otps.Get(key)
	if !ok {
		return false, nil
	}
	if s.cfg.Clock.Now().After(rec.ExpiresAt) {
		s.otps.Delete(key)
		return false, nil
	}
	rec.Attempts++
	if rec.Attempts > s.cfg.OTPMaxAttempts {
		s.otps.Delete(key)
		return false, ErrTooManyAttempts
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(strings.TrimSpace(code))) == 1 {
		s.otps.Delete(key)
		return true, nil
	}
	s.otps.Put(rec)
	return false, nil
}

// LoginWithOTP signs in an existing user after checking a code sent to their
// email. The first success marks the email verified.
func (s *Service) LoginWithOTP(ctx context.Context, email, password, code string) (*User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}
	ok, err := s.verify(email, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOTP
	}

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.checkPassword(ctx, u.ID, password); err != nil {
		return nil, err
	}
	if !u.EmailVerified {
		u, err = s.users.Update(ctx, u.ID, func(stored *User) error {
			stored.EmailVerified = true
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := s.sessions.Start(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID).Msg("user logged in with otp")
	return u, nil
}

// OTPRegistration is the input of RegisterWithOTP.
type OTPRegistration struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	OTP          string `json:"otp"`
	Phone        string `json:"phone,omitempty"`
	VerifyMethod string `json:"verifyMethod"`
}

// RegisterWithOTP creates an account once the code sent over the chosen
// channel checks out. The new user is not signed in.
func (s *Service) RegisterWithOTP(ctx context.Context, in OTPRegistration) (*User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}

	var identifier string
	switch in.VerifyMethod {
	case MethodEmail:
		identifier = in.Email
	case MethodPhone:
		identifier = in.Phone
	default:
		return nil, fmt.Errorf("%w: verifyMethod must be email or phone", ErrInvalidInput)
	}
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrMissingIdentifier
	}

	ok, err := s.verify(identifier, in.OTP)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidOTP
	}

	u, err := newAccount(in.Email, in.Name, in.Role)
	if err != nil {
		return nil, err
	}
	u.PhoneNumber = strings.TrimSpace(in.Phone)
	u.EmailVerified = in.VerifyMethod == MethodEmail
	u.PhoneVerified = in.VerifyMethod == MethodPhone
	if err := s.createAccount(ctx, u, in.Password); err != nil {
		return nil, err
	}

	s.publishRegistered(ctx, u, in.VerifyMethod)
	s.logger.Info().Str("user_id", u.ID).Str("method", in.VerifyMethod).Msg("user registered with otp")
	return u, nil
}

// -- Biometrics --

// LoginWithBiometric restores the enrolled snapshot as the session.
func (s *Service) LoginWithBiometric(ctx context.Context) (*User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayShort); err != nil {
		return nil, err
	}
	u, err := s.sessions.Biometric(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrBiometricNotEnrolled
	}
	if err := s.sessions.Start(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID).Msg("user logged in with biometrics")
	return u, nil
}

// UpdateBiometricPreference turns biometric login on or off for actor.
func (s *Service) UpdateBiometricPreference(ctx context.Context, actor *User, enabled bool) (*User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayShort); err != nil {
		return nil, err
	}
	if err := RequireRole(actor); err != nil {
		return nil, err
	}
	u, err := s.users.Update(ctx, actor.ID, func(stored *User) error {
		stored.BiometricsEnabled = enabled
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Refresh(ctx, u); err != nil {
		return nil, err
	}
	if enabled {
		err = s.sessions.SaveBiometric(ctx, u)
	} else {
		err = s.sessions.ClearBiometric(ctx)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// -- Session --

// Logout ends the session. Accounts are untouched.
func (s *Service) Logout(ctx context.Context) error {
	id := s.sessions.ActiveUserID()
	if err := s.sessions.End(ctx); err != nil {
		return err
	}
	if id != "" {
		s.logger.Info().Str("user_id", id).Msg("user logged out")
	}
	return nil
}

// CurrentUser returns the signed-in user, or nil.
func (s *Service) CurrentUser() *User {
	return s.sessions.Current()
}

// Restore picks up a session mirrored by an earlier process.
func (s *Service) Restore(ctx context.Context) (*User, error) {
	u, err := s.sessions.Restore(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}
	if u != nil {
		s.logger.Info().Str("user_id", u.ID).Msg("session restored")
	}
	return u, nil
}

// Actor returns the signed-in user when userID, taken from a verified
// session token, still names them.
func (s *Service) Actor(_ context.Context, userID string) (*User, error) {
	u := s.sessions.Current()
	if u == nil || userID == "" || u.ID != userID {
		return nil, ErrUnauthorized
	}
	return u, nil
}

// -- Profile --

// UpdateProfile merges p onto actor's stored record.
func (s *Service) UpdateProfile(ctx context.Context, actor *User, p ProfileUpdate) (*User, error) {
	if err := s.cfg.Latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}
	if err := RequireRole(actor); err != nil {
		return nil, err
	}
	u, err := s.users.Update(ctx, actor.ID, func(stored *User) error {
		p.Apply(stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Refresh(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SaveUser writes u back to the users collection and refreshes the session
// when u is signed in. Other domains use it after changing a user record.
func (s *Service) SaveUser(ctx context.Context, id string, fn func(*User) error) (*User, error) {
	u, err := s.users.Update(ctx, id, fn)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Refresh(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser loads a stored user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ListUsers returns every stored user.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}

func (s *Service) publishRegistered(ctx context.Context, u *User, method string) {
	messaging.PublishAndLog(ctx, s.cfg.Events, s.logger, messaging.EventUserRegistered, messaging.UserRegisteredEvent{
		BaseEvent: messaging.NewBaseEvent(messaging.EventUserRegistered, s.cfg.Clock.Now()),
		Data: messaging.UserRegisteredData{
			UserID:        u.ID,
			Email:         u.Email,
			Role:          string(u.Role),
			EmailVerified: u.EmailVerified,
			PhoneVerified: u.PhoneVerified,
			Method:        method,
		},
	})
}

func newUserID() string {
	return "user_" + uuid.NewString()
}

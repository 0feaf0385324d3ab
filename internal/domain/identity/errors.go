package identity

import "errors"

var (
	ErrUnauthorized         = errors.New("unauthorized access")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrInvalidOTP           = errors.New("invalid or expired verification code")
	ErrTooManyAttempts      = errors.New("too many verification attempts")
	ErrCooldownActive       = errors.New("please wait before requesting another code")
	ErrBiometricNotEnrolled = errors.New("biometric login is not set up")
	ErrMissingIdentifier    = errors.New("identifier for the chosen verification method is missing")
	ErrInvalidInput         = errors.New("invalid input")
)

// RequireRole returns ErrUnauthorized unless actor is signed in with one of
// roles. With no roles any signed-in actor passes.
func RequireRole(actor *User, roles ...Role) error {
	if actor == nil || actor.ID == "" {
		return ErrUnauthorized
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return ErrUnauthorized
}

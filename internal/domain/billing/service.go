// Package billing manages the payment methods saved on a patient's account.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Anup697028/mediwise-chat/internal/domain/identity"
	"github.com/Anup697028/mediwise-chat/internal/platform/clock"
)

var (
	ErrPaymentMethodNotFound = errors.New("payment method not found")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
)

// Accounts reads and writes user records. identity.Service implements it and
// keeps the session mirror in step with every write.
type Accounts interface {
	GetUser(ctx context.Context, id string) (*identity.User, error)
	SaveUser(ctx context.Context, id string, fn func(*identity.User) error) (*identity.User, error)
}

// NewPaymentMethod is the input of AddPaymentMethod.
type NewPaymentMethod struct {
	Type       string `json:"type"`
	LastFour   string `json:"lastFour,omitempty"`
	CardType   string `json:"cardType,omitempty"`
	ExpiryDate string `json:"expiryDate,omitempty"`
	IsDefault  bool   `json:"isDefault"`
	Holder     string `json:"holder"`
}

type Service struct {
	accounts Accounts
	latency  *clock.Latency
	logger   zerolog.Logger
}

func NewService(accounts Accounts, latency *clock.Latency, logger zerolog.Logger) *Service {
	return &Service{
		accounts: accounts,
		latency:  latency,
		logger:   logger.With().Str("component", "billing").Logger(),
	}
}

// -- Payment methods --

// ListPaymentMethods returns the patient's saved methods in the order they
// were added.
func (s *Service) ListPaymentMethods(ctx context.Context, actor *identity.User) ([]identity.PaymentMethod, error) {
	if err := s.latency.Wait(ctx, clock.DelayShort); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor, identity.RolePatient); err != nil {
		return nil, err
	}
	u, err := s.accounts.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if u.PaymentMethods == nil {
		return []identity.PaymentMethod{}, nil
	}
	return u.PaymentMethods, nil
}

// GetPaymentMethod returns one of the patient's saved methods.
func (s *Service) GetPaymentMethod(ctx context.Context, actor *identity.User, id string) (*identity.PaymentMethod, error) {
	methods, err := s.ListPaymentMethods(ctx, actor)
	if err != nil {
		return nil, err
	}
	for i := range methods {
		if methods[i].ID == id {
			return &methods[i], nil
		}
	}
	return nil, ErrPaymentMethodNotFound
}

// AddPaymentMethod saves a new method. A method added as default takes the
// default from every other method; one added while no method is default
// becomes the default.
func (s *Service) AddPaymentMethod(ctx context.Context, actor *identity.User, in NewPaymentMethod) (*identity.PaymentMethod, error) {
	if err := s.latency.Wait(ctx, clock.DelayWrite); err != nil {
		return nil, err
	}
	if err := identity.RequireRole(actor, identity.RolePatient); err != nil {
		return nil, err
	}
	switch in.Type {
	case identity.PaymentCreditCard, identity.PaymentPayPal, identity.PaymentBankAccount:
	default:
		return nil, fmt.Errorf("%w: type must be credit_card, paypal or bank_account", ErrInvalidPaymentMethod)
	}

	pm := identity.PaymentMethod{
		ID:         "pm_" + uuid.NewString(),
		Type:       in.Type,
		LastFour:   in.LastFour,
		CardType:   in.CardType,
		ExpiryDate: in.ExpiryDate,
		IsDefault:  in.IsDefault,
		Holder:     in.Holder,
	}
	_, err := s.accounts.SaveUser(ctx, actor.ID, func(u *identity.User) error {
		if pm.IsDefault {
			for i := range u.PaymentMethods {
				u.PaymentMethods[i].IsDefault = false
			}
		} else if !hasDefault(u.PaymentMethods) {
			pm.IsDefault = true
		}
		u.PaymentMethods = append(u.PaymentMethods, pm)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", actor.ID).Str("payment_method_id", pm.ID).Bool("default", pm.IsDefault).Msg("payment method added")
	return &pm, nil
}

// RemovePaymentMethod deletes a saved method. When no remaining method is the
// default, the first one becomes it. Unknown ids are ignored.
func (s *Service) RemovePaymentMethod(ctx context.Context, actor *identity.User, id string) error {
	if err := s.latency.Wait(ctx, clock.DelayShort); err != nil {
		return err
	}
	if err := identity.RequireRole(actor, identity.RolePatient); err != nil {
		return err
	}
	_, err := s.accounts.SaveUser(ctx, actor.ID, func(u *identity.User) error {
		if u.PaymentMethods == nil {
			return nil
		}
		kept := make([]identity.PaymentMethod, 0, len(u.PaymentMethods))
		for _, pm := range u.PaymentMethods {
			if pm.ID != id {
				kept = append(kept, pm)
			}
		}
		if len(kept) > 0 && !hasDefault(kept) {
			kept[0].IsDefault = true
		}
		u.PaymentMethods = kept
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("user_id", actor.ID).Str("payment_method_id", id).Msg("payment method removed")
	return nil
}

func hasDefault(methods []identity.PaymentMethod) bool {
	for _, pm := range methods {
		if pm.IsDefault {
			return true
		}
	}
	return false
}

package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// Verification channels for one-time codes.
const (
	MethodEmail = "email"
	MethodPhone = "phone"
)

// Default one-time code policy.
const (
	DefaultOTPTTL         = 10 * time.Minute
	DefaultOTPCooldown    = 60 * time.Second
	DefaultOTPMaxAttempts = 5
)

// OTPRecord is an outstanding one-time code for an email address or phone
// number.
type OTPRecord struct {
	Identifier string
	Code       string
	ExpiresAt  time.Time
	Attempts   int
	LastSent   time.Time
}

// OTPStore keeps outstanding codes keyed by identifier.
type OTPStore interface {
	Get(identifier string) (OTPRecord, bool)
	Put(rec OTPRecord)
	Delete(identifier string)
}

// MemoryOTPStore keeps codes for the lifetime of the process only.
type MemoryOTPStore struct {
	mu      sync.Mutex
	records map[string]OTPRecord
}

func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{records: make(map[string]OTPRecord)}
}

func (s *MemoryOTPStore) Get(identifier string) (OTPRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[identifier]
	return rec, ok
}

func (s *MemoryOTPStore) Put(rec OTPRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Identifier] = rec
}

func (s *MemoryOTPStore) Delete(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
}

// normalizeIdentifier folds case and surrounding space so "Alice@x" and
// "alice@x " share one record.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// generateCode returns a uniformly random six digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

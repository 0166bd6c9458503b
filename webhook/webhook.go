package webhook

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Signature and event headers on outbound deliveries.
const (
	SignatureHeader = "X-Shopworks-Signature"
	EventHeader     = "X-Shopworks-Event"
)

var (
	// ErrRegistrationNotFound is returned for an unknown registration id.
	ErrRegistrationNotFound = errors.New("webhook registration not found")
	// ErrMissingSignature is returned when an inbound request carries no
	// usable signature header. The request must not be processed.
	ErrMissingSignature = errors.New("missing webhook signature")
)

// DeliveryStatus is the recorded outcome of the most recent delivery
// attempt to a registration.
type DeliveryStatus struct {
	At         time.Time
	StatusCode int
	OK         bool
	Error      string
}

// Registration is one webhook target. Secret material lives only in
// EncryptedSecret, a SecretCipher blob; the plaintext secret is shown once
// at creation and never again.
type Registration struct {
	ID              string
	URL             string
	EncryptedSecret []byte
	Active          bool
	CreatedAt       time.Time
	LastDelivery    *DeliveryStatus
}

// Store persists registrations. Owned by the business data layer;
// MemoryStore is the reference implementation.
type Store interface {
	Save(ctx context.Context, reg *Registration) error
	Registration(ctx context.Context, id string) (*Registration, error)
	Active(ctx context.Context) ([]*Registration, error)
	RecordDelivery(ctx context.Context, id string, status DeliveryStatus) error
}

// Event is the wire format of an outbound payload.
type Event struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// MemoryStore is an in-memory Store for tests and single-process
// deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	regs map[string]*Registration
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{regs: make(map[string]*Registration)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, reg *Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[reg.ID] = cloneRegistration(reg)
	return nil
}

// Registration implements Store.
func (s *MemoryStore) Registration(_ context.Context, id string) (*Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.regs[id]
	if !ok {
		return nil, ErrRegistrationNotFound
	}
	return cloneRegistration(reg), nil
}

// Active implements Store.
func (s *MemoryStore) Active(_ context.Context) ([]*Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Registration
	for _, reg := range s.regs {
		if reg.Active {
			out = append(out, cloneRegistration(reg))
		}
	}
	return out, nil
}

// RecordDelivery implements Store.
func (s *MemoryStore) RecordDelivery(_ context.Context, id string, status DeliveryStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.regs[id]
	if !ok {
		return ErrRegistrationNotFound
	}
	cp := status
	reg.LastDelivery = &cp
	return nil
}

func cloneRegistration(reg *Registration) *Registration {
	cp := *reg
	cp.EncryptedSecret = append([]byte(nil), reg.EncryptedSecret...)
	if reg.LastDelivery != nil {
		status := *reg.LastDelivery
		cp.LastDelivery = &status
	}
	return &cp
}

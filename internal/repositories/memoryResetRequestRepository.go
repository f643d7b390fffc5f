package repositories

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"fitpass/internal/models"
)

// MemoryResetRequestRepository keeps reset requests in process memory. It is
// meant for single-instance deployments (STORE_DRIVER=memory) and tests.
type MemoryResetRequestRepository struct {
	mu       sync.Mutex
	requests map[string]models.ResetRequest
}

func NewMemoryResetRequestRepository() *MemoryResetRequestRepository {
	return &MemoryResetRequestRepository{requests: make(map[string]models.ResetRequest)}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneRequest(r models.ResetRequest) *models.ResetRequest {
	r.VerifiedAt = cloneTime(r.VerifiedAt)
	r.TokenExpiresAt = cloneTime(r.TokenExpiresAt)
	r.ConsumedAt = cloneTime(r.ConsumedAt)
	return &r
}

func (m *MemoryResetRequestRepository) Replace(_ context.Context, req *models.ResetRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.Identifier] = *cloneRequest(*req)
	return nil
}

func (m *MemoryResetRequestRepository) FindByIdentifier(_ context.Context, identifier string) (*models.ResetRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[identifier]
	if !ok {
		return nil, nil
	}
	return cloneRequest(r), nil
}

func (m *MemoryResetRequestRepository) ReserveAttempt(_ context.Context, identifier, requestID string, maxAttempts int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[identifier]
	if !ok || r.RequestID != requestID || r.Attempts >= maxAttempts || r.VerifiedAt != nil || r.ConsumedAt != nil {
		return 0, false, nil
	}
	r.Attempts++
	m.requests[identifier] = r
	return r.Attempts, true, nil
}

func (m *MemoryResetRequestRepository) MarkVerified(_ context.Context, identifier, requestID string, maxAttempts int, verifiedAt time.Time, tokenHash string, tokenExpiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[identifier]
	if !ok || r.RequestID != requestID || r.Attempts > maxAttempts || r.VerifiedAt != nil || r.ConsumedAt != nil || r.ExpiresAt.Before(verifiedAt) {
		return false, nil
	}
	r.VerifiedAt = &verifiedAt
	r.TokenHash = tokenHash
	r.TokenExpiresAt = &tokenExpiresAt
	m.requests[identifier] = r
	return true, nil
}

func (m *MemoryResetRequestRepository) Consume(_ context.Context, identifier, tokenHash string, now time.Time) (*models.ResetRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[identifier]
	if !ok || r.ConsumedAt != nil || r.TokenExpiresAt == nil || r.TokenExpiresAt.Before(now) {
		return nil, nil
	}
	if r.TokenHash == "" || subtle.ConstantTimeCompare([]byte(r.TokenHash), []byte(tokenHash)) != 1 {
		return nil, nil
	}
	r.ConsumedAt = &now
	m.requests[identifier] = r
	return cloneRequest(r), nil
}

func (m *MemoryResetRequestRepository) DeleteDead(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, r := range m.requests {
		if r.DeadSince().Before(before) {
			delete(m.requests, id)
			deleted++
		}
	}
	return deleted, nil
}

package payment

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, p *Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockRepository) GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) GetByPropertyID(ctx context.Context, propertyID string) (*Payment, error) {
	args := m.Called(ctx, propertyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Payment), args.Error(1)
}

func (m *MockRepository) CompletePending(ctx context.Context, transactionID string, c Completion) (bool, error) {
	args := m.Called(ctx, transactionID, c)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) FailPending(ctx context.Context, transactionID string) (bool, error) {
	args := m.Called(ctx, transactionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ExpirePending(ctx context.Context, createdBefore time.Time) (int64, error) {
	args := m.Called(ctx, createdBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) SaveCallback(ctx context.Context, checkoutRequestID string, resultCode int, payload json.RawMessage) (int64, error) {
	args := m.Called(ctx, checkoutRequestID, resultCode, payload)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) MarkCallbackProcessed(ctx context.Context, callbackID int64) error {
	args := m.Called(ctx, callbackID)
	return args.Error(0)
}

func (m *MockRepository) MarkCallbackFailed(ctx context.Context, callbackID int64, reason string) error {
	args := m.Called(ctx, callbackID, reason)
	return args.Error(0)
}

type MockGateway struct {
	mock.Mock
	method Method
}

func (m *MockGateway) Method() Method { return m.method }

func (m *MockGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ChargeResponse), args.Error(1)
}

type MockSequencer struct {
	mock.Mock
}

func (m *MockSequencer) Next(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) Exists(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

type MockProperties struct {
	mock.Mock
}

func (m *MockProperties) ExistsActive(ctx context.Context, propertyID string) (bool, error) {
	args := m.Called(ctx, propertyID)
	return args.Bool(0), args.Error(1)
}

// memRepository keeps payments in memory with the same conditional-update
// rules as the SQL repository.
type memRepository struct {
	mu        sync.Mutex
	payments  map[string]*Payment
	callbacks []json.RawMessage
}

func newMemRepository() *memRepository {
	return &memRepository{payments: map[string]*Payment{}}
}

func (r *memRepository) Create(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt, p.UpdatedAt = time.Now(), time.Now()
	cp := *p
	r.payments[p.TransactionID] = &cp
	return nil
}

func (r *memRepository) GetByTransactionID(_ context.Context, transactionID string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepository) GetByPropertyID(_ context.Context, propertyID string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first *Payment
	for _, p := range r.payments {
		if p.PropertyID == propertyID && (first == nil || p.CreatedAt.Before(first.CreatedAt)) {
			first = p
		}
	}
	if first == nil {
		return nil, ErrPaymentNotFound
	}
	cp := *first
	return &cp, nil
}

func (r *memRepository) CompletePending(_ context.Context, transactionID string, c Completion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionID]
	if !ok || p.PaymentStatus != StatusPending {
		return false, nil
	}
	p.PaymentStatus = StatusCompleted
	if c.Amount != nil {
		p.Amount = *c.Amount
	}
	if c.ProviderReceipt != nil {
		p.ProviderReceipt = *c.ProviderReceipt
	}
	if c.TransactionDate != nil {
		p.TransactionDate = *c.TransactionDate
	}
	if c.PhoneNumber != nil {
		p.PhoneNumber = *c.PhoneNumber
	}
	return true, nil
}

func (r *memRepository) FailPending(_ context.Context, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[transactionID]
	if !ok || p.PaymentStatus != StatusPending {
		return false, nil
	}
	p.PaymentStatus = StatusFailed
	return true, nil
}

func (r *memRepository) ExpirePending(_ context.Context, createdBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.payments {
		if p.PaymentStatus == StatusPending && p.CreatedAt.Before(createdBefore) {
			p.PaymentStatus = StatusFailed
			n++
		}
	}
	return n, nil
}

func (r *memRepository) SaveCallback(_ context.Context, _ string, _ int, payload json.RawMessage) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, payload)
	return int64(len(r.callbacks)), nil
}

func (r *memRepository) MarkCallbackProcessed(context.Context, int64) error { return nil }

func (r *memRepository) MarkCallbackFailed(context.Context, int64, string) error { return nil }

func (r *memRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.payments)
}

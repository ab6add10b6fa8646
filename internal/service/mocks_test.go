package service

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/promotion"
	"github.com/jafarshop/tablepos/internal/repository"
	"github.com/jafarshop/tablepos/pkg/errors"
)

// MockOrderRepository implements repository.OrderRepository for testing
type MockOrderRepository struct {
	mu        sync.Mutex
	Orders    map[uuid.UUID]*domain.Order
	CreateErr error
	DeleteErr error
	Deleted   []uuid.UUID
	// BeforeUpdateStatus runs under the lock ahead of the status compare,
	// letting a test change the stored order as a concurrent writer would
	BeforeUpdateStatus func(order *domain.Order)
}

func (m *MockOrderRepository) Create(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	stored := *order
	m.Orders[order.ID] = &stored
	return nil
}

func (m *MockOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, id)
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.Orders, id)
	return nil
}

func (m *MockOrderRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.Orders[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	copied := *order
	return &copied, nil
}

func (m *MockOrderRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.Orders[id]
	if !ok {
		return &errors.ErrNotFound{Resource: "order", ID: id.String()}
	}
	if m.BeforeUpdateStatus != nil {
		m.BeforeUpdateStatus(order)
	}
	if order.Status != from {
		return &errors.ErrInvalidStateTransition{From: order.Status, To: to}
	}
	order.Status = to
	return nil
}

func (m *MockOrderRepository) List(_ context.Context, _, _ int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.Orders {
		out = append(out, o)
	}
	return out, nil
}

// MockOrderLineRepository implements repository.OrderLineRepository for testing
type MockOrderLineRepository struct {
	mu        sync.Mutex
	Lines     map[uuid.UUID][]*domain.OrderLine
	CreateErr error
}

func (m *MockOrderLineRepository) CreateBatch(_ context.Context, lines []*domain.OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, l := range lines {
		m.Lines[l.OrderID] = append(m.Lines[l.OrderID], l)
	}
	return nil
}

func (m *MockOrderLineRepository) GetByOrderID(_ context.Context, orderID uuid.UUID) ([]*domain.OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Lines[orderID], nil
}

// MockPromotionRepository implements repository.PromotionRepository for testing
type MockPromotionRepository struct {
	mu          sync.Mutex
	ByCode      map[string]*domain.Promotion
	Incremented []uuid.UUID
}

func (m *MockPromotionRepository) GetByCode(_ context.Context, code string) (*domain.Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	promo, ok := m.ByCode[code]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "promotion", ID: code}
	}
	copied := *promo
	return &copied, nil
}

func (m *MockPromotionRepository) IncrementUsage(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Incremented = append(m.Incremented, id)
	for _, p := range m.ByCode {
		if p.ID == id {
			p.UsageCount++
		}
	}
	return nil
}

func (m *MockPromotionRepository) Create(_ context.Context, promo *domain.Promotion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ByCode[promo.Code] = promo
	return nil
}

// MockOrderEventRepository implements repository.OrderEventRepository for testing
type MockOrderEventRepository struct {
	mu     sync.Mutex
	Events []*domain.OrderEvent
}

func (m *MockOrderEventRepository) Create(_ context.Context, event *domain.OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockOrderEventRepository) GetByOrderID(_ context.Context, orderID uuid.UUID) ([]*domain.OrderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.OrderEvent
	for _, e := range m.Events {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type testRepos struct {
	orders     *MockOrderRepository
	lines      *MockOrderLineRepository
	promotions *MockPromotionRepository
	events     *MockOrderEventRepository
	repos      *repository.Repositories
}

func newTestRepos() *testRepos {
	tr := &testRepos{
		orders:     &MockOrderRepository{Orders: map[uuid.UUID]*domain.Order{}},
		lines:      &MockOrderLineRepository{Lines: map[uuid.UUID][]*domain.OrderLine{}},
		promotions: &MockPromotionRepository{ByCode: map[string]*domain.Promotion{}},
		events:     &MockOrderEventRepository{},
	}
	tr.repos = &repository.Repositories{
		Order:      tr.orders,
		OrderLine:  tr.lines,
		Promotion:  tr.promotions,
		OrderEvent: tr.events,
	}
	return tr
}

func newTestService(tr *testRepos, notifier OrderNotifier) *OrderService {
	return NewOrderService(tr.repos, promotion.NewEngine(tr.promotions, nil), notifier, nil)
}

// recordingNotifier captures notifications synchronously
type recordingNotifier struct {
	mu     sync.Mutex
	orders []*domain.Order
}

func (r *recordingNotifier) NotifyOrderPlaced(order *domain.Order, _ []*domain.OrderLine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

// blockingSink blocks every Send until release is closed
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	sent    []OrderPlacedEvent
}

func (b *blockingSink) Name() string { return "blocking" }

func (b *blockingSink) Send(_ context.Context, event OrderPlacedEvent) error {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, event)
	return nil
}

// recordingSink stores events and optionally fails
type recordingSink struct {
	name string
	err  error
	mu   sync.Mutex
	sent []OrderPlacedEvent
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Send(_ context.Context, event OrderPlacedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, event)
	return r.err
}

func (r *recordingSink) events() []OrderPlacedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]OrderPlacedEvent(nil), r.sent...)
}

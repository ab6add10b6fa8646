package offline

import (
	"context"

	"github.com/google/uuid"

	"github.com/jafarshop/tablepos/internal/domain"
)

// MemoryStorage keeps the queue in process memory. Contents are lost on restart.
// The Queue serializes access, so MemoryStorage has no lock of its own.
type MemoryStorage struct {
	items []domain.QueuedSubmission
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) Append(_ context.Context, item domain.QueuedSubmission) error {
	m.items = append(m.items, item)
	return nil
}

func (m *MemoryStorage) List(_ context.Context) ([]domain.QueuedSubmission, error) {
	return append([]domain.QueuedSubmission(nil), m.items...), nil
}

func (m *MemoryStorage) Remove(_ context.Context, id uuid.UUID) error {
	for i, item := range m.items {
		if item.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

package leave

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// =============================================================================
// ATTACHMENT STORE - Outbound storage collaborator
// =============================================================================

// AttachmentStore persists supporting documents and returns an opaque
// storage ref. Actual file storage is an external collaborator; the
// engine only carries the ref on the request row.
type AttachmentStore interface {
	Put(ctx context.Context, payload []byte) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// MemoryAttachments is the in-process implementation for tests/dev.
type MemoryAttachments struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryAttachments() *MemoryAttachments {
	return &MemoryAttachments{data: make(map[string][]byte)}
}

func (m *MemoryAttachments) Put(_ context.Context, payload []byte) (string, error) {
	ref := uuid.NewString()
	m.mu.Lock()
	m.data[ref] = append([]byte(nil), payload...)
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryAttachments) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.data[ref]
	if !ok {
		return nil, fmt.Errorf("attachment %s not found", ref)
	}
	return append([]byte(nil), payload...), nil
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/mmeshcher/bankportal/internal/model"
)

// MemoryRegistry хранит сессии в памяти процесса.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]entry
	idle    time.Duration
	now     func() time.Time
}

// NewMemoryRegistry создаёт реестр с указанным таймаутом бездействия.
func NewMemoryRegistry(idle time.Duration) *MemoryRegistry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &MemoryRegistry{
		entries: make(map[string]entry),
		idle:    idle,
		now:     time.Now,
	}
}

// Create открывает сессию, перезаписывая предыдущую.
func (r *MemoryRegistry) Create(_ context.Context, userID string) error {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[userID] = entry{loginTime: now, lastActivity: now}
	return nil
}

// Touch обновляет время последней активности существующей сессии.
func (r *MemoryRegistry) Touch(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[userID]; ok {
		e.lastActivity = r.now()
		r.entries[userID] = e
	}
	return nil
}

// Remove удаляет сессию пользователя. Отсутствие записи не считается ошибкой.
func (r *MemoryRegistry) Remove(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, userID)
	return nil
}

// RemoveAll удаляет все сессии пользователя.
func (r *MemoryRegistry) RemoveAll(ctx context.Context, userID string) error {
	return r.Remove(ctx, userID)
}

// Info возвращает сведения о сессии или nil, если сессии нет.
func (r *MemoryRegistry) Info(_ context.Context, userID string) (*model.SessionInfo, error) {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	return buildInfo(e, r.now(), r.idle), nil
}

// Purge удаляет записи, бездействующие дольше retention.
func (r *MemoryRegistry) Purge(retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, e := range r.entries {
		if now.Sub(e.lastActivity) > retention {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

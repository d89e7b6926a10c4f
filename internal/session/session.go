// Package session ведёт справочный реестр сессий: время входа и последней активности пользователя.
// Реестр не участвует в проверке доступа, он нужен для отображения таймера бездействия.
// На каждого пользователя хранится одна запись; повторный вход перезаписывает её.
package session

import (
	"context"
	"time"

	"github.com/mmeshcher/bankportal/internal/model"
)

// DefaultIdleTimeout - время бездействия, после которого сессия считается истёкшей.
const DefaultIdleTimeout = 15 * time.Minute

// Registry описывает хранилище записей о сессиях.
type Registry interface {
	Create(ctx context.Context, userID string) error
	Touch(ctx context.Context, userID string) error
	Remove(ctx context.Context, userID string) error
	RemoveAll(ctx context.Context, userID string) error
	Info(ctx context.Context, userID string) (*model.SessionInfo, error)
}

type entry struct {
	loginTime    time.Time
	lastActivity time.Time
}

func buildInfo(e entry, now time.Time, idle time.Duration) *model.SessionInfo {
	elapsed := now.Sub(e.lastActivity)
	remaining := idle - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &model.SessionInfo{
		LoginTime:     e.loginTime,
		LastActivity:  e.lastActivity,
		TimeRemaining: remaining,
		IsExpired:     elapsed > idle,
	}
}

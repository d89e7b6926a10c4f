package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PurgeFunc удаляет устаревшие записи и возвращает их количество.
type PurgeFunc func() int

// StartJanitor запускает фоновую очистку in-memory хранилищ токенов и сессий.
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration, tasks ...PurgeFunc) {
	if len(tasks) == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.purge(tasks)
			}
		}
	}()
}

func (s *Service) purge(tasks []PurgeFunc) {
	removed := 0
	for _, task := range tasks {
		removed += task()
	}
	if removed > 0 {
		s.logger.Debug("janitor purged expired entries", zap.Int("removed", removed))
	}
}

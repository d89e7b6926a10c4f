package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryBlacklist хранит отозванные токены в памяти процесса.
// Список теряется при перезапуске и не разделяется между экземплярами.
type MemoryBlacklist struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryBlacklist создаёт пустой список.
func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke добавляет токен в список.
func (b *MemoryBlacklist) Revoke(_ context.Context, token string, expiresAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.revoked[fingerprint(token)] = expiresAt
	return nil
}

// IsRevoked сообщает, находится ли токен в списке.
func (b *MemoryBlacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.revoked[fingerprint(token)]
	return ok, nil
}

// Purge удаляет записи о токенах, срок которых уже истёк.
func (b *MemoryBlacklist) Purge() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	removed := 0
	for k, exp := range b.revoked {
		if !exp.After(now) {
			delete(b.revoked, k)
			removed++
		}
	}
	return removed
}

// RedisBlacklist хранит отозванные токены в Redis с TTL, равным остатку срока жизни токена.
type RedisBlacklist struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisBlacklist создаёт список поверх клиента Redis. Ключи имеют вид <prefix>revoked:<sha256>.
func NewRedisBlacklist(rdb redis.UniversalClient, prefix string) *RedisBlacklist {
	return &RedisBlacklist{rdb: rdb, prefix: prefix, now: time.Now}
}

func (b *RedisBlacklist) key(token string) string {
	return b.prefix + "revoked:" + fingerprint(token)
}

// Revoke сохраняет отметку об отзыве. Для уже истёкшего токена запись не создаётся.
func (b *RedisBlacklist) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.now())
	if ttl <= 0 {
		return nil
	}
	if err := b.rdb.Set(ctx, b.key(token), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// IsRevoked проверяет наличие отметки об отзыве.
func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := b.rdb.Get(ctx, b.key(token)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	return true, nil
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/bankportal/internal/model"
)

const (
	fieldLogin    = "login"
	fieldActivity = "activity"
)

// touchScript обновляет активность только у существующей записи.
var touchScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "activity", ARGV[1])
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// RedisRegistry хранит сессии в Redis, чтобы реестр переживал перезапуск и был общим для экземпляров.
type RedisRegistry struct {
	rdb       redis.UniversalClient
	prefix    string
	idle      time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewRedisRegistry создаёт реестр. Записи хранятся не дольше retention после последней активности.
func NewRedisRegistry(rdb redis.UniversalClient, prefix string, idle, retention time.Duration) *RedisRegistry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if retention < idle {
		retention = idle
	}
	return &RedisRegistry{
		rdb:       rdb,
		prefix:    prefix,
		idle:      idle,
		retention: retention,
		now:       time.Now,
	}
}

func (r *RedisRegistry) key(userID string) string {
	return r.prefix + "session:" + userID
}

// Create открывает сессию, перезаписывая предыдущую.
func (r *RedisRegistry) Create(ctx context.Context, userID string) error {
	now := strconv.FormatInt(r.now().UnixNano(), 10)
	key := r.key(userID)

	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key, fieldLogin, now, fieldActivity, now)
		p.PExpire(ctx, key, r.retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis create session: %w", err)
	}
	return nil
}

// Touch обновляет время последней активности существующей сессии.
func (r *RedisRegistry) Touch(ctx context.Context, userID string) error {
	now := strconv.FormatInt(r.now().UnixNano(), 10)
	err := touchScript.Run(ctx, r.rdb, []string{r.key(userID)}, now, r.retention.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("redis touch session: %w", err)
	}
	return nil
}

// Remove удаляет сессию пользователя.
func (r *RedisRegistry) Remove(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis remove session: %w", err)
	}
	return nil
}

// RemoveAll удаляет все сессии пользователя.
func (r *RedisRegistry) RemoveAll(ctx context.Context, userID string) error {
	return r.Remove(ctx, userID)
}

// Info возвращает сведения о сессии или nil, если сессии нет.
func (r *RedisRegistry) Info(ctx context.Context, userID string) (*model.SessionInfo, error) {
	vals, err := r.rdb.HMGet(ctx, r.key(userID), fieldLogin, fieldActivity).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis session info: %w", err)
	}
	if len(vals) != 2 || vals[0] == nil || vals[1] == nil {
		return nil, nil
	}

	login, err := parseNanos(vals[0])
	if err != nil {
		return nil, err
	}
	activity, err := parseNanos(vals[1])
	if err != nil {
		return nil, err
	}

	return buildInfo(entry{loginTime: login, lastActivity: activity}, r.now(), r.idle), nil
}

func parseNanos(v interface{}) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("unexpected session field type %T", v)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session field: %w", err)
	}
	return time.Unix(0, n), nil
}

package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bankportal/internal/model"
)

func testUser() *model.User {
	return &model.User{
		ID:            "u-1",
		Username:      "thandi",
		AccountNumber: "ACC0000001",
		Role:          model.RoleCustomer,
	}
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestIssueAndVerify(t *testing.T) {
	svc := NewService("test-secret", time.Hour, NewMemoryBlacklist())

	raw, issued, err := svc.Issue(testUser())
	require.NoError(t, err)

	claims, err := svc.Verify(context.Background(), raw)
	require.NoError(t, err)

	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "thandi", claims.Username)
	assert.Equal(t, "ACC0000001", claims.AccountNumber)
	assert.Equal(t, model.RoleCustomer, claims.Role)
	assert.Equal(t, issued.SessionID, claims.SessionID)
	assert.NotEmpty(t, claims.SessionID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestVerify_Failures(t *testing.T) {
	ctx := context.Background()
	svc := NewService("test-secret", time.Hour, NewMemoryBlacklist())
	raw, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	_, err = svc.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrNoToken)

	_, err = svc.Verify(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalid)

	other := NewService("other-secret", time.Hour, NewMemoryBlacklist())
	_, err = other.Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalid)

	expired := NewService("test-secret", time.Hour, NewMemoryBlacklist())
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(testUser())
	require.NoError(t, err)
	_, err = svc.Verify(ctx, old)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestInvalidate_RevokesOnlyThatToken(t *testing.T) {
	ctx := context.Background()
	svc := NewService("test-secret", time.Hour, NewMemoryBlacklist())

	first, _, err := svc.Issue(testUser())
	require.NoError(t, err)
	second, _, err := svc.Issue(testUser())
	require.NoError(t, err)

	require.NoError(t, svc.Invalidate(ctx, first))

	_, err = svc.Verify(ctx, first)
	assert.ErrorIs(t, err, ErrRevoked)

	_, err = svc.Verify(ctx, second)
	assert.NoError(t, err)
}

func TestInvalidate_SharedThroughRedis(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)

	issuerSvc := NewService("test-secret", time.Hour, NewRedisBlacklist(rdb, "bp:"))
	otherInstance := NewService("test-secret", time.Hour, NewRedisBlacklist(rdb, "bp:"))

	raw, _, err := issuerSvc.Issue(testUser())
	require.NoError(t, err)
	require.NoError(t, issuerSvc.Invalidate(ctx, raw))

	_, err = otherInstance.Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrRevoked)

	key := "bp:revoked:" + fingerprint(raw)
	assert.True(t, mr.Exists(key))
	ttl := mr.TTL(key)
	assert.True(t, ttl > 59*time.Minute && ttl <= time.Hour, "ttl = %v", ttl)
}

func TestMemoryBlacklist_Purge(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBlacklist()

	require.NoError(t, b.Revoke(ctx, "expired", time.Now().Add(-time.Minute)))
	require.NoError(t, b.Revoke(ctx, "live", time.Now().Add(time.Hour)))

	assert.Equal(t, 1, b.Purge())

	revoked, err := b.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = b.IsRevoked(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, revoked)
}

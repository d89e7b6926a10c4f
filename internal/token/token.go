// Package token выпускает и проверяет подписанные токены сессии и ведёт список отозванных токенов.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/bankportal/internal/model"
)

var (
	// ErrNoToken возвращается, если токен не передан.
	ErrNoToken = errors.New("no token")
	// ErrInvalid возвращается при неверной подписи, истёкшем сроке или искажённом токене.
	ErrInvalid = errors.New("invalid signature or expired token")
	// ErrRevoked возвращается для токена, отозванного при выходе.
	ErrRevoked = errors.New("token revoked")
)

const issuer = "bankportal"

// Claims - содержимое токена сессии. Роль встроена, чтобы проверка прав не требовала обращения к БД.
type Claims struct {
	UserID        string     `json:"userId"`
	Username      string     `json:"username"`
	AccountNumber string     `json:"accountNumber"`
	Role          model.Role `json:"role"`
	SessionID     string     `json:"sessionId"`
	jwt.RegisteredClaims
}

// Blacklist хранит отозванные токены до истечения их срока.
type Blacklist interface {
	Revoke(ctx context.Context, token string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// Service выпускает, проверяет и отзывает токены.
type Service struct {
	secret    []byte
	ttl       time.Duration
	blacklist Blacklist
	now       func() time.Time
}

// NewService создаёт Service с HMAC-ключом secret и временем жизни токена ttl.
func NewService(secret string, ttl time.Duration, blacklist Blacklist) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		secret:    []byte(secret),
		ttl:       ttl,
		blacklist: blacklist,
		now:       time.Now,
	}
}

// TTL возвращает время жизни выпускаемых токенов.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue выпускает токен для пользователя с новым идентификатором сессии.
func (s *Service) Issue(u *model.User) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		UserID:        u.ID,
		Username:      u.Username,
		AccountNumber: u.AccountNumber,
		Role:          u.Role,
		SessionID:     uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify проверяет подпись, срок действия и отсутствие токена в списке отозванных.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrNoToken
	}

	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}

	revoked, err := s.IsRevoked(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}

	return claims, nil
}

func (s *Service) parse(raw string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	tok, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Invalidate добавляет токен в список отозванных до истечения его срока.
// Для нечитаемого токена используется полный TTL.
func (s *Service) Invalidate(ctx context.Context, raw string) error {
	if raw == "" {
		return ErrNoToken
	}

	expiresAt := s.now().Add(s.ttl)
	if claims, err := s.parse(raw); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	if err := s.blacklist.Revoke(ctx, raw, expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// IsRevoked сообщает, отозван ли токен.
func (s *Service) IsRevoked(ctx context.Context, raw string) (bool, error) {
	return s.blacklist.IsRevoked(ctx, raw)
}

// Package security содержит хеширование паролей.
package security

import (
	"golang.org/x/crypto/bcrypt"
)

// MinCost - минимальная стоимость bcrypt, допустимая для хранения паролей.
const MinCost = 10

// Hasher хеширует и проверяет пароли с помощью bcrypt.
type Hasher struct {
	cost int
}

// NewHasher создаёт Hasher с указанной стоимостью; значение приводится к диапазону [MinCost, bcrypt.MaxCost].
func NewHasher(cost int) *Hasher {
	if cost < MinCost {
		cost = MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash возвращает bcrypt-хеш пароля.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare сообщает, соответствует ли пароль сохранённому хешу.
func (h *Hasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Package ledger содержит арифметику баланса и пересчёт журнала операций.
// Функции пакета не обращаются к хранилищу: вызывающий код применяет их внутри своей транзакции.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bankportal/internal/model"
)

var (
	// ErrInsufficientFunds возвращается, если списание уводит баланс в минус.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNegativeReplay возвращается, если пересчёт журнала даёт отрицательный баланс.
	ErrNegativeReplay = errors.New("replayed balance is negative")
)

// NegativeReplayError сообщает о расхождении, которое пересчёт не может исправить:
// по журналу баланс отрицательный, и записывать его нельзя.
type NegativeReplayError struct {
	Stored   decimal.Decimal
	Replayed decimal.Decimal
}

func (e *NegativeReplayError) Error() string {
	return fmt.Sprintf("replayed balance %s is negative, stored balance %s",
		e.Replayed.StringFixed(2), e.Stored.StringFixed(2))
}

// Is позволяет сравнивать ошибку с ErrNegativeReplay через errors.Is.
func (e *NegativeReplayError) Is(target error) bool {
	return target == ErrNegativeReplay
}

// Apply вычисляет новый баланс после проводки amount.
func Apply(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	next := balance.Add(amount)
	if amount.IsNegative() && next.IsNegative() {
		return balance, ErrInsufficientFunds
	}
	return next, nil
}

// Patch описывает проводку, у которой сохранённый balanceAfter разошёлся с пересчётом.
type Patch struct {
	TransactionID string
	Stored        decimal.Decimal
	Expected      decimal.Decimal
}

// ReplayResult - итог пересчёта журнала.
type ReplayResult struct {
	Balance  decimal.Decimal
	Replayed int
	Patches  []Patch
}

// Replay проходит по проводкам в хронологическом порядке, начиная с нулевого баланса.
// Учитываются только проведённые операции; entries должны быть уже упорядочены.
func Replay(entries []model.Transaction) ReplayResult {
	var res ReplayResult
	running := decimal.Zero

	for _, e := range entries {
		if e.Status != model.TransactionCompleted {
			continue
		}
		running = running.Add(e.Amount)
		res.Replayed++
		if !e.BalanceAfter.Equal(running) {
			res.Patches = append(res.Patches, Patch{
				TransactionID: e.ID,
				Stored:        e.BalanceAfter,
				Expected:      running,
			})
		}
	}

	res.Balance = running
	return res
}

// Check проверяет, что итог пересчёта можно сохранить вместо баланса stored.
func (r ReplayResult) Check(stored decimal.Decimal) error {
	if r.Balance.IsNegative() {
		return &NegativeReplayError{Stored: stored, Replayed: r.Balance}
	}
	return nil
}

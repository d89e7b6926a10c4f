package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bankportal/internal/ledger"
	"github.com/mmeshcher/bankportal/internal/model"
)

const transactionColumns = `id, user_id, type, amount, currency, category, description,
	balance_after, status, payment_id, metadata, created_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t            model.Transaction
		txType       string
		amountCents  int64
		currency     string
		balanceAfter int64
		status       string
		metadata     []byte
	)
	err := row.Scan(&t.ID, &t.UserID, &txType, &amountCents, &currency, &t.Category, &t.Description,
		&balanceAfter, &status, &t.PaymentID, &metadata, &t.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}

	t.Type = model.TransactionType(txType)
	t.Amount = fromCents(amountCents)
	t.Currency = model.Currency(currency)
	t.BalanceAfter = fromCents(balanceAfter)
	t.Status = model.TransactionStatus(status)
	return &t, nil
}

// lockUser блокирует строку пользователя до конца транзакции и возвращает баланс в центах и валюту счёта.
func lockUser(ctx context.Context, tx pgx.Tx, userID string) (int64, string, error) {
	var (
		balance  int64
		currency string
	)
	err := tx.QueryRow(ctx,
		`SELECT balance, currency FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", ErrUserNotFound
		}
		return 0, "", fmt.Errorf("lock user for update: %w", err)
	}
	return balance, currency, nil
}

// applyEntryTx проводит изменение баланса и добавляет запись в журнал внутри tx.
func applyEntryTx(ctx context.Context, tx pgx.Tx, e model.LedgerEntry) (*model.Transaction, error) {
	balanceCents, currency, err := lockUser(ctx, tx, e.UserID)
	if err != nil {
		return nil, err
	}

	next, err := ledger.Apply(fromCents(balanceCents), e.Amount)
	if err != nil {
		return nil, err
	}

	if e.Currency != "" {
		currency = string(e.Currency)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET balance = $2, updated_at = now() WHERE id = $1`,
		e.UserID, toCents(next),
	); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	t, err := scanTransaction(tx.QueryRow(ctx,
		`INSERT INTO transactions (id, user_id, type, amount, currency, category, description,
			balance_after, status, payment_id, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		 RETURNING `+transactionColumns,
		uuid.NewString(), e.UserID, string(e.Type), toCents(e.Amount), currency, e.Category,
		e.Description, toCents(next), string(model.TransactionCompleted), e.PaymentID, string(metadata),
	))
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// ApplyLedgerEntry атомарно меняет баланс пользователя и добавляет проводку с новым balanceAfter.
func (r *PostgresRepository) ApplyLedgerEntry(ctx context.Context, e model.LedgerEntry) (*model.Transaction, error) {
	var result *model.Transaction

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		t, err := applyEntryTx(ctx, tx, e)
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListTransactions возвращает журнал операций пользователя, новые первыми.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY seq DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Recalculate пересчитывает баланс по журналу и исправляет разошедшиеся balanceAfter.
// Строка пользователя блокируется, чтобы параллельные проводки не попали между чтением журнала и записью баланса.
func (r *PostgresRepository) Recalculate(ctx context.Context, userID string) (*model.RecalculationResult, error) {
	var result *model.RecalculationResult

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		previous, _, err := lockUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY seq`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("select transactions: %w", err)
		}

		var entries []model.Transaction
		for rows.Next() {
			t, err := scanTransaction(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan transaction: %w", err)
			}
			entries = append(entries, *t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		replay := ledger.Replay(entries)
		if err := replay.Check(fromCents(previous)); err != nil {
			return err
		}

		for _, p := range replay.Patches {
			if _, err := tx.Exec(ctx,
				`UPDATE transactions SET balance_after = $2 WHERE id = $1`,
				p.TransactionID, toCents(p.Expected),
			); err != nil {
				return fmt.Errorf("patch transaction: %w", err)
			}
		}

		if _, err := tx.Exec(ctx,
			`UPDATE users SET balance = $2, updated_at = now() WHERE id = $1`,
			userID, toCents(replay.Balance),
		); err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		result = &model.RecalculationResult{
			PreviousBalance: fromCents(previous),
			Balance:         replay.Balance,
			Transactions:    replay.Replayed,
			Patched:         len(replay.Patches),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

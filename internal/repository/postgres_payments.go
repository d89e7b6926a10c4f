package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bankportal/internal/model"
)

const paymentColumns = `id, payment_id, user_id, amount, currency, recipient_name, recipient_bank,
	recipient_account, swift_code, provider, payment_reference, status, status_history,
	created_ip, user_agent, created_at, updated_at`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p           model.Payment
		amountCents int64
		currency    string
		provider    string
		status      string
		history     []byte
	)
	err := row.Scan(&p.ID, &p.PaymentID, &p.UserID, &amountCents, &currency, &p.RecipientName,
		&p.RecipientBank, &p.RecipientAccount, &p.SwiftCode, &provider, &p.PaymentReference,
		&status, &history, &p.CreatedIP, &p.UserAgent, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(history, &p.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}

	p.Amount = fromCents(amountCents)
	p.Currency = model.Currency(currency)
	p.Provider = model.Provider(provider)
	p.Status = model.PaymentStatus(status)
	return &p, nil
}

func collectPayments(rows pgx.Rows) ([]model.Payment, error) {
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreatePayment сохраняет платёж в статусе pending. Баланс при этом не меняется.
func (r *PostgresRepository) CreatePayment(ctx context.Context, np model.NewPayment) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, payment_id, user_id, amount, currency, recipient_name, recipient_bank,
			recipient_account, swift_code, provider, payment_reference, status, created_ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING `+paymentColumns,
		uuid.NewString(), np.PaymentID, np.UserID, toCents(np.Amount), string(np.Currency),
		np.RecipientName, np.RecipientBank, np.RecipientAccount, np.SwiftCode, string(np.Provider),
		np.PaymentReference, string(model.PaymentStatusPending), np.CreatedIP, np.UserAgent,
	)

	p, err := scanPayment(row)
	if err != nil {
		if dup := asDuplicate(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return p, nil
}

// ListPaymentsByUser возвращает платежи пользователя, новые первыми.
func (r *PostgresRepository) ListPaymentsByUser(ctx context.Context, userID string) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	return collectPayments(rows)
}

// GetPaymentForUser возвращает платёж по внутреннему или публичному идентификатору с проверкой владельца.
func (r *PostgresRepository) GetPaymentForUser(ctx context.Context, userID, paymentID string) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE (id = $1 OR payment_id = $1) AND user_id = $2`,
		paymentID, userID,
	)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// ListPayments возвращает все платежи, при непустом status только в этом статусе.
func (r *PostgresRepository) ListPayments(ctx context.Context, status model.PaymentStatus) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE $1 = '' OR status = $1
		 ORDER BY created_at DESC`,
		string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	return collectPayments(rows)
}

// PaymentStats возвращает количество и сумму платежей по статусам.
func (r *PostgresRepository) PaymentStats(ctx context.Context) ([]model.PaymentStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(amount), 0)
		 FROM payments
		 GROUP BY status
		 ORDER BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("select payment stats: %w", err)
	}
	defer rows.Close()

	var res []model.PaymentStat
	for rows.Next() {
		var (
			status string
			count  int64
			total  int64
		)
		if err := rows.Scan(&status, &count, &total); err != nil {
			return nil, fmt.Errorf("scan payment stat: %w", err)
		}
		res = append(res, model.PaymentStat{
			Status: model.PaymentStatus(status),
			Count:  count,
			Total:  fromCents(total),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DecidePayment переводит платёж в новый статус одной транзакцией.
// Строка платежа блокируется первой, затем строка плательщика: второе решение по тому же платежу
// дождётся фиксации первого и увидит конечный статус, а списания одного клиента выполняются по очереди.
func (r *PostgresRepository) DecidePayment(ctx context.Context, d model.Decision) (*model.Payment, error) {
	var result *model.Payment

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		p, err := scanPayment(tx.QueryRow(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE id = $1 OR payment_id = $1 FOR UPDATE`,
			d.PaymentID,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return fmt.Errorf("lock payment: %w", err)
		}

		if !p.Status.CanTransitionTo(d.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, d.Status)
		}

		if d.Status == model.PaymentStatusCompleted {
			entry := debitEntry(p, d)
			if _, err := applyEntryTx(ctx, tx, entry); err != nil {
				return err
			}
		}

		change := model.StatusChange{
			From:      p.Status,
			To:        d.Status,
			UpdatedBy: d.Actor,
			Reason:    d.Reason,
			Timestamp: time.Now().UTC(),
		}
		raw, err := json.Marshal([]model.StatusChange{change})
		if err != nil {
			return fmt.Errorf("encode status change: %w", err)
		}

		updated, err := scanPayment(tx.QueryRow(ctx,
			`UPDATE payments
			 SET status = $2, status_history = status_history || $3::jsonb, updated_at = now()
			 WHERE id = $1
			 RETURNING `+paymentColumns,
			p.ID, string(d.Status), string(raw),
		))
		if err != nil {
			return fmt.Errorf("update payment status: %w", err)
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// debitEntry описывает списание по одобренному платежу.
func debitEntry(p *model.Payment, d model.Decision) model.LedgerEntry {
	return model.LedgerEntry{
		UserID:      p.UserID,
		Amount:      p.Amount.Neg(),
		Currency:    p.Currency,
		Type:        model.TransactionPayment,
		Category:    "International Payment",
		Description: fmt.Sprintf("Payment to %s (%s)", p.RecipientName, p.PaymentID),
		PaymentID:   p.PaymentID,
		Metadata: model.TransactionMetadata{
			IP:               d.IP,
			UserAgent:        d.UserAgent,
			RecipientName:    p.RecipientName,
			RecipientAccount: p.RecipientAccount,
			SwiftCode:        p.SwiftCode,
			ApprovedBy:       d.Actor,
		},
	}
}

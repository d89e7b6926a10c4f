package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/bankportal/internal/model"
)

const beneficiaryColumns = `id, user_id, name, bank_name, account_number, swift_code, currency,
	usage_count, last_used_at, created_at`

func scanBeneficiary(row pgx.Row) (*model.Beneficiary, error) {
	var (
		b        model.Beneficiary
		currency string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.BankName, &b.AccountNumber, &b.SwiftCode,
		&currency, &b.UsageCount, &b.LastUsedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.Currency = model.Currency(currency)
	return &b, nil
}

// CreateBeneficiary сохраняет получателя. Номер счёта уникален в пределах владельца.
func (r *PostgresRepository) CreateBeneficiary(ctx context.Context, b model.Beneficiary) (*model.Beneficiary, error) {
	created, err := scanBeneficiary(r.pool.QueryRow(ctx,
		`INSERT INTO beneficiaries (id, user_id, name, bank_name, account_number, swift_code, currency)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+beneficiaryColumns,
		uuid.NewString(), b.UserID, b.Name, b.BankName, b.AccountNumber, b.SwiftCode, string(b.Currency),
	))
	if err != nil {
		if dup := asDuplicate(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("create beneficiary: %w", err)
	}
	return created, nil
}

// ListBeneficiaries возвращает получателей пользователя, часто используемые первыми.
func (r *PostgresRepository) ListBeneficiaries(ctx context.Context, userID string) ([]model.Beneficiary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+beneficiaryColumns+` FROM beneficiaries
		 WHERE user_id = $1
		 ORDER BY usage_count DESC, name`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select beneficiaries: %w", err)
	}
	defer rows.Close()

	var res []model.Beneficiary
	for rows.Next() {
		b, err := scanBeneficiary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		res = append(res, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteBeneficiary удаляет получателя пользователя.
func (r *PostgresRepository) DeleteBeneficiary(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM beneficiaries WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete beneficiary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBeneficiaryNotFound
	}
	return nil
}

// MarkBeneficiaryUsed увеличивает счётчик использования получателя.
func (r *PostgresRepository) MarkBeneficiaryUsed(ctx context.Context, userID, id string) (*model.Beneficiary, error) {
	b, err := scanBeneficiary(r.pool.QueryRow(ctx,
		`UPDATE beneficiaries SET usage_count = usage_count + 1, last_used_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+beneficiaryColumns,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBeneficiaryNotFound
		}
		return nil, fmt.Errorf("mark beneficiary used: %w", err)
	}
	return b, nil
}

// MarkBeneficiaryUsedByAccount увеличивает счётчик получателя с указанным номером счёта.
func (r *PostgresRepository) MarkBeneficiaryUsedByAccount(ctx context.Context, userID, accountNumber string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE beneficiaries SET usage_count = usage_count + 1, last_used_at = now()
		 WHERE user_id = $1 AND account_number = $2`,
		userID, accountNumber,
	)
	if err != nil {
		return fmt.Errorf("mark beneficiary used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBeneficiaryNotFound
	}
	return nil
}

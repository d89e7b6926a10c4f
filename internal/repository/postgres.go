// Package repository содержит реализации хранилища банковского портала: PostgreSQL и in-memory.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/bankportal/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const userColumns = `id, first_name, last_name, id_number, account_number, username, password_hash,
	role, balance, currency, mfa_enabled, mfa_setup_complete, mfa_secret, mfa_backup_codes,
	created_at, updated_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при сбое сериализации, взаимной блокировке или обрыве соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(50*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return pgconn.SafeToRetry(err)
}

// inTx выполняет fn в транзакции с повтором при конфликте.
func (r *PostgresRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func asDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return &DuplicateError{Field: duplicateField(pgErr.ConstraintName)}
	}
	return nil
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var (
		u            model.User
		role         string
		currency     string
		balanceCents int64
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.IDNumber, &u.AccountNumber, &u.Username,
		&u.PasswordHash, &role, &balanceCents, &currency, &u.MFAEnabled, &u.MFASetupComplete,
		&u.MFASecret, &u.MFABackupCodes, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.Currency = model.Currency(currency)
	u.Balance = fromCents(balanceCents)
	return &u, nil
}

// CreateUser создаёт нового пользователя с нулевым балансом.
func (r *PostgresRepository) CreateUser(ctx context.Context, nu model.NewUser) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (id, first_name, last_name, id_number, account_number, username, password_hash, role, currency)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+userColumns,
		uuid.NewString(), nu.FirstName, nu.LastName, nu.IDNumber, nu.AccountNumber,
		strings.ToLower(nu.Username), nu.PasswordHash, string(nu.Role), string(nu.Currency),
	)

	u, err := scanUser(row)
	if err != nil {
		if dup := asDuplicate(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByCredentials ищет пользователя по логину и номеру счёта.
func (r *PostgresRepository) GetUserByCredentials(ctx context.Context, username, accountNumber string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1 AND account_number = $2`,
		strings.ToLower(username), accountNumber,
	)
	return r.oneUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return r.oneUser(row)
}

func (r *PostgresRepository) oneUser(row pgx.Row) (*model.User, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// UpdateMFA сохраняет состояние второго фактора целиком.
func (r *PostgresRepository) UpdateMFA(ctx context.Context, userID string, s model.MFASettings) error {
	codes := s.BackupCodes
	if codes == nil {
		codes = []string{}
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE users
		 SET mfa_enabled = $2, mfa_setup_complete = $3, mfa_secret = $4, mfa_backup_codes = $5, updated_at = now()
		 WHERE id = $1`,
		userID, s.Enabled, s.SetupComplete, s.Secret, codes,
	)
	if err != nil {
		return fmt.Errorf("update mfa: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ConsumeBackupCode удаляет хеш резервного кода, если он ещё не использован, и возвращает число оставшихся кодов.
// Проверка и удаление выполняются одним UPDATE, поэтому код нельзя использовать дважды.
func (r *PostgresRepository) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (int, error) {
	var remaining int
	err := r.pool.QueryRow(ctx,
		`UPDATE users
		 SET mfa_backup_codes = array_remove(mfa_backup_codes, $2), updated_at = now()
		 WHERE id = $1 AND $2 = ANY(mfa_backup_codes)
		 RETURNING cardinality(mfa_backup_codes)`,
		userID, codeHash,
	).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBackupCodeNotFound
		}
		return 0, fmt.Errorf("consume backup code: %w", err)
	}
	return remaining, nil
}

// UpdateUserRole меняет роль пользователя.
func (r *PostgresRepository) UpdateUserRole(ctx context.Context, id string, role model.Role) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns,
		id, string(role),
	)
	return r.oneUser(row)
}

// DeleteStaff удаляет учётную запись сотрудника. Клиенты этим методом не удаляются,
// как и сотрудники, за которыми числятся платежи или операции.
func (r *PostgresRepository) DeleteStaff(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var role string
		err := tx.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&role)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}
		if !model.Role(role).IsStaff() {
			return ErrUserNotFound
		}

		var history bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payments WHERE user_id = $1)
				OR EXISTS (SELECT 1 FROM transactions WHERE user_id = $1)`,
			id,
		).Scan(&history)
		if err != nil {
			return fmt.Errorf("check user history: %w", err)
		}
		if history {
			return ErrUserHasHistory
		}

		if _, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete staff: %w", err)
		}
		return nil
	})
}

// ListStaff возвращает сотрудников и администраторов.
func (r *PostgresRepository) ListStaff(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE role IN ($1, $2) ORDER BY created_at`,
		string(model.RoleEmployee), string(model.RoleAdmin),
	)
	if err != nil {
		return nil, fmt.Errorf("select staff: %w", err)
	}
	defer rows.Close()

	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		res = append(res, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

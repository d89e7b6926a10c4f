package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bankportal/internal/ledger"
	"github.com/mmeshcher/bankportal/internal/model"
)

// store - общий контракт PostgresRepository и MemoryRepository, проверяемый одними тестами.
type store interface {
	CreateUser(ctx context.Context, nu model.NewUser) (*model.User, error)
	GetUserByCredentials(ctx context.Context, username, accountNumber string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateMFA(ctx context.Context, userID string, s model.MFASettings) error
	ConsumeBackupCode(ctx context.Context, userID, codeHash string) (int, error)
	UpdateUserRole(ctx context.Context, id string, role model.Role) (*model.User, error)
	DeleteStaff(ctx context.Context, id string) error
	ListStaff(ctx context.Context) ([]model.User, error)
	CreatePayment(ctx context.Context, np model.NewPayment) (*model.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]model.Payment, error)
	GetPaymentForUser(ctx context.Context, userID, paymentID string) (*model.Payment, error)
	ListPayments(ctx context.Context, status model.PaymentStatus) ([]model.Payment, error)
	PaymentStats(ctx context.Context) ([]model.PaymentStat, error)
	DecidePayment(ctx context.Context, d model.Decision) (*model.Payment, error)
	ApplyLedgerEntry(ctx context.Context, e model.LedgerEntry) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID string) ([]model.Transaction, error)
	Recalculate(ctx context.Context, userID string) (*model.RecalculationResult, error)
	CreateBeneficiary(ctx context.Context, b model.Beneficiary) (*model.Beneficiary, error)
	ListBeneficiaries(ctx context.Context, userID string) ([]model.Beneficiary, error)
	DeleteBeneficiary(ctx context.Context, userID, id string) error
	MarkBeneficiaryUsed(ctx context.Context, userID, id string) (*model.Beneficiary, error)
	MarkBeneficiaryUsedByAccount(ctx context.Context, userID, accountNumber string) error
}

var (
	_ store = (*MemoryRepository)(nil)
	_ store = (*PostgresRepository)(nil)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newCustomer(t *testing.T, repo store, n int) *model.User {
	t.Helper()

	u, err := repo.CreateUser(context.Background(), model.NewUser{
		FirstName:     "Thandi",
		LastName:      "Nkosi",
		IDNumber:      fmt.Sprintf("90010150%05d", n),
		AccountNumber: fmt.Sprintf("ACC%07d", n),
		Username:      fmt.Sprintf("Customer_%d", n),
		PasswordHash:  "hash",
		Role:          model.RoleCustomer,
		Currency:      model.DefaultCurrency,
	})
	require.NoError(t, err)
	return u
}

func deposit(t *testing.T, repo store, userID, amount string) {
	t.Helper()

	_, err := repo.ApplyLedgerEntry(context.Background(), model.LedgerEntry{
		UserID:   userID,
		Amount:   dec(amount),
		Type:     model.TransactionDeposit,
		Category: "Deposit",
	})
	require.NoError(t, err)
}

func newPendingPayment(t *testing.T, repo store, userID, amount, paymentID string) *model.Payment {
	t.Helper()

	p, err := repo.CreatePayment(context.Background(), model.NewPayment{
		PaymentID:        paymentID,
		UserID:           userID,
		Amount:           dec(amount),
		Currency:         "USD",
		RecipientName:    "John Smith",
		RecipientBank:    "Chase",
		RecipientAccount: "US1234567890",
		SwiftCode:        "CHASUS33",
		Provider:         "SWIFT",
	})
	require.NoError(t, err)
	return p
}

func approve(paymentID string) model.Decision {
	return model.Decision{
		PaymentID: paymentID,
		Status:    model.PaymentStatusCompleted,
		ActorID:   "emp-1",
		Actor:     "employee1",
	}
}

func runContract(t *testing.T, newStore func(t *testing.T) store) {
	t.Run("users", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)

		assert.Equal(t, "customer_1", u.Username)
		assert.True(t, u.Balance.IsZero())

		got, err := repo.GetUserByCredentials(ctx, "CUSTOMER_1", "ACC0000001")
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		_, err = repo.GetUserByCredentials(ctx, "customer_1", "ACC0000002")
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.GetUserByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrUserNotFound)

		_, err = repo.CreateUser(ctx, model.NewUser{
			FirstName: "Other", LastName: "User", IDNumber: "1111111111111",
			AccountNumber: "ACC0000001", Username: "other", PasswordHash: "h",
			Role: model.RoleCustomer, Currency: model.DefaultCurrency,
		})
		require.ErrorIs(t, err, ErrDuplicateKey)
		var dup *DuplicateError
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, "accountNumber", dup.Field)
	})

	t.Run("backup codes are single use", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)

		require.NoError(t, repo.UpdateMFA(ctx, u.ID, model.MFASettings{
			Enabled: true, SetupComplete: true, Secret: "SECRET", BackupCodes: []string{"h1", "h2"},
		}))

		remaining, err := repo.ConsumeBackupCode(ctx, u.ID, "h1")
		require.NoError(t, err)
		assert.Equal(t, 1, remaining)

		_, err = repo.ConsumeBackupCode(ctx, u.ID, "h1")
		assert.ErrorIs(t, err, ErrBackupCodeNotFound)

		got, err := repo.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"h2"}, got.MFABackupCodes)
		assert.True(t, got.MFAActive())
	})

	t.Run("staff management", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		customer := newCustomer(t, repo, 1)
		staff := newCustomer(t, repo, 2)

		updated, err := repo.UpdateUserRole(ctx, staff.ID, model.RoleEmployee)
		require.NoError(t, err)
		assert.Equal(t, model.RoleEmployee, updated.Role)

		list, err := repo.ListStaff(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, staff.ID, list[0].ID)

		assert.ErrorIs(t, repo.DeleteStaff(ctx, customer.ID), ErrUserNotFound)
		require.NoError(t, repo.DeleteStaff(ctx, staff.ID))

		_, err = repo.GetUserByID(ctx, staff.ID)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("staff with payment history cannot be deleted", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		deposit(t, repo, u.ID, "50.00")
		p := newPendingPayment(t, repo, u.ID, "40.00", "PAY-20260101-00000009")

		_, err := repo.UpdateUserRole(ctx, u.ID, model.RoleEmployee)
		require.NoError(t, err)

		assert.ErrorIs(t, repo.DeleteStaff(ctx, u.ID), ErrUserHasHistory)

		got, err := repo.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(dec("50.00")))

		still, err := repo.GetPaymentForUser(ctx, u.ID, p.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPending, still.Status)

		txs, err := repo.ListTransactions(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("staff with only transactions cannot be deleted", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		deposit(t, repo, u.ID, "10.00")

		_, err := repo.UpdateUserRole(ctx, u.ID, model.RoleAdmin)
		require.NoError(t, err)

		assert.ErrorIs(t, repo.DeleteStaff(ctx, u.ID), ErrUserHasHistory)

		_, err = repo.GetUserByID(ctx, u.ID)
		assert.NoError(t, err)
	})

	t.Run("approval debits balance", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		deposit(t, repo, u.ID, "50.00")
		p := newPendingPayment(t, repo, u.ID, "40.00", "PAY-20260101-00000001")

		decided, err := repo.DecidePayment(ctx, approve(p.PaymentID))
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusCompleted, decided.Status)
		require.Len(t, decided.StatusHistory, 1)
		assert.Equal(t, model.PaymentStatusPending, decided.StatusHistory[0].From)
		assert.Equal(t, "employee1", decided.StatusHistory[0].UpdatedBy)

		got, err := repo.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(dec("10.00")), got.Balance.String())

		txs, err := repo.ListTransactions(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, txs, 2)
		assert.True(t, txs[0].Amount.Equal(dec("-40.00")))
		assert.True(t, txs[0].BalanceAfter.Equal(dec("10.00")))
		assert.Equal(t, p.PaymentID, txs[0].PaymentID)
		assert.Equal(t, "employee1", txs[0].Metadata.ApprovedBy)

		_, err = repo.DecidePayment(ctx, model.Decision{PaymentID: p.ID, Status: model.PaymentStatusFailed})
		assert.ErrorIs(t, err, ErrInvalidTransition)

		txs, err = repo.ListTransactions(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 2)
	})

	t.Run("approval with insufficient funds changes nothing", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		deposit(t, repo, u.ID, "50.00")
		p := newPendingPayment(t, repo, u.ID, "100.00", "PAY-20260101-00000002")

		_, err := repo.DecidePayment(ctx, approve(p.PaymentID))
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		got, err := repo.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(dec("50.00")))

		txs, err := repo.ListTransactions(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 1)

		still, err := repo.GetPaymentForUser(ctx, u.ID, p.PaymentID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPending, still.Status)
		assert.Empty(t, still.StatusHistory)
	})

	t.Run("rejection has no balance effect", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		p := newPendingPayment(t, repo, u.ID, "10.00", "PAY-20260101-00000003")

		processing, err := repo.DecidePayment(ctx, model.Decision{PaymentID: p.ID, Status: model.PaymentStatusProcessing})
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusProcessing, processing.Status)

		cancelled, err := repo.DecidePayment(ctx, model.Decision{
			PaymentID: p.ID, Status: model.PaymentStatusCancelled, Reason: "customer request",
		})
		require.NoError(t, err)
		require.Len(t, cancelled.StatusHistory, 2)
		assert.Equal(t, "customer request", cancelled.StatusHistory[1].Reason)

		txs, err := repo.ListTransactions(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, txs)

		_, err = repo.DecidePayment(ctx, model.Decision{PaymentID: "missing", Status: model.PaymentStatusFailed})
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})

	t.Run("concurrent approvals of one payment", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		deposit(t, repo, u.ID, "100.00")
		p := newPendingPayment(t, repo, u.ID, "30.00", "PAY-20260101-00000004")

		const workers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.DecidePayment(ctx, approve(p.PaymentID))
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, succeeded)
		got, err := repo.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(dec("70.00")), got.Balance.String())
	})

	t.Run("concurrent approvals against one balance", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		deposit(t, repo, u.ID, "50.00")

		var ids []string
		for i := 0; i < 5; i++ {
			p := newPendingPayment(t, repo, u.ID, "20.00", fmt.Sprintf("PAY-20260101-1000000%d", i))
			ids = append(ids, p.PaymentID)
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, _ = repo.DecidePayment(ctx, approve(id))
			}(id)
		}
		wg.Wait()

		got, err := repo.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance.Equal(dec("10.00")), got.Balance.String())

		txs, err := repo.ListTransactions(ctx, u.ID)
		require.NoError(t, err)
		assert.Len(t, txs, 3)
		assert.True(t, txs[0].BalanceAfter.Equal(got.Balance))
	})

	t.Run("recalculate is idempotent", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		deposit(t, repo, u.ID, "100.00")
		deposit(t, repo, u.ID, "-25.50")

		res, err := repo.Recalculate(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Transactions)
		assert.Zero(t, res.Patched)
		assert.True(t, res.Balance.Equal(dec("74.50")))

		res, err = repo.Recalculate(ctx, u.ID)
		require.NoError(t, err)
		assert.Zero(t, res.Patched)
		assert.True(t, res.PreviousBalance.Equal(res.Balance))
	})

	t.Run("debit below zero is rejected", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)

		_, err := repo.ApplyLedgerEntry(ctx, model.LedgerEntry{UserID: u.ID, Amount: dec("-0.01"), Type: model.TransactionWithdrawal})
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		txs, err := repo.ListTransactions(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, txs)
	})

	t.Run("payments listing and stats", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		a := newCustomer(t, repo, 1)
		b := newCustomer(t, repo, 2)
		deposit(t, repo, a.ID, "500.00")

		p1 := newPendingPayment(t, repo, a.ID, "100.00", "PAY-20260101-20000001")
		newPendingPayment(t, repo, a.ID, "50.00", "PAY-20260101-20000002")
		newPendingPayment(t, repo, b.ID, "25.00", "PAY-20260101-20000003")
		_, err := repo.DecidePayment(ctx, approve(p1.PaymentID))
		require.NoError(t, err)

		_, err = repo.CreatePayment(ctx, model.NewPayment{
			PaymentID: "PAY-20260101-20000001", UserID: a.ID, Amount: dec("1"), Currency: "USD",
			RecipientName: "X", RecipientBank: "Y", RecipientAccount: "Z", SwiftCode: "CHASUS33", Provider: "SWIFT",
		})
		assert.ErrorIs(t, err, ErrDuplicateKey)

		mine, err := repo.ListPaymentsByUser(ctx, a.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		_, err = repo.GetPaymentForUser(ctx, b.ID, p1.PaymentID)
		assert.ErrorIs(t, err, ErrPaymentNotFound)

		pending, err := repo.ListPayments(ctx, model.PaymentStatusPending)
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		all, err := repo.ListPayments(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		stats, err := repo.PaymentStats(ctx)
		require.NoError(t, err)
		require.Len(t, stats, 2)
		assert.Equal(t, model.PaymentStatusCompleted, stats[0].Status)
		assert.Equal(t, int64(1), stats[0].Count)
		assert.True(t, stats[0].Total.Equal(dec("100.00")))
		assert.Equal(t, model.PaymentStatusPending, stats[1].Status)
		assert.Equal(t, int64(2), stats[1].Count)
		assert.True(t, stats[1].Total.Equal(dec("75.00")))
	})

	t.Run("beneficiaries", func(t *testing.T) {
		ctx := context.Background()
		repo := newStore(t)
		u := newCustomer(t, repo, 1)
		other := newCustomer(t, repo, 2)

		b, err := repo.CreateBeneficiary(ctx, model.Beneficiary{
			UserID: u.ID, Name: "John Smith", BankName: "Chase",
			AccountNumber: "US1234567890", SwiftCode: "CHASUS33", Currency: "USD",
		})
		require.NoError(t, err)
		assert.Zero(t, b.UsageCount)

		_, err = repo.CreateBeneficiary(ctx, model.Beneficiary{
			UserID: u.ID, Name: "Dup", BankName: "Chase",
			AccountNumber: "US1234567890", SwiftCode: "CHASUS33", Currency: "USD",
		})
		assert.ErrorIs(t, err, ErrDuplicateKey)

		used, err := repo.MarkBeneficiaryUsed(ctx, u.ID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), used.UsageCount)
		assert.NotNil(t, used.LastUsedAt)

		require.NoError(t, repo.MarkBeneficiaryUsedByAccount(ctx, u.ID, "US1234567890"))
		assert.ErrorIs(t, repo.MarkBeneficiaryUsedByAccount(ctx, u.ID, "UNKNOWN"), ErrBeneficiaryNotFound)

		list, err := repo.ListBeneficiaries(ctx, u.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, int64(2), list[0].UsageCount)

		assert.ErrorIs(t, repo.DeleteBeneficiary(ctx, other.ID, b.ID), ErrBeneficiaryNotFound)
		require.NoError(t, repo.DeleteBeneficiary(ctx, u.ID, b.ID))

		list, err = repo.ListBeneficiaries(ctx, u.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

// assertNegativeReplayRefused проверяет, что пересчёт не сохраняет отрицательный баланс.
// breakHistory переводит пополнение пользователя в статус failed в обход репозитория.
func assertNegativeReplayRefused(t *testing.T, repo store, breakHistory func(userID string)) {
	t.Helper()

	ctx := context.Background()
	u := newCustomer(t, repo, 1)
	deposit(t, repo, u.ID, "100.00")
	deposit(t, repo, u.ID, "-60.00")

	breakHistory(u.ID)

	_, err := repo.Recalculate(ctx, u.ID)
	require.ErrorIs(t, err, ErrNegativeReplay)

	var negative *ledger.NegativeReplayError
	require.True(t, errors.As(err, &negative))
	assert.True(t, negative.Stored.Equal(dec("40.00")), negative.Stored.String())
	assert.True(t, negative.Replayed.Equal(dec("-60.00")), negative.Replayed.String())

	got, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(dec("40.00")), got.Balance.String())

	txs, err := repo.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].BalanceAfter.Equal(dec("40.00")))
	assert.True(t, txs[1].BalanceAfter.Equal(dec("100.00")))
}

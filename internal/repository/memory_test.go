package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/bankportal/internal/model"
)

func TestMemoryRepository(t *testing.T) {
	runContract(t, func(*testing.T) store { return NewMemoryRepository() })
}

func TestMemoryRepository_RecalculatePatchesDrift(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	u := newCustomer(t, repo, 1)
	deposit(t, repo, u.ID, "100.00")
	deposit(t, repo, u.ID, "20.00")

	repo.mu.Lock()
	repo.txs[u.ID][0].BalanceAfter = dec("90.00")
	repo.users[u.ID].Balance = dec("999.00")
	repo.mu.Unlock()

	res, err := repo.Recalculate(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Patched)
	assert.True(t, res.PreviousBalance.Equal(dec("999.00")))
	assert.True(t, res.Balance.Equal(dec("120.00")))

	txs, err := repo.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, txs[1].BalanceAfter.Equal(dec("100.00")))

	again, err := repo.Recalculate(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Patched)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	u := newCustomer(t, repo, 1)

	u.Role = "Admin"
	u.MFABackupCodes = append(u.MFABackupCodes, "x")

	got, err := repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleCustomer, got.Role)
	assert.Empty(t, got.MFABackupCodes)
}

func TestMemoryRepository_RecalculateRefusesNegativeBalance(t *testing.T) {
	repo := NewMemoryRepository()
	assertNegativeReplayRefused(t, repo, func(userID string) {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		for i := range repo.txs[userID] {
			if repo.txs[userID][i].Type == model.TransactionDeposit {
				repo.txs[userID][i].Status = model.TransactionFailed
			}
		}
	})
}

package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bankportal/internal/ledger"
	"github.com/mmeshcher/bankportal/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Все операции выполняются под одной блокировкой,
// поэтому проверка и запись в DecidePayment и ApplyLedgerEntry не разделяются другими запросами.
type MemoryRepository struct {
	mu sync.Mutex

	users      map[string]*model.User
	usernames  map[string]string
	accounts   map[string]string
	idNumbers  map[string]string
	payments   map[string]*model.Payment
	paymentIDs map[string]string
	txs        map[string][]model.Transaction
	benefs     map[string]*model.Beneficiary

	now func() time.Time
}

// NewMemoryRepository создаёт пустое хранилище.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:      make(map[string]*model.User),
		usernames:  make(map[string]string),
		accounts:   make(map[string]string),
		idNumbers:  make(map[string]string),
		payments:   make(map[string]*model.Payment),
		paymentIDs: make(map[string]string),
		txs:        make(map[string][]model.Transaction),
		benefs:     make(map[string]*model.Beneficiary),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ping всегда успешен.
func (r *MemoryRepository) Ping(context.Context) error { return nil }

// Close ничего не освобождает.
func (r *MemoryRepository) Close() error { return nil }

func cloneUser(u *model.User) *model.User {
	c := *u
	c.MFABackupCodes = slices.Clone(u.MFABackupCodes)
	return &c
}

func clonePayment(p *model.Payment) *model.Payment {
	c := *p
	c.StatusHistory = slices.Clone(p.StatusHistory)
	return &c
}

func cloneBeneficiary(b *model.Beneficiary) *model.Beneficiary {
	c := *b
	if b.LastUsedAt != nil {
		t := *b.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

// CreateUser создаёт нового пользователя с нулевым балансом.
func (r *MemoryRepository) CreateUser(_ context.Context, nu model.NewUser) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username := strings.ToLower(nu.Username)
	switch {
	case r.usernames[username] != "":
		return nil, &DuplicateError{Field: "username"}
	case r.accounts[nu.AccountNumber] != "":
		return nil, &DuplicateError{Field: "accountNumber"}
	case r.idNumbers[nu.IDNumber] != "":
		return nil, &DuplicateError{Field: "idNumber"}
	}

	now := r.now()
	u := &model.User{
		ID:             uuid.NewString(),
		FirstName:      nu.FirstName,
		LastName:       nu.LastName,
		IDNumber:       nu.IDNumber,
		AccountNumber:  nu.AccountNumber,
		Username:       username,
		PasswordHash:   nu.PasswordHash,
		Role:           nu.Role,
		Balance:        decimal.Zero,
		Currency:       nu.Currency,
		MFABackupCodes: []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	r.users[u.ID] = u
	r.usernames[username] = u.ID
	r.accounts[u.AccountNumber] = u.ID
	r.idNumbers[u.IDNumber] = u.ID

	return cloneUser(u), nil
}

// GetUserByCredentials ищет пользователя по логину и номеру счёта.
func (r *MemoryRepository) GetUserByCredentials(_ context.Context, username, accountNumber string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[r.usernames[strings.ToLower(username)]]
	if !ok || u.AccountNumber != accountNumber {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return cloneUser(u), nil
}

// UpdateMFA сохраняет состояние второго фактора целиком.
func (r *MemoryRepository) UpdateMFA(_ context.Context, userID string, s model.MFASettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	u.MFAEnabled = s.Enabled
	u.MFASetupComplete = s.SetupComplete
	u.MFASecret = s.Secret
	u.MFABackupCodes = slices.Clone(s.BackupCodes)
	if u.MFABackupCodes == nil {
		u.MFABackupCodes = []string{}
	}
	u.UpdatedAt = r.now()
	return nil
}

// ConsumeBackupCode удаляет хеш резервного кода и возвращает число оставшихся кодов.
func (r *MemoryRepository) ConsumeBackupCode(_ context.Context, userID, codeHash string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return 0, ErrBackupCodeNotFound
	}

	idx := slices.Index(u.MFABackupCodes, codeHash)
	if idx < 0 {
		return 0, ErrBackupCodeNotFound
	}

	u.MFABackupCodes = slices.Delete(u.MFABackupCodes, idx, idx+1)
	u.UpdatedAt = r.now()
	return len(u.MFABackupCodes), nil
}

// UpdateUserRole меняет роль пользователя.
func (r *MemoryRepository) UpdateUserRole(_ context.Context, id string, role model.Role) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Role = role
	u.UpdatedAt = r.now()
	return cloneUser(u), nil
}

// DeleteStaff удаляет учётную запись сотрудника. Клиенты этим методом не удаляются.
func (r *MemoryRepository) DeleteStaff(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok || !u.Role.IsStaff() {
		return ErrUserNotFound
	}
	if len(r.txs[id]) > 0 {
		return ErrUserHasHistory
	}
	for _, p := range r.payments {
		if p.UserID == id {
			return ErrUserHasHistory
		}
	}

	delete(r.users, id)
	delete(r.usernames, u.Username)
	delete(r.accounts, u.AccountNumber)
	delete(r.idNumbers, u.IDNumber)
	delete(r.txs, id)
	for bid, b := range r.benefs {
		if b.UserID == id {
			delete(r.benefs, bid)
		}
	}
	return nil
}

// ListStaff возвращает сотрудников и администраторов.
func (r *MemoryRepository) ListStaff(_ context.Context) ([]model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.User
	for _, u := range r.users {
		if u.Role.IsStaff() {
			res = append(res, *cloneUser(u))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

// CreatePayment сохраняет платёж в статусе pending.
func (r *MemoryRepository) CreatePayment(_ context.Context, np model.NewPayment) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.paymentIDs[np.PaymentID]; ok {
		return nil, &DuplicateError{Field: "paymentId"}
	}
	if _, ok := r.users[np.UserID]; !ok {
		return nil, ErrUserNotFound
	}

	now := r.now()
	p := &model.Payment{
		ID:               uuid.NewString(),
		PaymentID:        np.PaymentID,
		UserID:           np.UserID,
		Amount:           np.Amount,
		Currency:         np.Currency,
		RecipientName:    np.RecipientName,
		RecipientBank:    np.RecipientBank,
		RecipientAccount: np.RecipientAccount,
		SwiftCode:        np.SwiftCode,
		Provider:         np.Provider,
		PaymentReference: np.PaymentReference,
		Status:           model.PaymentStatusPending,
		StatusHistory:    []model.StatusChange{},
		CreatedIP:        np.CreatedIP,
		UserAgent:        np.UserAgent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	r.payments[p.ID] = p
	r.paymentIDs[p.PaymentID] = p.ID
	return clonePayment(p), nil
}

func (r *MemoryRepository) findPayment(id string) (*model.Payment, bool) {
	if p, ok := r.payments[id]; ok {
		return p, true
	}
	p, ok := r.payments[r.paymentIDs[id]]
	return p, ok
}

func (r *MemoryRepository) listPayments(keep func(*model.Payment) bool) []model.Payment {
	var res []model.Payment
	for _, p := range r.payments {
		if keep(p) {
			res = append(res, *clonePayment(p))
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res
}

// ListPaymentsByUser возвращает платежи пользователя, новые первыми.
func (r *MemoryRepository) ListPaymentsByUser(_ context.Context, userID string) ([]model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.listPayments(func(p *model.Payment) bool { return p.UserID == userID }), nil
}

// GetPaymentForUser возвращает платёж с проверкой владельца.
func (r *MemoryRepository) GetPaymentForUser(_ context.Context, userID, paymentID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.findPayment(paymentID)
	if !ok || p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

// ListPayments возвращает все платежи, при непустом status только в этом статусе.
func (r *MemoryRepository) ListPayments(_ context.Context, status model.PaymentStatus) ([]model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.listPayments(func(p *model.Payment) bool { return status == "" || p.Status == status }), nil
}

// PaymentStats возвращает количество и сумму платежей по статусам.
func (r *MemoryRepository) PaymentStats(_ context.Context) ([]model.PaymentStat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byStatus := make(map[model.PaymentStatus]*model.PaymentStat)
	for _, p := range r.payments {
		st, ok := byStatus[p.Status]
		if !ok {
			st = &model.PaymentStat{Status: p.Status, Total: decimal.Zero}
			byStatus[p.Status] = st
		}
		st.Count++
		st.Total = st.Total.Add(p.Amount)
	}

	res := make([]model.PaymentStat, 0, len(byStatus))
	for _, st := range byStatus {
		res = append(res, *st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Status < res[j].Status })
	return res, nil
}

// DecidePayment переводит платёж в новый статус и при одобрении списывает сумму с плательщика.
func (r *MemoryRepository) DecidePayment(_ context.Context, d model.Decision) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.findPayment(d.PaymentID)
	if !ok {
		return nil, ErrPaymentNotFound
	}

	if !p.Status.CanTransitionTo(d.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, d.Status)
	}

	if d.Status == model.PaymentStatusCompleted {
		if _, err := r.applyEntryLocked(debitEntry(p, d)); err != nil {
			return nil, err
		}
	}

	now := r.now()
	p.StatusHistory = append(p.StatusHistory, model.StatusChange{
		From:      p.Status,
		To:        d.Status,
		UpdatedBy: d.Actor,
		Reason:    d.Reason,
		Timestamp: now,
	})
	p.Status = d.Status
	p.UpdatedAt = now

	return clonePayment(p), nil
}

func (r *MemoryRepository) applyEntryLocked(e model.LedgerEntry) (*model.Transaction, error) {
	u, ok := r.users[e.UserID]
	if !ok {
		return nil, ErrUserNotFound
	}

	next, err := ledger.Apply(u.Balance, e.Amount)
	if err != nil {
		return nil, err
	}

	currency := u.Currency
	if e.Currency != "" {
		currency = e.Currency
	}

	now := r.now()
	t := model.Transaction{
		ID:           uuid.NewString(),
		UserID:       e.UserID,
		Type:         e.Type,
		Amount:       e.Amount,
		Currency:     currency,
		Category:     e.Category,
		Description:  e.Description,
		BalanceAfter: next,
		Status:       model.TransactionCompleted,
		PaymentID:    e.PaymentID,
		Metadata:     e.Metadata,
		CreatedAt:    now,
	}

	u.Balance = next
	u.UpdatedAt = now
	r.txs[e.UserID] = append(r.txs[e.UserID], t)
	return &t, nil
}

// ApplyLedgerEntry атомарно меняет баланс пользователя и добавляет проводку.
func (r *MemoryRepository) ApplyLedgerEntry(_ context.Context, e model.LedgerEntry) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.applyEntryLocked(e)
}

// ListTransactions возвращает журнал операций пользователя, новые первыми.
func (r *MemoryRepository) ListTransactions(_ context.Context, userID string) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.txs[userID]
	res := make([]model.Transaction, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		res = append(res, src[i])
	}
	return res, nil
}

// Recalculate пересчитывает баланс по журналу и исправляет разошедшиеся balanceAfter.
func (r *MemoryRepository) Recalculate(_ context.Context, userID string) (*model.RecalculationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}

	entries := r.txs[userID]
	replay := ledger.Replay(entries)
	if err := replay.Check(u.Balance); err != nil {
		return nil, err
	}

	patched := make(map[string]decimal.Decimal, len(replay.Patches))
	for _, p := range replay.Patches {
		patched[p.TransactionID] = p.Expected
	}
	for i := range entries {
		if v, ok := patched[entries[i].ID]; ok {
			entries[i].BalanceAfter = v
		}
	}

	res := &model.RecalculationResult{
		PreviousBalance: u.Balance,
		Balance:         replay.Balance,
		Transactions:    replay.Replayed,
		Patched:         len(replay.Patches),
	}

	u.Balance = replay.Balance
	u.UpdatedAt = r.now()
	return res, nil
}

// CreateBeneficiary сохраняет получателя.
func (r *MemoryRepository) CreateBeneficiary(_ context.Context, b model.Beneficiary) (*model.Beneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.benefs {
		if existing.UserID == b.UserID && existing.AccountNumber == b.AccountNumber {
			return nil, &DuplicateError{Field: "accountNumber"}
		}
	}

	stored := b
	stored.ID = uuid.NewString()
	stored.UsageCount = 0
	stored.LastUsedAt = nil
	stored.CreatedAt = r.now()
	r.benefs[stored.ID] = &stored
	return cloneBeneficiary(&stored), nil
}

// ListBeneficiaries возвращает получателей пользователя, часто используемые первыми.
func (r *MemoryRepository) ListBeneficiaries(_ context.Context, userID string) ([]model.Beneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Beneficiary
	for _, b := range r.benefs {
		if b.UserID == userID {
			res = append(res, *cloneBeneficiary(b))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].UsageCount != res[j].UsageCount {
			return res[i].UsageCount > res[j].UsageCount
		}
		return res[i].Name < res[j].Name
	})
	return res, nil
}

// DeleteBeneficiary удаляет получателя пользователя.
func (r *MemoryRepository) DeleteBeneficiary(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.benefs[id]
	if !ok || b.UserID != userID {
		return ErrBeneficiaryNotFound
	}
	delete(r.benefs, id)
	return nil
}

func (r *MemoryRepository) markUsedLocked(b *model.Beneficiary) {
	now := r.now()
	b.UsageCount++
	b.LastUsedAt = &now
}

// MarkBeneficiaryUsed увеличивает счётчик использования получателя.
func (r *MemoryRepository) MarkBeneficiaryUsed(_ context.Context, userID, id string) (*model.Beneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.benefs[id]
	if !ok || b.UserID != userID {
		return nil, ErrBeneficiaryNotFound
	}
	r.markUsedLocked(b)
	return cloneBeneficiary(b), nil
}

// MarkBeneficiaryUsedByAccount увеличивает счётчик получателя с указанным номером счёта.
func (r *MemoryRepository) MarkBeneficiaryUsedByAccount(_ context.Context, userID, accountNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for _, b := range r.benefs {
		if b.UserID == userID && b.AccountNumber == accountNumber {
			r.markUsedLocked(b)
			found = true
		}
	}
	if !found {
		return ErrBeneficiaryNotFound
	}
	return nil
}

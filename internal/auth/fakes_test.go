package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roadworks/authd/internal/accounts"
	"github.com/roadworks/authd/internal/audit"
	"github.com/roadworks/authd/internal/policy"
	"github.com/roadworks/authd/internal/sessions"
	"github.com/roadworks/authd/model"
)

type fakeAccountRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*model.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{rows: make(map[uint]*model.Account)}
}

func (r *fakeAccountRepo) add(account *model.Account) *model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	account.ID = r.nextID
	account.CreatedAt = time.Now()
	r.rows[account.ID] = account
	return account
}

func (r *fakeAccountRepo) clone(account *model.Account) *model.Account {
	copied := *account
	return &copied
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id uint) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if account, ok := r.rows[id]; ok {
		return r.clone(account), nil
	}
	return nil, accounts.ErrNotFound
}

func (r *fakeAccountRepo) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.rows {
		if account.Username == username {
			return r.clone(account), nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (r *fakeAccountRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.rows {
		if account.ExternalID != nil && *account.ExternalID == externalID {
			return r.clone(account), nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (r *fakeAccountRepo) ExistsUsername(ctx context.Context, username string) (bool, error) {
	_, err := r.GetByUsername(ctx, username)
	if errors.Is(err, accounts.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if existing.Username == account.Username {
			return accounts.ErrDuplicate
		}
	}
	r.nextID++
	account.ID = r.nextID
	account.CreatedAt = time.Now()
	r.rows[account.ID] = r.clone(account)
	return nil
}

func (r *fakeAccountRepo) ListAll(ctx context.Context) ([]*model.Account, error) {
	return r.filter(func(*model.Account) bool { return true }), nil
}

func (r *fakeAccountRepo) ListLocked(ctx context.Context) ([]*model.Account, error) {
	return r.filter(func(a *model.Account) bool { return a.IsLocked }), nil
}

func (r *fakeAccountRepo) ListUnlinked(ctx context.Context) ([]*model.Account, error) {
	return r.filter(func(a *model.Account) bool { return a.ExternalID == nil }), nil
}

func (r *fakeAccountRepo) filter(keep func(*model.Account) bool) []*model.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Account
	for _, account := range r.rows {
		if keep(account) {
			out = append(out, r.clone(account))
		}
	}
	return out
}

func (r *fakeAccountRepo) LinkExternal(ctx context.Context, id uint, externalID string) error {
	return r.mutate(id, func(a *model.Account) { a.ExternalID = &externalID })
}

func (r *fakeAccountRepo) SetActive(ctx context.Context, id uint, active bool) error {
	return r.mutate(id, func(a *model.Account) { a.IsActive = active })
}

func (r *fakeAccountRepo) SetPassword(ctx context.Context, id uint, passwordHash string) error {
	return r.mutate(id, func(a *model.Account) { a.Password = passwordHash })
}

func (r *fakeAccountRepo) RecordFailure(ctx context.Context, id uint, maxAttempts int, now time.Time) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.rows[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	account.Attempts++
	account.LastFailedLoginAt = &now
	if account.Attempts >= maxAttempts {
		account.IsLocked = true
	}
	return r.clone(account), nil
}

func (r *fakeAccountRepo) RecordSuccess(ctx context.Context, id uint, now time.Time) error {
	return r.mutate(id, func(a *model.Account) {
		a.Attempts = 0
		a.LastFailedLoginAt = nil
		a.LastLoginAt = &now
	})
}

func (r *fakeAccountRepo) Unlock(ctx context.Context, id uint) (*model.Account, error) {
	err := r.mutate(id, func(a *model.Account) {
		a.IsLocked = false
		a.Attempts = 0
		a.LastFailedLoginAt = nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *fakeAccountRepo) mutate(id uint, apply func(*model.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.rows[id]
	if !ok {
		return accounts.ErrNotFound
	}
	apply(account)
	return nil
}

type fakeSessionRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: make(map[string]*model.Session)}
}

func (r *fakeSessionRepo) Save(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.rows[session.Token] = &copied
	return nil
}

func (r *fakeSessionRepo) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.rows[token]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, sessions.ErrNotFound
}

func (r *fakeSessionRepo) ListByAccount(ctx context.Context, accountID uint) ([]*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Session
	for _, session := range r.rows {
		if session.AccountID == accountID {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) ExistsValidToken(ctx context.Context, token string, now time.Time) (bool, error) {
	session, err := r.FindByToken(ctx, token)
	if errors.Is(err, sessions.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return now.Before(session.ExpiresAt), nil
}

func (r *fakeSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, token)
	return nil
}

func (r *fakeSessionRepo) DeleteByAccount(ctx context.Context, accountID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for token, session := range r.rows {
		if session.AccountID == accountID {
			delete(r.rows, token)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for token, session := range r.rows {
		if !now.Before(session.ExpiresAt) {
			delete(r.rows, token)
			deleted++
		}
	}
	return deleted, nil
}

type fixedPolicy struct {
	pol policy.Policy
}

func (p fixedPolicy) Current() policy.Policy {
	return p.pol
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*model.SecurityLog
	fail    bool
}

func (r *fakeAuditRepo) Append(ctx context.Context, entry *model.SecurityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("audit store unreachable")
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) byAction(action string) []*model.SecurityLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.SecurityLog
	for _, entry := range r.entries {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

var _ accounts.Repository = (*fakeAccountRepo)(nil)
var _ sessions.Repository = (*fakeSessionRepo)(nil)
var _ audit.Repository = (*fakeAuditRepo)(nil)

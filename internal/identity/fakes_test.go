package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/roadworks/authd/internal/accounts"
	"github.com/roadworks/authd/internal/audit"
	"github.com/roadworks/authd/model"
)

type sliceIterator struct {
	identities []RemoteIdentity
	pos        int
	failAt     int
	failErr    error
}

func (it *sliceIterator) Next() (*RemoteIdentity, error) {
	if it.failErr != nil && it.pos == it.failAt {
		return nil, it.failErr
	}
	if it.pos >= len(it.identities) {
		return nil, ErrDone
	}
	remote := it.identities[it.pos]
	it.pos++
	return &remote, nil
}

// fakeBridge serves a fixed identity set and records mutating calls.
type fakeBridge struct {
	identities []RemoteIdentity

	listFailAt  int
	listFailErr error

	created  []RemoteIdentity
	disabled map[string]bool
	password map[string]string
	nextUID  int
}

func newFakeBridge(identities ...RemoteIdentity) *fakeBridge {
	return &fakeBridge{
		identities: identities,
		listFailAt: -1,
		disabled:   make(map[string]bool),
		password:   make(map[string]string),
	}
}

func (b *fakeBridge) CreateIdentity(ctx context.Context, email, password, displayName string) (string, error) {
	b.nextUID++
	uid := fmt.Sprintf("uid-%d", b.nextUID)
	b.created = append(b.created, RemoteIdentity{UID: uid, Email: email, DisplayName: displayName})
	return uid, nil
}

func (b *fakeBridge) DeleteIdentity(ctx context.Context, uid string) error {
	return nil
}

func (b *fakeBridge) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	b.disabled[uid] = disabled
	return nil
}

func (b *fakeBridge) SetPassword(ctx context.Context, uid, password string) error {
	b.password[uid] = password
	return nil
}

func (b *fakeBridge) GetByEmail(ctx context.Context, email string) (*RemoteIdentity, error) {
	for _, remote := range b.identities {
		if remote.Email == email {
			clone := remote
			return &clone, nil
		}
	}
	return nil, nil
}

func (b *fakeBridge) List(ctx context.Context) Iterator {
	return &sliceIterator{
		identities: b.identities,
		failAt:     b.listFailAt,
		failErr:    b.listFailErr,
	}
}

// fakeAccountRepo is an in-memory accounts.Repository sufficient for
// exercising the sync paths.
type fakeAccountRepo struct {
	mu       sync.Mutex
	nextID   uint
	accounts map[uint]*model.Account

	failCreateFor string
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uint]*model.Account)}
}

func clone(account *model.Account) *model.Account {
	copied := *account
	return &copied
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id uint) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return clone(account), nil
}

func (r *fakeAccountRepo) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Username == username {
			return clone(account), nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (r *fakeAccountRepo) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.ExternalID != nil && *account.ExternalID == externalID {
			return clone(account), nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (r *fakeAccountRepo) ExistsUsername(ctx context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeAccountRepo) Create(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateFor != "" && account.Username == r.failCreateFor {
		return errors.New("storage unavailable")
	}
	for _, existing := range r.accounts {
		if existing.Username == account.Username {
			return accounts.ErrDuplicate
		}
	}
	r.nextID++
	account.ID = r.nextID
	r.accounts[account.ID] = clone(account)
	return nil
}

func (r *fakeAccountRepo) ListAll(ctx context.Context) ([]*model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Account
	for _, account := range r.accounts {
		all = append(all, clone(account))
	}
	return all, nil
}

func (r *fakeAccountRepo) ListLocked(ctx context.Context) ([]*model.Account, error) {
	return nil, nil
}

func (r *fakeAccountRepo) ListUnlinked(ctx context.Context) ([]*model.Account, error) {
	return nil, nil
}

func (r *fakeAccountRepo) LinkExternal(ctx context.Context, id uint, externalID string) error {
	return r.mutate(id, func(account *model.Account) {
		account.ExternalID = &externalID
	})
}

func (r *fakeAccountRepo) SetActive(ctx context.Context, id uint, active bool) error {
	return r.mutate(id, func(account *model.Account) {
		account.IsActive = active
	})
}

func (r *fakeAccountRepo) SetPassword(ctx context.Context, id uint, passwordHash string) error {
	return r.mutate(id, func(account *model.Account) {
		account.Password = passwordHash
	})
}

func (r *fakeAccountRepo) RecordFailure(ctx context.Context, id uint, maxAttempts int, now time.Time) (*model.Account, error) {
	return nil, errors.New("not used")
}

func (r *fakeAccountRepo) RecordSuccess(ctx context.Context, id uint, now time.Time) error {
	return errors.New("not used")
}

func (r *fakeAccountRepo) Unlock(ctx context.Context, id uint) (*model.Account, error) {
	return nil, errors.New("not used")
}

func (r *fakeAccountRepo) mutate(id uint, fn func(*model.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return accounts.ErrNotFound
	}
	fn(account)
	return nil
}

func mustCreateLocal(t *testing.T, repo *fakeAccountRepo, username string) *model.Account {
	t.Helper()
	account := &model.Account{
		Username: username,
		Password: "x",
		Role:     model.RoleUser,
		IsActive: true,
	}
	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("create account %q: %v", username, err)
	}
	return account
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*model.SecurityLog
}

func (r *fakeAuditRepo) Append(ctx context.Context, entry *model.SecurityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) byAction(action string) []*model.SecurityLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*model.SecurityLog
	for _, entry := range r.entries {
		if entry.Action == action {
			matched = append(matched, entry)
		}
	}
	return matched
}

var (
	_ Bridge              = (*fakeBridge)(nil)
	_ accounts.Repository = (*fakeAccountRepo)(nil)
	_ audit.Repository    = (*fakeAuditRepo)(nil)
)

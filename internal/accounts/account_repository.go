package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/roadworks/authd/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("username already registered")
)

// Repository is the credential store of record. The failed-attempt counter
// is the only piece of shared mutable state in the system; RecordFailure
// and RecordSuccess must be atomic at the storage layer.
type Repository interface {
	GetByID(ctx context.Context, id uint) (*model.Account, error)
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Account, error)
	ExistsUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, account *model.Account) error
	ListAll(ctx context.Context) ([]*model.Account, error)
	ListLocked(ctx context.Context) ([]*model.Account, error)
	ListUnlinked(ctx context.Context) ([]*model.Account, error)
	LinkExternal(ctx context.Context, id uint, externalID string) error
	SetActive(ctx context.Context, id uint, active bool) error
	SetPassword(ctx context.Context, id uint, passwordHash string) error
	RecordFailure(ctx context.Context, id uint, maxAttempts int, now time.Time) (*model.Account, error)
	RecordSuccess(ctx context.Context, id uint, now time.Time) error
	Unlock(ctx context.Context, id uint) (*model.Account, error)
}

type accountRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &accountRepository{db: db}
}

func (r *accountRepository) first(ctx context.Context, conds ...interface{}) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).First(&account, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*model.Account, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *accountRepository) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.first(ctx, "username = ?", username)
}

func (r *accountRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Account, error) {
	return r.first(ctx, "external_id = ?", externalID)
}

func (r *accountRepository) ExistsUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("username = ?", username).
		Count(&count).Error
	return count > 0, err
}

func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrDuplicate
	}
	return err
}

func (r *accountRepository) ListAll(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).Order("created_at").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) ListLocked(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).Where("is_locked = ?", true).Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) ListUnlinked(ctx context.Context) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).Where("external_id IS NULL").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) LinkExternal(ctx context.Context, id uint, externalID string) error {
	return r.updates(ctx, id, map[string]interface{}{"external_id": externalID})
}

func (r *accountRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.updates(ctx, id, map[string]interface{}{"is_active": active})
}

func (r *accountRepository) SetPassword(ctx context.Context, id uint, passwordHash string) error {
	return r.updates(ctx, id, map[string]interface{}{"password": passwordHash})
}

// RecordFailure bumps the attempt counter and locks the account once the
// post-increment count reaches maxAttempts. A compare-and-swap on the
// current counter value guarantees concurrent failures never lose an
// increment; on contention the losing writer retries on fresh state.
func (r *accountRepository) RecordFailure(ctx context.Context, id uint, maxAttempts int, now time.Time) (*model.Account, error) {
	for {
		account, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		newAttempts := account.Attempts + 1
		updates := map[string]interface{}{
			"attempts":             newAttempts,
			"last_failed_login_at": now,
		}
		if newAttempts >= maxAttempts {
			updates["is_locked"] = true
		}
		res := r.db.WithContext(ctx).Model(&model.Account{}).
			Where("id = ? AND attempts = ?", id, account.Attempts).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			account.Attempts = newAttempts
			account.LastFailedLoginAt = &now
			if newAttempts >= maxAttempts {
				account.IsLocked = true
			}
			return account, nil
		}
	}
}

func (r *accountRepository) RecordSuccess(ctx context.Context, id uint, now time.Time) error {
	return r.updates(ctx, id, map[string]interface{}{
		"attempts":             0,
		"last_failed_login_at": nil,
		"last_login_at":        now,
	})
}

func (r *accountRepository) Unlock(ctx context.Context, id uint) (*model.Account, error) {
	err := r.updates(ctx, id, map[string]interface{}{
		"is_locked":            false,
		"attempts":             0,
		"last_failed_login_at": nil,
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepository) updates(ctx context.Context, id uint, columns map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", id).
		Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero affected rows for no-op updates too, so
		// distinguish a missing row from an unchanged one.
		_, err := r.GetByID(ctx, id)
		return err
	}
	return nil
}

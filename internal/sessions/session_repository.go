package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/roadworks/authd/model"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("session not found")
)

// Repository persists sessions. Expiry is always re-checked against the
// caller's clock; the bulk DeleteExpired sweep is space reclamation only
// and never a correctness dependency.
type Repository interface {
	Save(ctx context.Context, session *model.Session) error
	FindByToken(ctx context.Context, token string) (*model.Session, error)
	ListByAccount(ctx context.Context, accountID uint) ([]*model.Session, error)
	ExistsValidToken(ctx context.Context, token string, now time.Time) (bool, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByAccount(ctx context.Context, accountID uint) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Save(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) ListByAccount(ctx context.Context, accountID uint) ([]*model.Session, error) {
	var sessions []*model.Session
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) ExistsValidToken(ctx context.Context, token string, now time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("token = ? AND expires_at > ?", token, now).
		Count(&count).Error
	return count > 0, err
}

// DeleteByToken is idempotent: deleting an absent token is a success.
func (r *sessionRepository) DeleteByToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&model.Session{}).Error
}

func (r *sessionRepository) DeleteByAccount(ctx context.Context, accountID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&model.Session{})
	return res.RowsAffected, res.Error
}

func (r *sessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&model.Session{})
	return res.RowsAffected, res.Error
}

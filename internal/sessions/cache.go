package sessions

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roadworks/authd/internal/store"
	"github.com/roadworks/authd/model"
	"github.com/roadworks/authd/params"
)

// cachedRepository fronts the database with a redis read-through cache
// keyed by token. The database stays the store of record: a cache miss or
// a cache failure always falls through, and deletes evict eagerly so a
// logged-out token can never validate from a stale entry.
type cachedRepository struct {
	Repository
	cache store.Store[model.Session]
}

func NewCachedRepository(repo Repository, storage store.Storage) Repository {
	return &cachedRepository{
		Repository: repo,
		cache:      store.New[model.Session](storage, params.SessionCacheKeyPrefix),
	}
}

func (r *cachedRepository) Save(ctx context.Context, session *model.Session) error {
	if err := r.Repository.Save(ctx, session); err != nil {
		return err
	}
	r.cacheSet(ctx, session)
	return nil
}

func (r *cachedRepository) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	cached, err := r.cache.Get(ctx, token)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		slog.Debug("Session cache read failed", "error", err)
	}
	session, err := r.Repository.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	r.cacheSet(ctx, session)
	return session, nil
}

func (r *cachedRepository) DeleteByToken(ctx context.Context, token string) error {
	if err := r.Repository.DeleteByToken(ctx, token); err != nil {
		return err
	}
	r.cacheEvict(ctx, token)
	return nil
}

func (r *cachedRepository) DeleteByAccount(ctx context.Context, accountID uint) (int64, error) {
	sessions, err := r.Repository.ListByAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	deleted, err := r.Repository.DeleteByAccount(ctx, accountID)
	if err != nil {
		return deleted, err
	}
	for _, session := range sessions {
		r.cacheEvict(ctx, session.Token)
	}
	return deleted, nil
}

func (r *cachedRepository) cacheSet(ctx context.Context, session *model.Session) {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return
	}
	if err := r.cache.Set(ctx, session.Token, *session, ttl); err != nil {
		slog.Debug("Session cache write failed", "error", err)
	}
}

func (r *cachedRepository) cacheEvict(ctx context.Context, token string) {
	if err := r.cache.Delete(ctx, token); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("Session cache eviction failed", "error", err)
	}
}

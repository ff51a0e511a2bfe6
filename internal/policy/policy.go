package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/roadworks/authd/model"
	"gorm.io/gorm"
)

// Policy is the in-memory copy of the singleton policy row handed to the
// engine. It is loaded once at startup and refreshed only by an explicit
// Reload, never re-queried per request.
type Policy struct {
	MaxAttempts     int
	SessionLifetime time.Duration
}

type Defaults struct {
	MaxAttempts     int
	SessionLifetime time.Duration
}

type Service struct {
	db       *gorm.DB
	defaults Defaults

	mu      sync.RWMutex
	current Policy
}

func NewService(db *gorm.DB, defaults Defaults) *Service {
	return &Service{db: db, defaults: defaults}
}

// Load reads the policy row, creating it with the configured defaults when
// the table is empty. The fixed unique anchor column makes first-boot
// creation race-safe across concurrent instances: the losing insert hits
// the unique constraint and re-reads the winner's row.
func (s *Service) Load(ctx context.Context) error {
	row, err := s.getOrCreate(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = Policy{
		MaxAttempts:     row.MaxAttempts,
		SessionLifetime: row.SessionLifetime,
	}
	s.mu.Unlock()
	return nil
}

// Reload re-reads the row so an operator-side change takes effect without
// a restart.
func (s *Service) Reload(ctx context.Context) error {
	return s.Load(ctx)
}

func (s *Service) Current() Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Service) getOrCreate(ctx context.Context) (*model.AuthPolicy, error) {
	var row model.AuthPolicy
	err := s.db.WithContext(ctx).Where("anchor = ?", model.PolicyAnchor).First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	row = model.AuthPolicy{
		Anchor:          model.PolicyAnchor,
		MaxAttempts:     s.defaults.MaxAttempts,
		SessionLifetime: s.defaults.SessionLifetime,
	}
	err = s.db.WithContext(ctx).Create(&row).Error
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		// another instance created the row first
		err = s.db.WithContext(ctx).Where("anchor = ?", model.PolicyAnchor).First(&row).Error
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

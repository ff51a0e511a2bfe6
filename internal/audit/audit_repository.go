package audit

import (
	"context"

	"github.com/roadworks/authd/model"
	"gorm.io/gorm"
)

type Repository interface {
	Append(ctx context.Context, entry *model.SecurityLog) error
}

type auditRepository struct {
	db *gorm.DB
}

func (r *auditRepository) Append(ctx context.Context, entry *model.SecurityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func NewRepository(db *gorm.DB) Repository {
	return &auditRepository{db: db}
}

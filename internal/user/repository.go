package user

import (
	"context"
	"database/sql"
	"fmt"

	"eastleigh-be/internal/logger"

	"go.uber.org/zap"
)

// Repository answers whether a payer exists.
type Repository interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)",
		id,
	).Scan(&exists)
	if err != nil {
		logger.FromCtx(ctx).Error("db: failed to check user",
			zap.String("user_id", id),
			zap.Error(err),
		)
		return false, fmt.Errorf("check user %s: %w", id, err)
	}
	return exists, nil
}

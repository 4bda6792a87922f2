package property

import (
	"context"
	"database/sql"
	"fmt"

	"eastleigh-be/internal/logger"

	"go.uber.org/zap"
)

// Repository answers whether a listing can still be paid for.
type Repository interface {
	ExistsActive(ctx context.Context, id string) (bool, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// ExistsActive reports whether the property exists and is not soft-deleted.
func (r *repository) ExistsActive(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM properties WHERE id = $1 AND is_deleted = false)",
		id,
	).Scan(&exists)
	if err != nil {
		logger.FromCtx(ctx).Error("db: failed to check property",
			zap.String("property_id", id),
			zap.Error(err),
		)
		return false, fmt.Errorf("check property %s: %w", id, err)
	}
	return exists, nil
}

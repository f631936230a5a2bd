package service

import (
	"context"

	"github.com/spec-kit/request-service/internal/repository"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

// AdminGuard protects the invariant that at least one active admin exists.
type AdminGuard struct{}

// LockAdmins takes the active admin row locks up front. Operations that may
// demote or deactivate an admin call it before locking their target row, so
// concurrent demotions acquire locks in the same order.
func (AdminGuard) LockAdmins(ctx context.Context, users repository.UserRepository) error {
	if _, err := users.LockActiveAdmins(ctx); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// CanRemoveAdminPrivilege fails with CONFLICT when targetUserID is the last
// active admin. It locks the active admin rows so the caller's subsequent
// write in the same transaction cannot race another demotion. It never
// writes.
func (AdminGuard) CanRemoveAdminPrivilege(ctx context.Context, users repository.UserRepository, targetUserID int64) error {
	adminIDs, err := users.LockActiveAdmins(ctx)
	if err != nil {
		return apperrors.MapError(err)
	}

	remaining := 0
	for _, id := range adminIDs {
		if id != targetUserID {
			remaining++
		}
	}
	if remaining == 0 {
		return apperrors.NewConflict("at least one active admin must remain", map[string]any{"user_id": targetUserID})
	}
	return nil
}

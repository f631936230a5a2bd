package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/events"
	"github.com/spec-kit/request-service/internal/repository"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

// Clock returns the current time. Services call it once per operation.
type Clock func() time.Time

// SystemClock is the UTC wall clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}

func clockOrDefault(clock Clock) Clock {
	if clock == nil {
		return SystemClock
	}
	return clock
}

func loggerOrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// activePerformer resolves the caller against the directory. A caller that
// no longer exists or was deactivated is refused.
func activePerformer(ctx context.Context, users repository.UserRepository, identity domain.Identity) (*domain.User, error) {
	user, err := users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewForbidden("performer not found")
		}
		return nil, apperrors.MapError(err)
	}
	if !user.Active {
		return nil, apperrors.NewForbidden("performer inactive")
	}
	return user, nil
}

func notFoundOr(err error, resource string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	}
	return apperrors.MapError(err)
}

func publish(ctx context.Context, dispatcher events.Dispatcher, event events.Event, at time.Time) {
	if dispatcher == nil || event.Type == "" {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = at
	_ = dispatcher.Publish(ctx, event)
}

func ptr[T any](v T) *T {
	return &v
}

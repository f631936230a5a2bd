package service

import (
	"github.com/spec-kit/request-service/internal/domain"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

type transitionRule struct {
	target             domain.StatusID
	permits            func(domain.Role) bool
	requiresTechnician bool
}

// statusTransitions lists the only forward step out of each non-terminal status.
var statusTransitions = map[domain.StatusID]transitionRule{
	domain.StatusOpen:       {target: domain.StatusInProgress, permits: domain.Role.CanProgressRequests, requiresTechnician: true},
	domain.StatusInProgress: {target: domain.StatusResolved, permits: domain.Role.CanProgressRequests},
	domain.StatusResolved:   {target: domain.StatusClosed, permits: domain.Role.CanCloseRequests},
}

// checkTransition decides whether role may move a request from current to
// target. hasTechnician reports whether the request already has an assignee.
func checkTransition(current, target domain.StatusID, role domain.Role, hasTechnician bool) error {
	details := map[string]any{"from": current.String(), "to": target.String()}

	if current == domain.StatusClosed {
		return apperrors.NewConflict("request is closed", details)
	}
	rule, ok := statusTransitions[current]
	if !ok || rule.target != target {
		return apperrors.NewConflict("status transition not allowed", details)
	}
	if !rule.permits(role) {
		return apperrors.NewForbidden("role " + role.String() + " cannot move request to " + target.String())
	}
	if rule.requiresTechnician && !hasTechnician {
		return apperrors.NewConflict("a technician must be assigned first", details)
	}
	return nil
}

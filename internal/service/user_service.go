package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/request-service/internal/auth"
	"github.com/spec-kit/request-service/internal/domain"
	"github.com/spec-kit/request-service/internal/events"
	"github.com/spec-kit/request-service/internal/repository"
	apperrors "github.com/spec-kit/request-service/pkg/util/errorutil"
)

const (
	// DefaultUserPageSize applies when a listing omits the page size.
	DefaultUserPageSize = 20

	maxNameLength     = 100
	maxEmailLength    = 256
	minPasswordLength = 8
)

// UserService manages the user directory. Role and active-flag changes go
// through AdminGuard in the same transaction as the write.
type UserService struct {
	tx         repository.TxRunner
	repos      repository.Repos
	guard      AdminGuard
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
	bcryptCost int
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	TxRunner   repository.TxRunner
	Repos      repository.Repos
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      Clock
	BcryptCost int
}

// CreateUserInput describes a new directory entry. Role defaults to User.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

// UserPatch carries optional profile fields. Active is honored only when
// an admin performs the update.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Active    *bool
}

// UserQuery filters a user listing. Search is a prefix match on first
// name, last name or email.
type UserQuery struct {
	Page   domain.PageRequest
	Search *string
	Role   *domain.Role
	Active *bool
}

// NewUserService constructs the service.
func NewUserService(deps UserDependencies) *UserService {
	cost := deps.BcryptCost
	if cost <= 0 {
		cost = 12
	}
	return &UserService{
		tx:         deps.TxRunner,
		repos:      deps.Repos,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Clock),
		bcryptCost: cost,
	}
}

// Create registers an active user. Email is stored lower-cased and must be unique.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	user, err := s.newUser(input)
	if err != nil {
		return nil, err
	}

	err = s.tx.Run(ctx, func(repos repository.Repos) error {
		if _, err := repos.Users.GetByEmail(ctx, user.Email); err == nil {
			return apperrors.NewConflict("email already registered", map[string]any{"email": user.Email})
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return apperrors.MapError(err)
		}
		if err := repos.Users.Create(ctx, user); err != nil {
			if apperrors.IsUniqueViolation(err) {
				return apperrors.NewConflict("email already registered", map[string]any{"email": user.Email})
			}
			return apperrors.MapError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", zap.Int64("user_id", user.ID), zap.String("role", user.Role.String()))
	return user, nil
}

func (s *UserService) newUser(input CreateUserInput) (*domain.User, error) {
	problems := map[string]any{}

	firstName := capitalize(input.FirstName)
	if msg := nameProblem(firstName); msg != "" {
		problems["first_name"] = msg
	}
	lastName := capitalize(input.LastName)
	if msg := nameProblem(lastName); msg != "" {
		problems["last_name"] = msg
	}
	email, msg := normalizeEmail(input.Email)
	if msg != "" {
		problems["email"] = msg
	}
	switch {
	case utf8.RuneCountInString(input.Password) < minPasswordLength:
		problems["password"] = "must be at least 8 characters"
	case len(input.Password) > auth.MaxPasswordBytes:
		problems["password"] = "must be at most 72 bytes"
	}
	role := domain.RoleUser
	if strings.TrimSpace(input.Role) != "" {
		parsed, ok := domain.ParseRole(input.Role)
		if !ok {
			problems["role"] = "must be Admin, Technician or User"
		}
		role = parsed
	}
	if len(problems) > 0 {
		return nil, apperrors.NewValidationError("invalid user", problems)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	return &domain.User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
		CreatedAt:    s.now(),
	}, nil
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.repos.Users.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user", id)
	}
	return user, nil
}

// List returns a page of users matching query.
func (s *UserService) List(ctx context.Context, query UserQuery) (domain.PagedResult[domain.User], error) {
	page := query.Page.Normalize(domain.MaxUserPageSize, DefaultUserPageSize, repository.UserSortFields)
	filter := repository.UserFilter{
		Role:         query.Role,
		Active:       query.Active,
		SearchPrefix: query.Search,
		SortBy:       page.SortBy,
		SortDir:      page.SortDir,
		Limit:        page.PageSize,
		Offset:       page.Offset(),
	}

	total, err := s.repos.Users.Count(ctx, filter)
	if err != nil {
		return domain.PagedResult[domain.User]{}, apperrors.MapError(err)
	}
	items, err := s.repos.Users.List(ctx, filter)
	if err != nil {
		return domain.PagedResult[domain.User]{}, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.User{}
	}
	return domain.PagedResult[domain.User]{Data: items, Total: total, Page: page.Page, PageSize: page.PageSize}, nil
}

// Technicians lists active technicians by last name.
func (s *UserService) Technicians(ctx context.Context) ([]domain.User, error) {
	role := domain.RoleTechnician
	items, err := s.repos.Users.List(ctx, repository.UserFilter{
		Role:    &role,
		Active:  ptr(true),
		SortBy:  repository.UserSortLastName,
		SortDir: domain.SortAsc,
		Limit:   1000,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if items == nil {
		items = []domain.User{}
	}
	return items, nil
}

// Update edits a profile. Users may edit themselves; admins may edit anyone.
func (s *UserService) Update(ctx context.Context, id int64, patch UserPatch, performer domain.Identity) (*domain.User, error) {
	now := s.now()
	var updated *domain.User
	var activeEvent *events.Event

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		actor, err := activePerformer(ctx, repos.Users, performer)
		if err != nil {
			return err
		}
		if actor.ID != id && !actor.Role.CanManageUsers() {
			return apperrors.NewForbidden("cannot edit another user")
		}
		if patch.Active != nil && !*patch.Active && actor.Role.CanManageUsers() {
			if err := s.guard.LockAdmins(ctx, repos.Users); err != nil {
				return err
			}
		}

		target, err := repos.Users.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "user", id)
		}

		problems := map[string]any{}
		if patch.FirstName != nil {
			name := capitalize(*patch.FirstName)
			if msg := nameProblem(name); msg != "" {
				problems["first_name"] = msg
			}
			target.FirstName = name
		}
		if patch.LastName != nil {
			name := capitalize(*patch.LastName)
			if msg := nameProblem(name); msg != "" {
				problems["last_name"] = msg
			}
			target.LastName = name
		}
		if patch.Email != nil {
			email, msg := normalizeEmail(*patch.Email)
			if msg != "" {
				problems["email"] = msg
			}
			target.Email = email
		}
		if len(problems) > 0 {
			return apperrors.NewValidationError("invalid user fields", problems)
		}

		if patch.Active != nil && actor.Role.CanManageUsers() && *patch.Active != target.Active {
			if !*patch.Active && target.Role == domain.RoleAdmin {
				if err := s.guard.CanRemoveAdminPrivilege(ctx, repos.Users, target.ID); err != nil {
					return err
				}
			}
			target.Active = *patch.Active
			activeEvent = &events.Event{
				Type:      events.EventUserActiveChanged,
				SubjectID: target.ID,
				Actor:     events.NewActor(domain.Identity{UserID: actor.ID, Role: actor.Role}),
				Payload:   events.UserActiveChangedPayload{Active: target.Active},
			}
		}

		target.UpdatedAt = &now
		if err := repos.Users.Update(ctx, target); err != nil {
			if apperrors.IsUniqueViolation(err) {
				return apperrors.NewConflict("email already in use", map[string]any{"email": target.Email})
			}
			return notFoundOr(err, "user", id)
		}
		updated = target
		return nil
	})
	if err != nil {
		return nil, err
	}

	if activeEvent != nil {
		publish(ctx, s.dispatcher, *activeEvent, now)
	}
	return updated, nil
}

// AssignRole changes a user's role. Demoting the last active admin is refused.
func (s *UserService) AssignRole(ctx context.Context, id int64, rawRole string, performer domain.Identity) (*domain.User, error) {
	role, ok := domain.ParseRole(rawRole)
	if !ok {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"role": "must be Admin, Technician or User"})
	}

	now := s.now()
	var updated *domain.User
	var event *events.Event

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		actor, err := s.managingPerformer(ctx, repos.Users, performer)
		if err != nil {
			return err
		}
		if role != domain.RoleAdmin {
			if err := s.guard.LockAdmins(ctx, repos.Users); err != nil {
				return err
			}
		}

		target, err := repos.Users.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "user", id)
		}
		updated = target
		if target.Role == role {
			return nil
		}
		if target.Role == domain.RoleAdmin {
			if err := s.guard.CanRemoveAdminPrivilege(ctx, repos.Users, target.ID); err != nil {
				return err
			}
		}

		previous := target.Role
		target.Role = role
		target.UpdatedAt = &now
		if err := repos.Users.Update(ctx, target); err != nil {
			return notFoundOr(err, "user", id)
		}
		event = &events.Event{
			Type:      events.EventUserRoleChanged,
			SubjectID: target.ID,
			Actor:     events.NewActor(domain.Identity{UserID: actor.ID, Role: actor.Role}),
			Payload:   events.UserRoleChangedPayload{OldRole: previous.String(), NewRole: role.String()},
		}
		return nil
	})
	if err != nil {
		s.logger.Debug("assign role rejected", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}

	if event != nil {
		s.logger.Info("user role changed", zap.Int64("user_id", id), zap.String("role", role.String()))
		publish(ctx, s.dispatcher, *event, now)
	}
	return updated, nil
}

// Deactivate marks a user inactive. Already inactive users are left as is.
func (s *UserService) Deactivate(ctx context.Context, id int64, performer domain.Identity) error {
	return s.setActive(ctx, id, false, performer)
}

// Activate marks a user active. Already active users are left as is.
func (s *UserService) Activate(ctx context.Context, id int64, performer domain.Identity) error {
	return s.setActive(ctx, id, true, performer)
}

func (s *UserService) setActive(ctx context.Context, id int64, active bool, performer domain.Identity) error {
	now := s.now()
	var event *events.Event

	err := s.tx.Run(ctx, func(repos repository.Repos) error {
		actor, err := s.managingPerformer(ctx, repos.Users, performer)
		if err != nil {
			return err
		}
		if !active {
			if err := s.guard.LockAdmins(ctx, repos.Users); err != nil {
				return err
			}
		}

		target, err := repos.Users.GetByIDForUpdate(ctx, id)
		if err != nil {
			return notFoundOr(err, "user", id)
		}
		if target.Active == active {
			return nil
		}
		if !active && target.Role == domain.RoleAdmin {
			if err := s.guard.CanRemoveAdminPrivilege(ctx, repos.Users, target.ID); err != nil {
				return err
			}
		}

		target.Active = active
		target.UpdatedAt = &now
		if err := repos.Users.Update(ctx, target); err != nil {
			return notFoundOr(err, "user", id)
		}
		event = &events.Event{
			Type:      events.EventUserActiveChanged,
			SubjectID: target.ID,
			Actor:     events.NewActor(domain.Identity{UserID: actor.ID, Role: actor.Role}),
			Payload:   events.UserActiveChangedPayload{Active: active},
		}
		return nil
	})
	if err != nil {
		s.logger.Debug("active flag change rejected", zap.Int64("user_id", id), zap.Bool("active", active), zap.Error(err))
		return err
	}

	if event != nil {
		publish(ctx, s.dispatcher, *event, now)
	}
	return nil
}

// BootstrapAdmin makes sure an active admin exists. When none does, the
// user with email is promoted and activated, or created as "System Admin".
// It reports whether anything was written.
func (s *UserService) BootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	candidate, err := s.newUser(CreateUserInput{
		FirstName: "System",
		LastName:  "Admin",
		Email:     email,
		Password:  password,
		Role:      domain.RoleAdmin.String(),
	})
	if err != nil {
		return false, err
	}

	created := false
	err = s.tx.Run(ctx, func(repos repository.Repos) error {
		admins, err := repos.Users.LockActiveAdmins(ctx)
		if err != nil {
			return apperrors.MapError(err)
		}
		if len(admins) > 0 {
			return nil
		}

		existing, err := repos.Users.GetByEmail(ctx, candidate.Email)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if err := repos.Users.Create(ctx, candidate); err != nil {
				return apperrors.MapError(err)
			}
		case err != nil:
			return apperrors.MapError(err)
		default:
			now := s.now()
			existing.Role = domain.RoleAdmin
			existing.Active = true
			existing.UpdatedAt = &now
			if err := repos.Users.Update(ctx, existing); err != nil {
				return apperrors.MapError(err)
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Info("bootstrap admin ensured", zap.String("email", candidate.Email))
	}
	return created, nil
}

func (s *UserService) managingPerformer(ctx context.Context, users repository.UserRepository, identity domain.Identity) (*domain.User, error) {
	actor, err := activePerformer(ctx, users, identity)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanManageUsers() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	return actor, nil
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return trimmed
	}
	first, size := utf8.DecodeRuneInString(trimmed)
	return string(unicode.ToUpper(first)) + strings.ToLower(trimmed[size:])
}

func nameProblem(name string) string {
	switch n := utf8.RuneCountInString(name); {
	case n == 0:
		return "must not be empty"
	case n > maxNameLength:
		return "must be at most 100 characters"
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' && r != '-' && r != '\'' {
			return "may contain only letters, spaces, hyphens and apostrophes"
		}
	}
	return ""
}

func normalizeEmail(raw string) (string, string) {
	email := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case email == "":
		return email, "must not be empty"
	case len(email) > maxEmailLength:
		return email, "must be at most 256 characters"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return email, "must be a valid email address"
	}
	return email, ""
}

package user

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	"chatcore-backend/pkg/constants"
	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/logger"
	"chatcore-backend/pkg/metrics"
)

// Service handles identity and presence business logic
type Service struct {
	userRepo repository.UserRepository
	presence repository.PresenceCache // optional
	now      func() time.Time
}

// NewService creates a new user service. presence may be nil.
func NewService(userRepo repository.UserRepository, presence repository.PresenceCache) *Service {
	return &Service{
		userRepo: userRepo,
		presence: presence,
		now:      time.Now,
	}
}

func normalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" {
		return "", apperrors.InvalidInputError("Username is required")
	}
	if utf8.RuneCountInString(username) > constants.MaxUsernameLength {
		return "", apperrors.InvalidInputError("Username must be at most 150 characters")
	}
	return username, nil
}

func newUser(username string, now time.Time) *domain.User {
	return &domain.User{
		UserID:          uuid.New(),
		Username:        username,
		AutoDeleteHours: constants.DefaultAutoDeleteHours,
		LastActivity:    now,
		IsOnline:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Register creates a user with a unique username
func (s *Service) Register(ctx context.Context, rawUsername string) (*domain.User, error) {
	username, err := normalizeUsername(rawUsername)
	if err != nil {
		return nil, err
	}

	_, err = s.userRepo.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return nil, apperrors.UsernameExistsError()
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.StorageFailure(err)
	}

	user := newUser(username, s.now())
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperrors.UsernameExistsError()
		}
		return nil, apperrors.StorageFailure(err)
	}

	s.mirrorOnline(ctx, user.UserID, user.LastActivity)
	logger.FromContext(ctx).Info("User registered",
		zap.String("user_id", user.UserID.String()),
		zap.String("username", user.Username))

	return user, nil
}

// Authenticate logs a user in by username, creating the user when the name is unknown
func (s *Service) Authenticate(ctx context.Context, rawUsername string) (*domain.User, error) {
	username, err := normalizeUsername(rawUsername)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		user, err = s.createOrReread(ctx, username)
	}
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.StorageFailure(err)
	}

	now := s.now()
	if err := s.userRepo.TouchActivity(ctx, user.UserID, now); err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	user.LastActivity = now
	user.IsOnline = true
	user.UpdatedAt = now

	s.mirrorOnline(ctx, user.UserID, now)
	return user, nil
}

// createOrReread creates username; when a concurrent login wins the insert, the winner is returned
func (s *Service) createOrReread(ctx context.Context, username string) (*domain.User, error) {
	user := newUser(username, s.now())
	err := s.userRepo.Create(ctx, user)
	if err == nil {
		logger.FromContext(ctx).Info("User created on first login",
			zap.String("user_id", user.UserID.String()),
			zap.String("username", username))
		return user, nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return nil, err
	}
	return s.userRepo.GetByUsername(ctx, username)
}

// Get retrieves a user by ID
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, translate(err, "User")
	}
	return user, nil
}

// TouchActivity marks the user online and refreshes last activity
func (s *Service) TouchActivity(ctx context.Context, userID uuid.UUID) error {
	now := s.now()
	if err := s.userRepo.TouchActivity(ctx, userID, now); err != nil {
		return translate(err, "User")
	}
	s.mirrorOnline(ctx, userID, now)
	return nil
}

// SetOffline clears the online flag
func (s *Service) SetOffline(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.SetOffline(ctx, userID, s.now()); err != nil {
		return translate(err, "User")
	}

	if s.presence != nil {
		if err := s.presence.SetOffline(ctx, userID); err != nil {
			s.presenceFailed(ctx, "set_offline", err)
		}
	}
	return nil
}

// UpdatePreferences changes the message TTL used for the user's future messages
func (s *Service) UpdatePreferences(ctx context.Context, userID uuid.UUID, autoDeleteHours int) (*domain.User, error) {
	if autoDeleteHours < 0 || autoDeleteHours > constants.MaxAutoDeleteHours {
		return nil, apperrors.InvalidInputError("auto_delete_hours must be between 0 and 8760")
	}

	if err := s.userRepo.UpdateAutoDeleteHours(ctx, userID, autoDeleteHours, s.now()); err != nil {
		return nil, translate(err, "User")
	}
	return s.Get(ctx, userID)
}

// List returns all users, most recently active first
func (s *Service) List(ctx context.Context) ([]*domain.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	return users, nil
}

// ListOnline returns users seen within the online window.
// The Redis presence set is consulted first; stored activity is the fallback.
func (s *Service) ListOnline(ctx context.Context) ([]*domain.User, error) {
	now := s.now()
	since := now.Add(-constants.OnlineWindow)

	if s.presence != nil {
		ids, err := s.presence.OnlineUserIDs(ctx, since)
		if err == nil {
			users, err := s.userRepo.GetByIDs(ctx, ids)
			if err != nil {
				return nil, apperrors.StorageFailure(err)
			}
			online := make([]*domain.User, 0, len(users))
			for _, u := range users {
				if u.Online(now) {
					online = append(online, u)
				}
			}
			return online, nil
		}
		s.presenceFailed(ctx, "list_online", err)
	}

	users, err := s.userRepo.ListOnline(ctx, since)
	if err != nil {
		return nil, apperrors.StorageFailure(err)
	}
	return users, nil
}

func (s *Service) mirrorOnline(ctx context.Context, userID uuid.UUID, at time.Time) {
	if s.presence == nil {
		return
	}
	if err := s.presence.SetOnline(ctx, userID, at); err != nil {
		s.presenceFailed(ctx, "set_online", err)
	}
}

func (s *Service) presenceFailed(ctx context.Context, operation string, err error) {
	metrics.PresenceCacheErrorsTotal.WithLabelValues(operation).Inc()
	logger.FromContext(ctx).Warn("Presence cache unavailable",
		zap.String("operation", operation),
		zap.Error(err))
}

func translate(err error, resource string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NotFoundError(resource)
	}
	return apperrors.StorageFailure(err)
}

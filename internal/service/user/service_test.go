package user

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatcore-backend/internal/domain"
	"chatcore-backend/internal/repository"
	"chatcore-backend/internal/repository/memory"
	apperrors "chatcore-backend/pkg/errors"
)

// Mocks
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepository) ListOnline(ctx context.Context, since time.Time) ([]*domain.User, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByIDs(ctx context.Context, userIDs []uuid.UUID) ([]*domain.User, error) {
	args := m.Called(ctx, userIDs)
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepository) TouchActivity(ctx context.Context, userID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *MockUserRepository) SetOffline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateAutoDeleteHours(ctx context.Context, userID uuid.UUID, hours int, at time.Time) error {
	args := m.Called(ctx, userID, hours, at)
	return args.Error(0)
}

type MockPresenceCache struct {
	mock.Mock
}

func (m *MockPresenceCache) SetOnline(ctx context.Context, userID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *MockPresenceCache) SetOffline(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockPresenceCache) OnlineUserIDs(ctx context.Context, since time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func newMemoryService() *Service {
	return NewService(memory.NewUserRepository(memory.NewStore()), nil)
}

func TestRegister_Validation(t *testing.T) {
	service := newMemoryService()
	ctx := context.Background()

	_, err := service.Register(ctx, "   ")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = service.Register(ctx, strings.Repeat("a", 151))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	user, err := service.Register(ctx, strings.Repeat("a", 150))
	require.NoError(t, err)
	assert.Equal(t, 3, user.AutoDeleteHours)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	service := newMemoryService()
	ctx := context.Background()

	first, err := service.Register(ctx, "  alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Username)

	_, err = service.Register(ctx, "alice")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAlreadyExists))
}

func TestRegister_LosingUniqueRaceIsAlreadyExists(t *testing.T) {
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, nil)
	ctx := context.Background()

	mockRepo.On("GetByUsername", ctx, "bob").Return(nil, repository.ErrNotFound)
	mockRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Return(errors.Join(errors.New("insert"), repository.ErrConflict))

	_, err := service.Register(ctx, "bob")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAlreadyExists))
	mockRepo.AssertExpectations(t)
}

func TestAuthenticate_CreatesUnknownUser(t *testing.T) {
	service := newMemoryService()
	ctx := context.Background()

	first, err := service.Authenticate(ctx, "carol")
	require.NoError(t, err)

	second, err := service.Authenticate(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
	assert.True(t, second.Online(time.Now()))
}

func TestAuthenticate_ConcurrentFirstLoginsYieldOneUser(t *testing.T) {
	service := newMemoryService()
	ctx := context.Background()

	const workers = 16
	ids := make([]uuid.UUID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := service.Authenticate(ctx, "dave")
			if assert.NoError(t, err) {
				ids[i] = u.UserID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	users, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAuthenticate_RereadsWinnerOnConflict(t *testing.T) {
	mockRepo := new(MockUserRepository)
	service := NewService(mockRepo, nil)
	ctx := context.Background()

	winner := &domain.User{UserID: uuid.New(), Username: "erin"}
	mockRepo.On("GetByUsername", ctx, "erin").Return(nil, repository.ErrNotFound).Once()
	mockRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(repository.ErrConflict)
	mockRepo.On("GetByUsername", ctx, "erin").Return(winner, nil).Once()
	mockRepo.On("TouchActivity", ctx, winner.UserID, mock.AnythingOfType("time.Time")).Return(nil)

	user, err := service.Authenticate(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, winner.UserID, user.UserID)
	assert.True(t, user.IsOnline)
	mockRepo.AssertExpectations(t)
}

func TestTouchActivity_UnknownUser(t *testing.T) {
	service := newMemoryService()

	err := service.TouchActivity(context.Background(), uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	err = service.SetOffline(context.Background(), uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestSetOffline_PresenceFailureDoesNotFailCall(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockPresence := new(MockPresenceCache)
	service := NewService(mockRepo, mockPresence)
	ctx := context.Background()
	userID := uuid.New()

	mockRepo.On("SetOffline", ctx, userID, mock.AnythingOfType("time.Time")).Return(nil)
	mockPresence.On("SetOffline", ctx, userID).Return(errors.New("redis down"))

	assert.NoError(t, service.SetOffline(ctx, userID))
	mockRepo.AssertExpectations(t)
	mockPresence.AssertExpectations(t)
}

func TestUpdatePreferences(t *testing.T) {
	service := newMemoryService()
	ctx := context.Background()

	user, err := service.Register(ctx, "frank")
	require.NoError(t, err)

	_, err = service.UpdatePreferences(ctx, user.UserID, -1)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	_, err = service.UpdatePreferences(ctx, user.UserID, 8761)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	updated, err := service.UpdatePreferences(ctx, user.UserID, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.AutoDeleteHours)
}

func TestListOnline_FallsBackWhenCacheFails(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockPresence := new(MockPresenceCache)
	service := NewService(mockRepo, mockPresence)
	ctx := context.Background()

	online := []*domain.User{{UserID: uuid.New(), Username: "gina", IsOnline: true, LastActivity: time.Now()}}
	mockPresence.On("OnlineUserIDs", ctx, mock.AnythingOfType("time.Time")).Return(nil, errors.New("degraded"))
	mockRepo.On("ListOnline", ctx, mock.AnythingOfType("time.Time")).Return(online, nil)

	users, err := service.ListOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, online, users)
	mockRepo.AssertNotCalled(t, "GetByIDs", mock.Anything, mock.Anything)
}

func TestListOnline_UsesCacheAndFiltersStaleUsers(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockPresence := new(MockPresenceCache)
	service := NewService(mockRepo, mockPresence)
	ctx := context.Background()

	now := time.Now()
	service.now = func() time.Time { return now }

	fresh := &domain.User{UserID: uuid.New(), IsOnline: true, LastActivity: now.Add(-time.Minute)}
	stale := &domain.User{UserID: uuid.New(), IsOnline: true, LastActivity: now.Add(-time.Hour)}
	ids := []uuid.UUID{fresh.UserID, stale.UserID}

	mockPresence.On("OnlineUserIDs", ctx, now.Add(-30*time.Minute)).Return(ids, nil)
	mockRepo.On("GetByIDs", ctx, ids).Return([]*domain.User{fresh, stale}, nil)

	users, err := service.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, fresh.UserID, users[0].UserID)
}

package conversation

import (
	"context"
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

type fixture struct {
	service  *Service
	users    *memory.UserRepository
	messages *memory.MessageRepository
	convs    *memory.ConversationRepository
}

func newFixture() *fixture {
	store := memory.NewStore()
	f := &fixture{
		users:    memory.NewUserRepository(store),
		messages: memory.NewMessageRepository(store),
		convs:    memory.NewConversationRepository(store),
	}
	f.service = NewService(f.convs, f.users, f.messages)
	return f
}

func (f *fixture) user(t *testing.T, name string) uuid.UUID {
	t.Helper()
	now := time.Now()
	u := &domain.User{
		UserID:          uuid.New(),
		Username:        name,
		AutoDeleteHours: 3,
		LastActivity:    now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u.UserID
}

func (f *fixture) group(t *testing.T, admin uuid.UUID, privacy domain.GroupPrivacy, limit int) *domain.Conversation {
	t.Helper()
	out, err := f.service.CreateGroup(context.Background(), &CreateGroupInput{
		CreatorID:   admin,
		Name:        "team",
		Privacy:     privacy,
		MemberLimit: limit,
	})
	require.NoError(t, err)
	return out.Conversation
}

func TestFindOrCreateDirect_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.user(t, "alice")

	_, err := f.service.FindOrCreateDirect(ctx, alice, alice)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = f.service.FindOrCreateDirect(ctx, alice, uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestFindOrCreateDirect_ConcurrentCallsYieldOneConversation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	const workers = 20
	ids := make([]uuid.UUID, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = bob, alice
			}
			conv, err := f.service.FindOrCreateDirect(ctx, a, b)
			if assert.NoError(t, err) {
				ids[i] = conv.ConversationID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	third, err := f.service.FindOrCreateDirect(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, ids[0], third.ConversationID)

	list, err := f.service.ListForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Len(t, list[0].Participants, 2)
}

type conflictingConversationRepo struct {
	repository.ConversationRepository
	mock.Mock
}

func (m *conflictingConversationRepo) GetDirectByPair(ctx context.Context, pair domain.DirectPair) (*domain.Conversation, error) {
	args := m.Called(ctx, pair)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *conflictingConversationRepo) CreateDirect(ctx context.Context, conv *domain.Conversation, pair domain.DirectPair) error {
	args := m.Called(ctx, conv, pair)
	return args.Error(0)
}

func TestFindOrCreateDirect_LoserReturnsWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	pair := domain.NewDirectPair(alice, bob)

	winner := &domain.Conversation{ConversationID: uuid.New(), Type: domain.ConversationTypeDirect}
	repo := new(conflictingConversationRepo)
	repo.On("GetDirectByPair", ctx, pair).Return(nil, repository.ErrNotFound).Once()
	repo.On("CreateDirect", ctx, mock.AnythingOfType("*domain.Conversation"), pair).Return(repository.ErrConflict)
	repo.On("GetDirectByPair", ctx, pair).Return(winner, nil).Once()

	service := NewService(repo, f.users, f.messages)
	conv, err := service.FindOrCreateDirect(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, winner.ConversationID, conv.ConversationID)
	repo.AssertExpectations(t)
}

func TestCreateGroup_Validation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.user(t, "admin")

	_, err := f.service.CreateGroup(ctx, &CreateGroupInput{CreatorID: admin, Name: "  "})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = f.service.CreateGroup(ctx, &CreateGroupInput{CreatorID: admin, Name: "g", Privacy: "secret"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = f.service.CreateGroup(ctx, &CreateGroupInput{CreatorID: admin, Name: "g", MemberLimit: 7})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))

	_, err = f.service.CreateGroup(ctx, &CreateGroupInput{CreatorID: uuid.New(), Name: "g"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	out, err := f.service.CreateGroup(ctx, &CreateGroupInput{CreatorID: admin, Name: "g"})
	require.NoError(t, err)
	assert.Equal(t, domain.PrivacyPublic, out.Conversation.PrivacyLevel())
	assert.Equal(t, 50, out.Conversation.Limit())
	assert.True(t, out.Conversation.IsAdmin(admin))
	assert.Empty(t, out.Skipped)
}

func TestCreateGroup_SeedsBestEffort(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.user(t, "admin")

	members := []uuid.UUID{admin}
	for _, name := range []string{"u1", "u2", "u3", "u4", "u5"} {
		members = append(members, f.user(t, name))
	}
	unknown := uuid.New()
	members = append(members, unknown)

	out, err := f.service.CreateGroup(ctx, &CreateGroupInput{
		CreatorID:   admin,
		Name:        "five",
		MemberLimit: 5,
		MemberIDs:   members,
	})
	require.NoError(t, err)

	assert.Equal(t, []SkippedMember{
		{UserID: admin, Reason: SkipDuplicate},
		{UserID: members[5], Reason: SkipCapacity},
		{UserID: unknown, Reason: SkipUnknownUser},
	}, out.Skipped)

	participants, err := f.service.Participants(ctx, out.Conversation.ConversationID)
	require.NoError(t, err)
	assert.Len(t, participants, 5)
	assert.Equal(t, admin, participants[0].UserID)
}

func TestAddMember_CheckOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.user(t, "admin")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	err := f.service.AddMember(ctx, uuid.New(), admin, bob)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	direct, err := f.service.FindOrCreateDirect(ctx, admin, bob)
	require.NoError(t, err)
	err = f.service.AddMember(ctx, direct.ConversationID, admin, carol)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))

	closed := f.group(t, admin, domain.PrivacyClosed, 5)
	err = f.service.AddMember(ctx, closed.ConversationID, bob, carol)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	err = f.service.AddMember(ctx, closed.ConversationID, admin, uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))

	require.NoError(t, f.service.AddMember(ctx, closed.ConversationID, admin, carol))
	err = f.service.AddMember(ctx, closed.ConversationID, admin, carol)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAlreadyMember))

	open := f.group(t, admin, domain.PrivacyInvite, 5)
	assert.NoError(t, f.service.AddMember(ctx, open.ConversationID, bob, carol))
}

func TestAddMember_LimitBoundary(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.user(t, "admin")
	group := f.group(t, admin, domain.PrivacyPublic, 5)

	for _, name := range []string{"m1", "m2", "m3"} {
		require.NoError(t, f.service.AddMember(ctx, group.ConversationID, admin, f.user(t, name)))
	}

	// limit-1 members: one more fits
	require.NoError(t, f.service.AddMember(ctx, group.ConversationID, admin, f.user(t, "m4")))

	err := f.service.AddMember(ctx, group.ConversationID, admin, f.user(t, "m5"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCapacityExceeded))
	assert.True(t, apperrors.IsCapacityExceeded(err))
}

func TestAddMember_ConcurrentAddsNeverExceedLimit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.user(t, "admin")
	group := f.group(t, admin, domain.PrivacyPublic, 10)

	candidates := make([]uuid.UUID, 30)
	for i := range candidates {
		candidates[i] = f.user(t, uuid.NewString())
	}

	var wg sync.WaitGroup
	for _, id := range candidates {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			err := f.service.AddMember(ctx, group.ConversationID, admin, id)
			if err != nil {
				assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeCapacityExceeded))
			}
		}(id)
	}
	wg.Wait()

	participants, err := f.service.Participants(ctx, group.ConversationID)
	require.NoError(t, err)
	assert.Len(t, participants, 10)
}

func TestRemoveMember(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.user(t, "admin")
	bob := f.user(t, "bob")
	group := f.group(t, admin, domain.PrivacyPublic, 10)
	require.NoError(t, f.service.AddMember(ctx, group.ConversationID, admin, bob))

	err := f.service.RemoveMember(ctx, group.ConversationID, bob, admin)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	require.NoError(t, f.service.RemoveMember(ctx, group.ConversationID, admin, bob))
	require.NoError(t, f.service.RemoveMember(ctx, group.ConversationID, admin, bob))

	member, err := f.convs.IsParticipant(ctx, group.ConversationID, bob)
	require.NoError(t, err)
	assert.False(t, member)

	direct, err := f.service.FindOrCreateDirect(ctx, admin, bob)
	require.NoError(t, err)
	err = f.service.RemoveMember(ctx, direct.ConversationID, admin, bob)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidState))
}

func TestGet_ReadAccess(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	eve := f.user(t, "eve")

	direct, err := f.service.FindOrCreateDirect(ctx, alice, bob)
	require.NoError(t, err)
	_, err = f.service.Get(ctx, direct.ConversationID, eve)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))

	view, err := f.service.Get(ctx, direct.ConversationID, bob)
	require.NoError(t, err)
	assert.Equal(t, direct.ConversationID, view.ConversationID)
	assert.NotNil(t, view.Messages)

	public := f.group(t, alice, domain.PrivacyPublic, 5)
	_, err = f.service.Get(ctx, public.ConversationID, eve)
	assert.NoError(t, err)

	invite := f.group(t, alice, domain.PrivacyInvite, 5)
	_, err = f.service.Get(ctx, invite.ConversationID, eve)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeForbidden))
}

func TestListForUser_NewestFirstWithActiveMessages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")

	base := time.Now()
	f.service.now = func() time.Time { return base.Add(-time.Hour) }
	older, err := f.service.FindOrCreateDirect(ctx, alice, bob)
	require.NoError(t, err)

	f.service.now = func() time.Time { return base }
	newer := f.group(t, alice, domain.PrivacyPublic, 5)

	past := base.Add(-time.Minute)
	future := base.Add(time.Hour)
	for _, expires := range []*time.Time{&past, &future, nil} {
		require.NoError(t, f.messages.Create(ctx, &domain.Message{
			MessageID:      uuid.New(),
			ConversationID: older.ConversationID,
			SenderID:       alice,
			Content:        "hi",
			ContentType:    domain.ContentTypeText,
			SentAt:         base.Add(-2 * time.Minute),
			ExpiresAt:      expires,
		}))
	}

	views, err := f.service.ListForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, newer.ConversationID, views[0].ConversationID)
	assert.Equal(t, older.ConversationID, views[1].ConversationID)
	assert.Len(t, views[1].Messages, 2)

	_, err = f.service.ListForUser(ctx, uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestLookup_IgnoresMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin := f.user(t, "admin")
	conv := f.group(t, admin, domain.PrivacyClosed, 5)

	found, err := f.service.Lookup(ctx, conv.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, conv.ConversationID, found.ConversationID)

	_, err = f.service.Lookup(ctx, uuid.New())
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

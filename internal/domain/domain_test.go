package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewDirectPair_IsOrderIndependent(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	b := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

	assert.Equal(t, NewDirectPair(a, b), NewDirectPair(b, a))
	assert.Equal(t, a, NewDirectPair(b, a).Low)
	assert.Equal(t, b, NewDirectPair(b, a).High)
}

func TestUserOnline(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	u := &User{IsOnline: true, LastActivity: now.Add(-30 * time.Minute)}
	assert.True(t, u.Online(now))

	u.LastActivity = now.Add(-31 * time.Minute)
	assert.False(t, u.Online(now))

	u = &User{IsOnline: false, LastActivity: now}
	assert.False(t, u.Online(now))
}

func TestMessageActiveAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	assert.True(t, (&Message{}).ActiveAt(now))
	assert.True(t, (&Message{ExpiresAt: &future}).ActiveAt(now))
	assert.False(t, (&Message{ExpiresAt: &past}).ActiveAt(now))
	// Expiring exactly now is already gone
	assert.False(t, (&Message{ExpiresAt: &now}).ActiveAt(now))
}

func TestContentType(t *testing.T) {
	assert.True(t, ContentTypeImage.Valid())
	assert.False(t, ContentType("sticker").Valid())
	assert.False(t, ContentTypeText.CarriesFile())
	assert.True(t, ContentTypeAudio.CarriesFile())
}

func TestConversationDefaults(t *testing.T) {
	admin := uuid.New()
	c := &Conversation{Type: ConversationTypeGroup, AdminID: &admin}

	assert.True(t, c.IsGroup())
	assert.True(t, c.IsAdmin(admin))
	assert.False(t, c.IsAdmin(uuid.New()))
	assert.Equal(t, PrivacyPublic, c.PrivacyLevel())
	assert.Equal(t, 0, c.Limit())
	assert.False(t, GroupPrivacy("secret").Valid())
}

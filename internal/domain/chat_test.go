package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatMessage_ToView(t *testing.T) {
	author := &UserProfile{ID: "u1", Username: "alice"}
	msg := &ChatMessage{ID: "m1", ChatRoomID: "r1", UserID: "u1", Content: "hi", Type: MessageTypeMessage}

	v := msg.ToView(author)
	assert.Equal(t, "hi", v.Content)
	assert.Equal(t, author, v.User)

	deletedBy := "owner"
	msg.IsDeleted = true
	msg.DeletedBy = &deletedBy

	v = msg.ToView(author)
	assert.Equal(t, DeletedMessagePlaceholder, v.Content)
	assert.Nil(t, v.User)
	assert.True(t, v.IsDeleted)
	assert.Equal(t, "hi", msg.Content, "stored content is retained")
}

func TestMessageType_Valid(t *testing.T) {
	assert.True(t, MessageTypeEmote.Valid())
	assert.False(t, MessageType("shout").Valid())
	assert.False(t, MessageType("").Valid())
}

func TestViewerSession_IsActive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &ViewerSession{LastActiveAt: now.Add(-4*time.Minute - 59*time.Second)}
	assert.True(t, s.IsActive(now, DefaultActiveWindow))

	s.LastActiveAt = now.Add(-5*time.Minute - time.Second)
	assert.False(t, s.IsActive(now, DefaultActiveWindow))

	s.LastActiveAt = now.Add(-DefaultActiveWindow)
	assert.False(t, s.IsActive(now, DefaultActiveWindow), "window is exclusive")
}

func TestChatRoom_Policy(t *testing.T) {
	r := &ChatRoom{}
	assert.Zero(t, r.SlowModeInterval())
	assert.False(t, r.IsFollowersOnly())

	secs, yes := 10, true
	r.SlowMode = &secs
	r.FollowersOnly = &yes
	assert.Equal(t, 10*time.Second, r.SlowModeInterval())
	assert.True(t, r.IsFollowersOnly())
}

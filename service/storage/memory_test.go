package storage

import (
	"context"
	"testing"

	"LinkHub/module/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSession = "s1"
	testChatA   = "111@c.us"
	testChatB   = "222@c.us"
)

func TestMemoryStore_UpsertChatsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	batch := []model.Chat{
		{ID: testChatA, SessionID: testSession, ContactName: "A", Timestamp: 100, ProfilePicURL: "http://pic/a"},
		{ID: testChatB, SessionID: testSession, ContactName: "B", Timestamp: 200},
	}
	require.NoError(t, st.UpsertChats(ctx, batch))
	// second run: avatar fetch timed out for A, keep the old picture
	batch[0].ProfilePicURL = ""
	require.NoError(t, st.UpsertChats(ctx, batch))

	chats, err := st.ListChats(ctx, testSession)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, testChatB, chats[0].ID, "most recent first")
	assert.Equal(t, "http://pic/a", chats[1].ProfilePicURL)
}

func TestMemoryStore_InsertMessagesIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	msg := model.Message{ProviderID: "ABC123", ChatID: testChatA, Body: "hi", Timestamp: 10}

	n, err := st.InsertMessages(ctx, []model.Message{msg})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msg.Body = "changed"
	n, err = st.InsertMessages(ctx, []model.Message{msg, msg})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, ok := st.Message("ABC123")
	require.True(t, ok)
	assert.Equal(t, "hi", got.Body)
	_, total := st.Counts()
	assert.Equal(t, 1, total)
}

func TestMemoryStore_UpdateAckMonotonic(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	_, err := st.InsertMessages(ctx, []model.Message{{ProviderID: "m1", ChatID: testChatA}})
	require.NoError(t, err)

	require.NoError(t, st.UpdateAck(ctx, "m1", model.AckRead))
	require.NoError(t, st.UpdateAck(ctx, "m1", model.AckDelivered))
	require.NoError(t, st.UpdateAck(ctx, "missing", model.AckRead))

	got, _ := st.Message("m1")
	assert.Equal(t, model.AckRead, got.Ack)
}

func TestMemoryStore_TouchChatKeepsName(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.UpsertChats(ctx, []model.Chat{{ID: testChatA, SessionID: testSession, ContactName: "Alice", UnreadCount: 4}}))

	require.NoError(t, st.TouchChat(ctx, model.Chat{ID: testChatA, SessionID: testSession, ContactName: testChatA, LastMessage: "yo", Timestamp: 500}))
	c, _ := st.Chat(testChatA)
	assert.Equal(t, "Alice", c.ContactName)
	assert.Equal(t, "yo", c.LastMessage)
	assert.Equal(t, int64(500), c.Timestamp)

	require.NoError(t, st.MarkChatRead(ctx, testChatA))
	c, _ = st.Chat(testChatA)
	assert.Zero(t, c.UnreadCount)
}

func TestMemoryStore_ListMessagesOrdered(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	_, err := st.InsertMessages(ctx, []model.Message{
		{ProviderID: "m3", ChatID: testChatA, Timestamp: 30},
		{ProviderID: "m1", ChatID: testChatA, Timestamp: 10},
		{ProviderID: "x", ChatID: testChatB, Timestamp: 5},
		{ProviderID: "m2", ChatID: testChatA, Timestamp: 10},
	})
	require.NoError(t, err)

	msgs, err := st.ListMessages(ctx, testChatA)
	require.NoError(t, err)
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ProviderID)
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids)
}

func TestMemoryObjects(t *testing.T) {
	o := NewMemoryObjects("http://localhost:3000/media/")
	url, err := o.Upload(context.Background(), "outgoing_1.png", "image/png", []byte{1, 2})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/media/outgoing_1.png", url)
	obj, ok := o.Get("outgoing_1.png")
	require.True(t, ok)
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestMemoryStore_ChatSession(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()
	require.NoError(t, st.UpsertChats(ctx, []model.Chat{{ID: testChatA, SessionID: testSession}}))

	owner, err := st.ChatSession(ctx, testChatA)
	require.NoError(t, err)
	assert.Equal(t, testSession, owner)

	owner, err = st.ChatSession(ctx, testChatB)
	require.NoError(t, err)
	assert.Empty(t, owner)
}

package mgo

import (
	"context"
	"testing"

	"LinkHub/module/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("insert messages counts upserts", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "ABC123"}}}},
		))
		n, err := s.InsertMessages(ctx, []model.Message{
			{ProviderID: "ABC123", ChatID: "111@c.us", Body: "hi"},
			{ProviderID: "ABC123", ChatID: "111@c.us", Body: "hi"},
		})
		require.NoError(mt, err)
		assert.Equal(mt, 1, n)
	})

	mt.Run("insert nothing", func(mt *mtest.T) {
		n, err := New(mt.DB).InsertMessages(ctx, nil)
		require.NoError(mt, err)
		assert.Zero(mt, n)
	})

	mt.Run("list chats", func(mt *mtest.T) {
		s := New(mt.DB)
		ns := mt.DB.Name() + "." + collChats
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "222@c.us"}, {Key: "session_id", Value: "s1"}, {Key: "timestamp", Value: int64(200)}},
			bson.D{{Key: "_id", Value: "111@c.us"}, {Key: "session_id", Value: "s1"}, {Key: "timestamp", Value: int64(100)},
				{Key: "profile_pic_url", Value: "http://pic/a"}},
		))
		chats, err := s.ListChats(ctx, "s1")
		require.NoError(mt, err)
		require.Len(mt, chats, 2)
		assert.Equal(mt, "222@c.us", chats[0].ID)
		assert.Equal(mt, "http://pic/a", chats[1].ProfilePicURL)
	})

	mt.Run("update ack", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		assert.NoError(mt, s.UpdateAck(ctx, "ABC123", model.AckDelivered))
	})

	mt.Run("chat session", func(mt *mtest.T) {
		s := New(mt.DB)
		ns := mt.DB.Name() + "." + collChats
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: "111@c.us"}, {Key: "session_id", Value: "s1"}}))
		owner, err := s.ChatSession(ctx, "111@c.us")
		require.NoError(mt, err)
		assert.Equal(mt, "s1", owner)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		owner, err = s.ChatSession(ctx, "unknown@c.us")
		require.NoError(mt, err)
		assert.Empty(mt, owner)
	})

	mt.Run("upsert chats error", func(mt *mtest.T) {
		s := New(mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code: 11000, Name: "DuplicateKey", Message: "duplicate",
		}))
		err := s.UpsertChats(ctx, []model.Chat{{ID: "111@c.us", SessionID: "s1"}})
		assert.Error(mt, err)
	})
}

func TestMessageFields_OmitsEmptyOptionals(t *testing.T) {
	doc := messageFields(model.Message{ProviderID: "x", ChatID: "c", Body: "b", SenderName: "Me"})
	_, hasID := doc["_id"]
	assert.False(t, hasID)
	_, hasMedia := doc["media_url"]
	assert.False(t, hasMedia)
	assert.Equal(t, "Me", doc["sender_name"])
}

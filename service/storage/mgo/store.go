// Package mgo implements storage.Store on MongoDB.
package mgo

import (
	"context"
	"errors"
	"time"

	"LinkHub/data/database/mgo/mongoutil"
	"LinkHub/module/model"
	"LinkHub/service/storage"
	"LinkHub/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collSessions = "sessions"
	collChats    = "chats"
	collMessages = "messages"
)

type Store struct {
	db       *mongo.Database
	sessions *mongo.Collection
	chats    *mongo.Collection
	messages *mongo.Collection
}

var _ storage.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{
		db:       db,
		sessions: db.Collection(collSessions),
		chats:    db.Collection(collChats),
		messages: db.Collection(collMessages),
	}
}

// Open connects through mongoutil and makes sure the listing indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	cli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{Uri: uri, Database: database})
	if err != nil {
		return nil, err
	}
	s := New(cli.GetDB())
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: -1}},
	}); err != nil {
		return errs.ErrStorage.WrapMsg("create chats index", "err", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}); err != nil {
		return errs.ErrStorage.WrapMsg("create messages index", "err", err)
	}
	return nil
}

func (s *Store) UpsertSession(ctx context.Context, sess model.Session) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	_, err := s.sessions.UpdateOne(ctx,
		bson.M{"_id": sess.ID},
		bson.M{"$set": bson.M{"status": sess.Status, "updated_at": sess.UpdatedAt}},
		options.Update().SetUpsert(true))
	if err != nil {
		return errs.WrapMsg(err, "upsert session", "id", sess.ID)
	}
	return nil
}

func (s *Store) UpsertChats(ctx context.Context, chats []model.Chat) error {
	if len(chats) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(chats))
	for _, c := range chats {
		set := bson.M{
			"session_id":   c.SessionID,
			"contact_name": c.ContactName,
			"last_message": c.LastMessage,
			"timestamp":    c.Timestamp,
			"unread_count": max(c.UnreadCount, 0),
		}
		// 头像获取失败时保留旧值
		if c.ProfilePicURL != "" {
			set["profile_pic_url"] = c.ProfilePicURL
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": c.ID}).
			SetUpdate(bson.M{"$set": set}).
			SetUpsert(true))
	}
	// ordered: later entries for the same id win
	if _, err := s.chats.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
		return errs.WrapMsg(err, "upsert chats", "count", len(chats))
	}
	return nil
}

func (s *Store) TouchChat(ctx context.Context, c model.Chat) error {
	set := bson.M{
		"session_id":   c.SessionID,
		"last_message": c.LastMessage,
		"timestamp":    c.Timestamp,
	}
	onInsert := bson.M{"unread_count": 0}
	if c.ContactName != "" && c.ContactName != c.ID {
		set["contact_name"] = c.ContactName
	} else {
		onInsert["contact_name"] = c.ContactName
	}
	_, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": c.ID},
		bson.M{"$set": set, "$setOnInsert": onInsert},
		options.Update().SetUpsert(true))
	if err != nil {
		return errs.WrapMsg(err, "touch chat", "id", c.ID)
	}
	return nil
}

// InsertMessages upserts with $setOnInsert so an existing provider id is left untouched.
func (s *Store) InsertMessages(ctx context.Context, msgs []model.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	models := make([]mongo.WriteModel, 0, len(msgs))
	for _, m := range msgs {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": m.ProviderID}).
			SetUpdate(bson.M{"$setOnInsert": messageFields(m)}).
			SetUpsert(true))
	}
	res, err := s.messages.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, errs.WrapMsg(err, "insert messages", "count", len(msgs))
	}
	return int(res.UpsertedCount), nil
}

func messageFields(m model.Message) bson.M {
	doc := bson.M{
		"chat_id":     m.ChatID,
		"body":        m.Body,
		"from_me":     m.FromMe,
		"sender_name": m.SenderName,
		"timestamp":   m.Timestamp,
		"ack":         m.Ack,
	}
	if m.ParticipantID != "" {
		doc["participant_id"] = m.ParticipantID
	}
	if m.MediaURL != "" {
		doc["media_url"] = m.MediaURL
	}
	if m.MediaType != "" {
		doc["media_type"] = m.MediaType
	}
	if m.Caption != "" {
		doc["caption"] = m.Caption
	}
	return doc
}

func (s *Store) UpdateAck(ctx context.Context, providerID string, ack model.AckLevel) error {
	_, err := s.messages.UpdateOne(ctx,
		bson.M{"_id": providerID, "ack": bson.M{"$lt": ack}},
		bson.M{"$set": bson.M{"ack": ack}})
	if err != nil {
		return errs.WrapMsg(err, "update ack", "id", providerID)
	}
	return nil
}

func (s *Store) MarkChatRead(ctx context.Context, chatID string) error {
	_, err := s.chats.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{"$set": bson.M{"unread_count": 0}})
	if err != nil {
		return errs.WrapMsg(err, "mark chat read", "id", chatID)
	}
	return nil
}

func (s *Store) ListChats(ctx context.Context, sessionID string) ([]model.Chat, error) {
	cur, err := s.chats.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find chats", "session", sessionID)
	}
	out := make([]model.Chat, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode chats", "session", sessionID)
	}
	return out, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	cur, err := s.messages.Find(ctx, bson.M{"chat_id": chatID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find messages", "chat", chatID)
	}
	out := make([]model.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages", "chat", chatID)
	}
	return out, nil
}

func (s *Store) ChatSession(ctx context.Context, chatID string) (string, error) {
	var doc struct {
		SessionID string `bson:"session_id"`
	}
	err := s.chats.FindOne(ctx, bson.M{"_id": chatID},
		options.FindOne().SetProjection(bson.M{"session_id": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", errs.WrapMsg(err, "find chat session", "chat", chatID)
	}
	return doc.SessionID, nil
}

func (s *Store) Close() error {
	return s.db.Client().Disconnect(context.Background())
}

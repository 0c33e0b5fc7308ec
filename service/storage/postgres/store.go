// Package postgres implements storage.Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"LinkHub/module/model"
	"LinkHub/service/storage"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// psq is a statement builder configured for PostgreSQL placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// maxRowsPerStatement keeps multi-row inserts well below the 65535 parameter limit.
const maxRowsPerStatement = 500

var chatColumns = []string{
	"id", "session_id", "contact_name", "last_message", "timestamp", "profile_pic_url", "unread_count",
}

var messageColumns = []string{
	"provider_message_id", "chat_id", "body", "from_me", "sender_name", "participant_id",
	"timestamp", "media_url", "media_type", "caption", "ack",
}

const upsertChatSuffix = `ON CONFLICT (id) DO UPDATE SET
	session_id = EXCLUDED.session_id,
	contact_name = EXCLUDED.contact_name,
	last_message = EXCLUDED.last_message,
	timestamp = EXCLUDED.timestamp,
	profile_pic_url = COALESCE(EXCLUDED.profile_pic_url, chats.profile_pic_url),
	unread_count = EXCLUDED.unread_count`

const touchChatSuffix = `ON CONFLICT (id) DO UPDATE SET
	session_id = EXCLUDED.session_id,
	last_message = EXCLUDED.last_message,
	timestamp = EXCLUDED.timestamp,
	contact_name = CASE
		WHEN EXCLUDED.contact_name = '' OR EXCLUDED.contact_name = EXCLUDED.id THEN chats.contact_name
		ELSE EXCLUDED.contact_name
	END`

// Store implements storage.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a PostgreSQL store on an open database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects through the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return db, nil
}

// UpsertSession records the session's current status.
func (s *Store) UpsertSession(ctx context.Context, sess model.Session) error {
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now()
	}
	query, args, err := psq.Insert("sessions").
		Columns("id", "status", "updated_at").
		Values(sess.ID, string(sess.Status), sess.UpdatedAt).
		Suffix("ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building session upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

// UpsertChats writes chats in as few statements as possible.
func (s *Store) UpsertChats(ctx context.Context, chats []model.Chat) error {
	chats = dedupeChats(chats)
	for start := 0; start < len(chats); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(chats))
		qb := psq.Insert("chats").Columns(chatColumns...)
		for _, c := range chats[start:end] {
			qb = qb.Values(c.ID, c.SessionID, c.ContactName, c.LastMessage, c.Timestamp,
				nullString(c.ProfilePicURL), max(c.UnreadCount, 0))
		}
		query, args, err := qb.Suffix(upsertChatSuffix).ToSql()
		if err != nil {
			return fmt.Errorf("building chat upsert: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upserting chats: %w", err)
		}
	}
	return nil
}

// TouchChat bumps preview and activity for a live message.
func (s *Store) TouchChat(ctx context.Context, c model.Chat) error {
	query, args, err := psq.Insert("chats").
		Columns("id", "session_id", "contact_name", "last_message", "timestamp").
		Values(c.ID, c.SessionID, c.ContactName, c.LastMessage, c.Timestamp).
		Suffix(touchChatSuffix).
		ToSql()
	if err != nil {
		return fmt.Errorf("building chat touch: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touching chat: %w", err)
	}
	return nil
}

// InsertMessages inserts messages, skipping provider ids that already exist.
func (s *Store) InsertMessages(ctx context.Context, msgs []model.Message) (int, error) {
	inserted := 0
	for start := 0; start < len(msgs); start += maxRowsPerStatement {
		end := min(start+maxRowsPerStatement, len(msgs))
		qb := psq.Insert("messages").Columns(messageColumns...)
		for _, m := range msgs[start:end] {
			qb = qb.Values(m.ProviderID, m.ChatID, m.Body, m.FromMe, nullString(m.SenderName),
				nullString(m.ParticipantID), m.Timestamp, nullString(m.MediaURL),
				nullString(string(m.MediaType)), nullString(m.Caption), int(m.Ack))
		}
		query, args, err := qb.Suffix("ON CONFLICT (provider_message_id) DO NOTHING").ToSql()
		if err != nil {
			return inserted, fmt.Errorf("building message insert: %w", err)
		}
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("inserting messages: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("counting inserted messages: %w", err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

// UpdateAck raises a message's ack level. Stale acks match no row.
func (s *Store) UpdateAck(ctx context.Context, providerID string, ack model.AckLevel) error {
	query, args, err := psq.Update("messages").
		Set("ack", int(ack)).
		Where(sq.Eq{"provider_message_id": providerID}).
		Where(sq.Lt{"ack": int(ack)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building ack update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating ack: %w", err)
	}
	return nil
}

// MarkChatRead resets the unread counter.
func (s *Store) MarkChatRead(ctx context.Context, chatID string) error {
	query, args, err := psq.Update("chats").
		Set("unread_count", 0).
		Where(sq.Eq{"id": chatID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building read update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("marking chat read: %w", err)
	}
	return nil
}

// ListChats returns the session's chats, newest activity first.
func (s *Store) ListChats(ctx context.Context, sessionID string) ([]model.Chat, error) {
	query, args, err := psq.Select(chatColumns...).
		From("chats").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("timestamp DESC", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building chat query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer rows.Close() //nolint:errcheck // closing rows after iteration

	chats := make([]model.Chat, 0)
	for rows.Next() {
		var (
			c   model.Chat
			pic sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.SessionID, &c.ContactName, &c.LastMessage, &c.Timestamp, &pic, &c.UnreadCount); err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		c.ProfilePicURL = pic.String
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chats: %w", err)
	}
	return chats, nil
}

// ListMessages returns the chat's messages in time order.
func (s *Store) ListMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	query, args, err := psq.Select(messageColumns...).
		From("messages").
		Where(sq.Eq{"chat_id": chatID}).
		OrderBy("timestamp ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building message query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // closing rows after iteration

	msgs := make([]model.Message, 0)
	for rows.Next() {
		var (
			m                                        model.Message
			sender, participant, url, mtype, caption sql.NullString
			ack                                      int
		)
		if err := rows.Scan(&m.ProviderID, &m.ChatID, &m.Body, &m.FromMe, &sender, &participant,
			&m.Timestamp, &url, &mtype, &caption, &ack); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.SenderName = sender.String
		m.ParticipantID = participant.String
		m.MediaURL = url.String
		m.MediaType = model.MediaType(mtype.String)
		m.Caption = caption.String
		m.Ack = model.AckLevel(ack)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}

// ChatSession looks up the owning session of a chat.
func (s *Store) ChatSession(ctx context.Context, chatID string) (string, error) {
	query, args, err := psq.Select("session_id").
		From("chats").
		Where(sq.Eq{"id": chatID}).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("building chat session query: %w", err)
	}
	var sessionID string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&sessionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("querying chat session: %w", err)
	}
	return sessionID, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// dedupeChats keeps the last entry per id; one INSERT ... ON CONFLICT DO UPDATE
// may not touch the same row twice.
func dedupeChats(chats []model.Chat) []model.Chat {
	if len(chats) < 2 {
		return chats
	}
	idx := make(map[string]int, len(chats))
	out := make([]model.Chat, 0, len(chats))
	for _, c := range chats {
		if i, ok := idx[c.ID]; ok {
			out[i] = c
			continue
		}
		idx[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}

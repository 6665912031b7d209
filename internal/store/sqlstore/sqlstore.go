package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wiredm/internal/store"
	"github.com/vovakirdan/wiredm/internal/utils"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const messageColumns = `id, room, sender_id, receiver_id, text, sent_at, status, delivered_at, read_at, deleted`

// SQLStore implements store.Store on top of sqlx for SQLite and PostgreSQL.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

// New opens the database, applies migrations and returns a ready store.
// For SQLite dsn is a file path (or ":memory:"); for PostgreSQL it is a connection URL.
func New(driver, dsn string) (*SQLStore, error) {
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite works best with a single connection; ":memory:" requires it.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := ApplyMigrations(db.DB, driver); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLStore{db: db, driver: driver}, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// CreateMessage persists a new message in the sent state.
func (s *SQLStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}
	msg.SentAt = msg.SentAt.UTC()
	msg.Status = store.StatusSent
	msg.DeliveredAt = nil
	msg.ReadAt = nil
	msg.Deleted = false

	query := s.db.Rebind(`
		INSERT INTO messages (id, room, sender_id, receiver_id, text, sent_at, status, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, FALSE)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.Room, msg.SenderID, msg.ReceiverID, msg.Text, msg.SentAt, msg.Status,
	); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetMessage retrieves a message by id, including its hidden-for set.
func (s *SQLStore) GetMessage(ctx context.Context, id string) (*store.Message, error) {
	return getMessage(ctx, s.db, id)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	Rebind(query string) string
}

func getMessage(ctx context.Context, q queryer, id string) (*store.Message, error) {
	var msg store.Message
	query := q.Rebind(`SELECT ` + messageColumns + ` FROM messages WHERE id = ?`)
	if err := sqlx.GetContext(ctx, q, &msg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	hiddenQuery := q.Rebind(`
		SELECT user_id FROM message_hidden WHERE message_id = ? ORDER BY user_id
	`)
	if err := sqlx.SelectContext(ctx, q, &msg.HiddenFor, hiddenQuery, id); err != nil {
		return nil, fmt.Errorf("query hidden-for: %w", err)
	}
	normalize(&msg)
	return &msg, nil
}

// ListRoomMessages returns the messages of a room visible to viewerID, oldest first.
func (s *SQLStore) ListRoomMessages(ctx context.Context, room, viewerID string) ([]*store.Message, error) {
	query := s.db.Rebind(`
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.room = ?
		  AND NOT EXISTS (
			SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = ?
		  )
		ORDER BY m.sent_at ASC, m.seq ASC
	`)
	var messages []*store.Message
	if err := s.db.SelectContext(ctx, &messages, query, room, viewerID); err != nil {
		return nil, fmt.Errorf("query room messages: %w", err)
	}
	for _, m := range messages {
		normalize(m)
	}
	return messages, nil
}

// MarkDelivered advances a single message from sent to delivered.
func (s *SQLStore) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	query := s.db.Rebind(`
		UPDATE messages SET status = 'delivered', delivered_at = ?
		WHERE id = ? AND status = 'sent'
	`)
	res, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("mark delivered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkPendingDelivered advances every sent message addressed to receiverID to delivered.
func (s *SQLStore) MarkPendingDelivered(ctx context.Context, receiverID string, at time.Time) ([]store.StatusChange, error) {
	query := s.db.Rebind(`
		UPDATE messages SET status = 'delivered', delivered_at = ?
		WHERE receiver_id = ? AND status = 'sent'
		RETURNING id, room, sender_id
	`)
	var changes []store.StatusChange
	if err := s.db.SelectContext(ctx, &changes, query, at.UTC(), receiverID); err != nil {
		return nil, fmt.Errorf("mark pending delivered: %w", err)
	}
	return stamp(changes, store.StatusDelivered, at), nil
}

// MarkRoomRead advances every delivered message of the room addressed to readerID to read.
func (s *SQLStore) MarkRoomRead(ctx context.Context, room, readerID string, at time.Time) ([]store.StatusChange, error) {
	query := s.db.Rebind(`
		UPDATE messages SET status = 'read', read_at = ?
		WHERE room = ? AND receiver_id = ? AND status = 'delivered'
		RETURNING id, room, sender_id
	`)
	var changes []store.StatusChange
	if err := s.db.SelectContext(ctx, &changes, query, at.UTC(), room, readerID); err != nil {
		return nil, fmt.Errorf("mark room read: %w", err)
	}
	return stamp(changes, store.StatusRead, at), nil
}

// SoftDelete flags a message deleted for everyone and replaces its text with the tombstone.
func (s *SQLStore) SoftDelete(ctx context.Context, id string) (*store.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE messages SET deleted = TRUE, text = ? WHERE id = ?
	`), store.Tombstone, id)
	if err != nil {
		return nil, fmt.Errorf("soft delete: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, store.ErrNotFound
	}

	msg, err := getMessage(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit soft delete: %w", err)
	}
	return msg, nil
}

// HideForUser adds userID to the message's hidden-for set.
func (s *SQLStore) HideForUser(ctx context.Context, id, userID string) error {
	query := s.db.Rebind(`
		INSERT INTO message_hidden (message_id, user_id, hidden_at)
		VALUES (?, ?, ?)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`)
	if _, err := s.db.ExecContext(ctx, query, id, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("hide message: %w", err)
	}
	return nil
}

// HideRoomForUser hides every message of a room the user takes part in.
func (s *SQLStore) HideRoomForUser(ctx context.Context, room, userID string) (int64, error) {
	// The WHERE clause is required by SQLite to parse INSERT ... SELECT ... ON CONFLICT.
	query := s.db.Rebind(`
		INSERT INTO message_hidden (message_id, user_id, hidden_at)
		SELECT m.id, ?, ? FROM messages m
		WHERE m.room = ? AND (m.sender_id = ? OR m.receiver_id = ?)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`)
	res, err := s.db.ExecContext(ctx, query, userID, time.Now().UTC(), room, userID, userID)
	if err != nil {
		return 0, fmt.Errorf("hide room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ListConversations returns one summary per counterpart of userID, most recent first.
func (s *SQLStore) ListConversations(ctx context.Context, userID string) ([]store.Conversation, error) {
	query := s.db.Rebind(`
		SELECT ` + messageColumns + `
		FROM messages m
		WHERE (m.sender_id = ? OR m.receiver_id = ?)
		  AND NOT EXISTS (
			SELECT 1 FROM message_hidden h WHERE h.message_id = m.id AND h.user_id = ?
		  )
		ORDER BY m.sent_at DESC, m.seq DESC
	`)
	var messages []*store.Message
	if err := s.db.SelectContext(ctx, &messages, query, userID, userID, userID); err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}

	index := make(map[string]int)
	conversations := make([]store.Conversation, 0)
	for _, m := range messages {
		i, seen := index[m.Room]
		if !seen {
			i = len(conversations)
			index[m.Room] = i
			conversations = append(conversations, store.Conversation{
				Room:          m.Room,
				PeerID:        m.Peer(userID),
				LastMessageID: m.ID,
				LastText:      m.Text,
				LastSenderID:  m.SenderID,
				LastSentAt:    m.SentAt.UTC(),
			})
		}
		if m.ReceiverID == userID && m.Status != store.StatusRead {
			conversations[i].Unread++
		}
	}
	return conversations, nil
}

func stamp(changes []store.StatusChange, status store.Status, at time.Time) []store.StatusChange {
	for i := range changes {
		changes[i].Status = status
		changes[i].At = at.UTC()
	}
	return changes
}

func normalize(m *store.Message) {
	m.SentAt = m.SentAt.UTC()
	if m.DeliveredAt != nil {
		t := m.DeliveredAt.UTC()
		m.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := m.ReadAt.UTC()
		m.ReadAt = &t
	}
	if m.HiddenFor == nil {
		m.HiddenFor = []string{}
	}
}

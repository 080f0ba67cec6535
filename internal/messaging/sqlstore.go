// internal/messaging/sqlstore.go
// Repository implementation over database/sql. The same queries run on
// PostgreSQL and SQLite: placeholders are rebound per driver and timestamps
// are stored as unix milliseconds.

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rolandconsultnig/ewers-w2-sub002/internal/common/errs"
)

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

var _ Repository = (*SQLStore)(nil)

type conversationRow struct {
	ID         int64   `db:"id"`
	Kind       string  `db:"kind"`
	Title      *string `db:"title"`
	IncidentID *int64  `db:"incident_id"`
	CreatedBy  int64   `db:"created_by"`
	CreatedAt  int64   `db:"created_at"`
}

func (r conversationRow) toModel() *Conversation {
	return &Conversation{
		ID:         r.ID,
		Kind:       ConversationKind(r.Kind),
		Title:      r.Title,
		IncidentID: r.IncidentID,
		CreatedBy:  r.CreatedBy,
		CreatedAt:  fromMillis(r.CreatedAt),
	}
}

type summaryRow struct {
	conversationRow
	Role        string `db:"role"`
	LastReadAt  int64  `db:"last_read_at"`
	UnreadCount int    `db:"unread_count"`
}

type participantRow struct {
	ConversationID int64  `db:"conversation_id"`
	UserID         int64  `db:"user_id"`
	Role           string `db:"role"`
	JoinedAt       int64  `db:"joined_at"`
	LastReadAt     int64  `db:"last_read_at"`
}

func (r participantRow) toModel() *Participant {
	return &Participant{
		ConversationID: r.ConversationID,
		UserID:         r.UserID,
		Role:           ParticipantRole(r.Role),
		JoinedAt:       fromMillis(r.JoinedAt),
		LastReadAt:     fromMillis(r.LastReadAt),
	}
}

type messageRow struct {
	ID             int64  `db:"id"`
	ConversationID int64  `db:"conversation_id"`
	SenderID       int64  `db:"sender_id"`
	Body           string `db:"body"`
	CreatedAt      int64  `db:"created_at"`
	EditedAt       *int64 `db:"edited_at"`
	DeletedAt      *int64 `db:"deleted_at"`
}

func (r messageRow) toModel() *Message {
	m := &Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		SenderID:       r.SenderID,
		Body:           r.Body,
		CreatedAt:      fromMillis(r.CreatedAt),
		EditedAt:       fromMillisPtr(r.EditedAt),
		DeletedAt:      fromMillisPtr(r.DeletedAt),
	}
	if m.DeletedAt != nil {
		m.IsDeleted = true
		m.Body = ""
	}
	return m
}

// unreadAfterReadMark orders a message m after participant p's read mark.
// Messages created in the millisecond of the mark are ordered by id.
const unreadAfterReadMark = `(m.created_at > p.last_read_at
	OR (m.created_at = p.last_read_at AND m.id > p.last_read_message_id))`

// lastMessageIDAt selects the newest message id in a conversation at a
// point in time. Parameters: conversation id, unix millis.
const lastMessageIDAt = `(SELECT COALESCE(MAX(lm.id), 0) FROM messages lm
	WHERE lm.conversation_id = ? AND lm.created_at <= ?)`

const (
	participantColumns = `conversation_id, user_id, role, joined_at, last_read_at`
	messageColumns     = `id, conversation_id, sender_id, body, created_at, edited_at, deleted_at`
)

// CreateConversation inserts the conversation, its owner (conv.CreatedBy)
// and any members in one transaction.
func (s *SQLStore) CreateConversation(ctx context.Context, conv *Conversation, memberIDs []int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errs.Unavailable("begin create conversation", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := toMillis(conv.CreatedAt)
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		INSERT INTO conversations (kind, title, incident_id, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		string(conv.Kind), conv.Title, conv.IncidentID, conv.CreatedBy, createdAt,
	).Scan(&conv.ID)
	if err != nil {
		return errs.Unavailable("insert conversation", err)
	}

	insertParticipant := tx.Rebind(`
		INSERT INTO conversation_participants (` + participantColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`)

	if _, err := tx.ExecContext(ctx, insertParticipant, conv.ID, conv.CreatedBy, string(RoleOwner), createdAt, createdAt); err != nil {
		return errs.Unavailable("insert owner", err)
	}
	for _, userID := range memberIDs {
		if _, err := tx.ExecContext(ctx, insertParticipant, conv.ID, userID, string(RoleMember), createdAt, createdAt); err != nil {
			return errs.Unavailable("insert member", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Unavailable("commit create conversation", err)
	}
	return nil
}

func (s *SQLStore) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	var row conversationRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT id, kind, title, incident_id, created_by, created_at
		FROM conversations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, errs.Unavailable("get conversation", err)
	}
	return row.toModel(), nil
}

// ListConversationsForUser returns the user's conversations, most recently
// active first, each with its last message and the user's unread count.
func (s *SQLStore) ListConversationsForUser(ctx context.Context, userID int64) ([]*ConversationSummary, error) {
	var rows []summaryRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT c.id, c.kind, c.title, c.incident_id, c.created_by, c.created_at,
		       p.role, p.last_read_at,
		       (SELECT COUNT(*) FROM messages m
		         WHERE m.conversation_id = c.id
		           AND `+unreadAfterReadMark+`
		           AND m.sender_id <> p.user_id
		           AND m.deleted_at IS NULL) AS unread_count
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ?`), userID)
	if err != nil {
		return nil, errs.Unavailable("list conversations", err)
	}

	var lastRows []messageRow
	err = s.db.SelectContext(ctx, &lastRows, s.db.Rebind(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE id IN (
			SELECT (SELECT m.id FROM messages m
			         WHERE m.conversation_id = p.conversation_id
			         ORDER BY m.created_at DESC, m.id DESC
			         LIMIT 1)
			FROM conversation_participants p
			WHERE p.user_id = ?)`), userID)
	if err != nil {
		return nil, errs.Unavailable("list last messages", err)
	}
	lastByConversation := make(map[int64]*Message, len(lastRows))
	for _, r := range lastRows {
		lastByConversation[r.ConversationID] = r.toModel()
	}

	summaries := make([]*ConversationSummary, 0, len(rows))
	for _, r := range rows {
		summary := &ConversationSummary{
			Conversation: r.toModel(),
			Role:         ParticipantRole(r.Role),
			LastReadAt:   fromMillis(r.LastReadAt),
			UnreadCount:  r.UnreadCount,
			LastMessage:  lastByConversation[r.ID],
		}
		summary.LastActivityAt = summary.CreatedAt
		if summary.LastMessage != nil && summary.LastMessage.CreatedAt.After(summary.LastActivityAt) {
			summary.LastActivityAt = summary.LastMessage.CreatedAt
		}
		summaries = append(summaries, summary)
	}
	sortByActivity(summaries)
	return summaries, nil
}

// AddParticipant inserts the participant unless already present and returns the stored row
func (s *SQLStore) AddParticipant(ctx context.Context, p *Participant) (*Participant, error) {
	at := toMillis(p.JoinedAt)
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO conversation_participants (`+participantColumns+`, last_read_message_id)
		VALUES (?, ?, ?, ?, ?, `+lastMessageIDAt+`)
		ON CONFLICT (conversation_id, user_id) DO NOTHING`),
		p.ConversationID, p.UserID, string(p.Role), at, at, p.ConversationID, at)
	if err != nil {
		return nil, errs.Unavailable("insert participant", err)
	}
	return s.GetParticipant(ctx, p.ConversationID, p.UserID)
}

func (s *SQLStore) GetParticipant(ctx context.Context, conversationID, userID int64) (*Participant, error) {
	var row participantRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+participantColumns+`
		FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?`), conversationID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, errs.Unavailable("get participant", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) ListParticipants(ctx context.Context, conversationID int64) ([]*Participant, error) {
	var rows []participantRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT `+participantColumns+`
		FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY joined_at, user_id`), conversationID)
	if err != nil {
		return nil, errs.Unavailable("list participants", err)
	}
	participants := make([]*Participant, 0, len(rows))
	for _, r := range rows {
		participants = append(participants, r.toModel())
	}
	return participants, nil
}

func (s *SQLStore) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`
		SELECT COUNT(*) FROM conversation_participants
		WHERE conversation_id = ? AND user_id = ?`), conversationID, userID)
	if err != nil {
		return false, errs.Unavailable("check participant", err)
	}
	return count > 0, nil
}

// MarkRead advances the read mark to at and the newest message existing at
// that time. It never moves the mark backwards.
func (s *SQLStore) MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) (*Participant, error) {
	ms := toMillis(at)
	var row participantRow
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		UPDATE conversation_participants
		SET last_read_message_id = CASE WHEN last_read_at <= ? THEN `+lastMessageIDAt+` ELSE last_read_message_id END,
		    last_read_at = CASE WHEN last_read_at < ? THEN ? ELSE last_read_at END
		WHERE conversation_id = ? AND user_id = ?
		RETURNING `+participantColumns), ms, conversationID, ms, ms, ms, conversationID, userID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotParticipant
	}
	if err != nil {
		return nil, errs.Unavailable("mark read", err)
	}
	return row.toModel(), nil
}

// UnreadCount counts live messages from other senders newer than the user's last read
func (s *SQLStore) UnreadCount(ctx context.Context, conversationID, userID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`
		SELECT COUNT(*)
		FROM messages m
		JOIN conversation_participants p
		  ON p.conversation_id = m.conversation_id AND p.user_id = ?
		WHERE m.conversation_id = ?
		  AND `+unreadAfterReadMark+`
		  AND m.sender_id <> p.user_id
		  AND m.deleted_at IS NULL`), userID, conversationID)
	if err != nil {
		return 0, errs.Unavailable("unread count", err)
	}
	return count, nil
}

func (s *SQLStore) CreateMessage(ctx context.Context, m *Message) error {
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		INSERT INTO messages (conversation_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`),
		m.ConversationID, m.SenderID, m.Body, toMillis(m.CreatedAt),
	).Scan(&m.ID)
	if err != nil {
		return errs.Unavailable("insert message", err)
	}
	return nil
}

func (s *SQLStore) GetMessage(ctx context.Context, id int64) (*Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+messageColumns+` FROM messages WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, errs.Unavailable("get message", err)
	}
	return row.toModel(), nil
}

// ListMessages returns the newest limit messages older than beforeID (or the
// newest overall when beforeID is zero), oldest first.
func (s *SQLStore) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID int64) ([]*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ?`
	args := []interface{}{conversationID}

	if beforeID > 0 {
		var cursor messageRow
		err := s.db.GetContext(ctx, &cursor, s.db.Rebind(`
			SELECT `+messageColumns+` FROM messages
			WHERE id = ? AND conversation_id = ?`), beforeID, conversationID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		if err != nil {
			return nil, errs.Unavailable("get cursor message", err)
		}
		query += ` AND (created_at < ? OR (created_at = ? AND id < ?))`
		args = append(args, cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, errs.Unavailable("list messages", err)
	}

	messages := make([]*Message, len(rows))
	for i, r := range rows {
		messages[len(rows)-1-i] = r.toModel()
	}
	return messages, nil
}

// EditMessage replaces the body if senderID owns the live message.
func (s *SQLStore) EditMessage(ctx context.Context, id, senderID int64, body string, at time.Time) (*Message, error) {
	var row messageRow
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		UPDATE messages SET body = ?, edited_at = ?
		WHERE id = ? AND sender_id = ? AND deleted_at IS NULL
		RETURNING `+messageColumns), body, toMillis(at), id, senderID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyMiss(ctx, id, senderID)
	}
	if err != nil {
		return nil, errs.Unavailable("edit message", err)
	}
	return row.toModel(), nil
}

// DeleteMessage soft-deletes the message and clears its body if senderID owns it.
func (s *SQLStore) DeleteMessage(ctx context.Context, id, senderID int64, at time.Time) (*Message, error) {
	var row messageRow
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		UPDATE messages SET body = '', deleted_at = ?
		WHERE id = ? AND sender_id = ? AND deleted_at IS NULL
		RETURNING `+messageColumns), toMillis(at), id, senderID).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, s.classifyMiss(ctx, id, senderID)
	}
	if err != nil {
		return nil, errs.Unavailable("delete message", err)
	}
	return row.toModel(), nil
}

// classifyMiss explains why a guarded update matched no row
func (s *SQLStore) classifyMiss(ctx context.Context, id, senderID int64) error {
	m, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if m.IsDeleted {
		return ErrMessageNotFound
	}
	if m.SenderID != senderID {
		return ErrNotSender
	}
	return ErrMessageNotFound
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromMillisPtr(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := fromMillis(*ms)
	return &t
}

func sortByActivity(summaries []*ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.After(b.LastActivityAt)
		}
		return a.ID > b.ID
	})
}

// internal/calls/sqlstore.go

package calls

import (
	"context"
	"database/sql"
	"errors"
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

type callRow struct {
	ID             int64  `db:"id"`
	Medium         string `db:"medium"`
	ConversationID *int64 `db:"conversation_id"`
	IncidentID     *int64 `db:"incident_id"`
	Status         string `db:"status"`
	CreatedBy      int64  `db:"created_by"`
	CreatedAt      int64  `db:"created_at"`
	EndedAt        *int64 `db:"ended_at"`
}

func (r callRow) toModel() *CallSession {
	return &CallSession{
		ID:             r.ID,
		Medium:         Medium(r.Medium),
		ConversationID: r.ConversationID,
		IncidentID:     r.IncidentID,
		Status:         Status(r.Status),
		CreatedBy:      r.CreatedBy,
		CreatedAt:      fromMillis(r.CreatedAt),
		EndedAt:        fromMillisPtr(r.EndedAt),
	}
}

type participantRow struct {
	ID        int64   `db:"id"`
	CallID    int64   `db:"call_id"`
	UserID    *int64  `db:"user_id"`
	GuestName *string `db:"guest_name"`
	JoinedAt  int64   `db:"joined_at"`
	LeftAt    *int64  `db:"left_at"`
}

func (r participantRow) toModel() *CallParticipant {
	return &CallParticipant{
		ID:        r.ID,
		CallID:    r.CallID,
		UserID:    r.UserID,
		GuestName: r.GuestName,
		JoinedAt:  fromMillis(r.JoinedAt),
		LeftAt:    fromMillisPtr(r.LeftAt),
	}
}

const (
	callColumns        = `id, medium, conversation_id, incident_id, status, created_by, created_at, ended_at`
	participantColumns = `id, call_id, user_id, guest_name, joined_at, left_at`
)

func (s *SQLStore) CreateCall(ctx context.Context, call *CallSession) (*CallParticipant, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errs.Unavailable("begin create call", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := toMillis(call.CreatedAt)
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		INSERT INTO call_sessions (medium, conversation_id, incident_id, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`),
		string(call.Medium), call.ConversationID, call.IncidentID, string(StatusActive), call.CreatedBy, createdAt,
	).Scan(&call.ID)
	if err != nil {
		return nil, errs.Unavailable("insert call", err)
	}
	call.Status = StatusActive

	var row participantRow
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		INSERT INTO call_participants (call_id, user_id, joined_at)
		VALUES (?, ?, ?)
		RETURNING `+participantColumns), call.ID, call.CreatedBy, createdAt).StructScan(&row)
	if err != nil {
		return nil, errs.Unavailable("insert call creator", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Unavailable("commit create call", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) GetCall(ctx context.Context, id int64) (*CallSession, error) {
	var row callRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+callColumns+` FROM call_sessions WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, errs.Unavailable("get call", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) ListParticipants(ctx context.Context, callID int64) ([]*CallParticipant, error) {
	var rows []participantRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT `+participantColumns+`
		FROM call_participants
		WHERE call_id = ?
		ORDER BY joined_at, id`), callID)
	if err != nil {
		return nil, errs.Unavailable("list call participants", err)
	}
	participants := make([]*CallParticipant, 0, len(rows))
	for _, r := range rows {
		participants = append(participants, r.toModel())
	}
	return participants, nil
}

func (s *SQLStore) HasParticipated(ctx context.Context, callID, userID int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`
		SELECT COUNT(*) FROM call_participants WHERE call_id = ? AND user_id = ?`), callID, userID)
	if err != nil {
		return false, errs.Unavailable("check call participant", err)
	}
	return count > 0, nil
}

// lockActive locks the session row for the rest of tx, failing unless the
// call is active. A concurrent EndCall waits on the same row.
func lockActive(ctx context.Context, tx *sqlx.Tx, callID int64) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE call_sessions SET status = status
		WHERE id = ? AND status = ?`), callID, string(StatusActive))
	if err != nil {
		return errs.Unavailable("lock call", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Unavailable("lock call", err)
	}
	if n == 0 {
		return ErrCallNotFound
	}
	return nil
}

// JoinUser inserts the user's row or marks a previous row present again
func (s *SQLStore) JoinUser(ctx context.Context, callID, userID int64, at time.Time) (*CallParticipant, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errs.Unavailable("begin join call", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockActive(ctx, tx, callID); err != nil {
		return nil, err
	}

	var row participantRow
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		INSERT INTO call_participants (call_id, user_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT (call_id, user_id) DO UPDATE SET
			joined_at = CASE WHEN call_participants.left_at IS NULL
			                 THEN call_participants.joined_at
			                 ELSE excluded.joined_at END,
			left_at = NULL
		RETURNING `+participantColumns), callID, userID, toMillis(at)).StructScan(&row)
	if err != nil {
		return nil, errs.Unavailable("join call", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Unavailable("commit join call", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) AddGuest(ctx context.Context, callID int64, displayName string, at time.Time) (*CallParticipant, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errs.Unavailable("begin add guest", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockActive(ctx, tx, callID); err != nil {
		return nil, err
	}

	var row participantRow
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		INSERT INTO call_participants (call_id, guest_name, joined_at)
		VALUES (?, ?, ?)
		RETURNING `+participantColumns), callID, displayName, toMillis(at)).StructScan(&row)
	if err != nil {
		return nil, errs.Unavailable("add guest", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Unavailable("commit add guest", err)
	}
	return row.toModel(), nil
}

func (s *SQLStore) LeaveUser(ctx context.Context, callID, userID int64, at time.Time) (*CallParticipant, bool, error) {
	var row participantRow
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		UPDATE call_participants SET left_at = ?
		WHERE call_id = ? AND user_id = ? AND left_at IS NULL
		RETURNING `+participantColumns), toMillis(at), callID, userID).StructScan(&row)
	if err == nil {
		return row.toModel(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, errs.Unavailable("leave call", err)
	}

	err = s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+participantColumns+` FROM call_participants
		WHERE call_id = ? AND user_id = ?`), callID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrCallNotFound
	}
	if err != nil {
		return nil, false, errs.Unavailable("get call participant", err)
	}
	return row.toModel(), false, nil
}

func (s *SQLStore) LeaveGuest(ctx context.Context, callID, participantID int64, at time.Time) (*CallParticipant, bool, error) {
	var row participantRow
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`
		UPDATE call_participants SET left_at = ?
		WHERE id = ? AND call_id = ? AND user_id IS NULL AND left_at IS NULL
		RETURNING `+participantColumns), toMillis(at), participantID, callID).StructScan(&row)
	if err == nil {
		return row.toModel(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, errs.Unavailable("leave call", err)
	}

	err = s.db.GetContext(ctx, &row, s.db.Rebind(`
		SELECT `+participantColumns+` FROM call_participants
		WHERE id = ? AND call_id = ? AND user_id IS NULL`), participantID, callID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrGuestMismatch
	}
	if err != nil {
		return nil, false, errs.Unavailable("get call participant", err)
	}
	return row.toModel(), false, nil
}

// EndCall marks the call ended and every present participant as left in one transaction
func (s *SQLStore) EndCall(ctx context.Context, callID int64, at time.Time) (*CallSession, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, errs.Unavailable("begin end call", err)
	}
	defer func() { _ = tx.Rollback() }()

	ms := toMillis(at)
	var row callRow
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		UPDATE call_sessions SET status = ?, ended_at = ?
		WHERE id = ? AND status = ?
		RETURNING `+callColumns), string(StatusEnded), ms, callID, string(StatusActive)).StructScan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		call, getErr := s.GetCall(ctx, callID)
		if getErr != nil {
			return nil, false, getErr
		}
		return call, false, nil
	}
	if err != nil {
		return nil, false, errs.Unavailable("end call", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE call_participants SET left_at = ?
		WHERE call_id = ? AND left_at IS NULL`), ms, callID)
	if err != nil {
		return nil, false, errs.Unavailable("release call participants", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, errs.Unavailable("commit end call", err)
	}
	return row.toModel(), true, nil
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

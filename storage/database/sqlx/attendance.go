package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
)

const pqUniqueViolation = "23505"

type sessionRow struct {
	ID            string      `db:"id"`
	GroupID       string      `db:"group_id"`
	GroupName     null.String `db:"group_name"`
	Date          time.Time   `db:"session_date"`
	ScheduleIndex int         `db:"schedule_index"`
	TeacherID     null.String `db:"teacher_id"`
	TeacherName   null.String `db:"teacher_name"`
	Subject       null.String `db:"subject"`
	SessionNotes  null.String `db:"session_notes"`
	IsCompleted   bool        `db:"is_completed"`
	IsLocked      bool        `db:"is_locked"`
	LockedAt      null.Time   `db:"locked_at"`
	LockedBy      null.String `db:"locked_by"`
	CreatedBy     null.String `db:"created_by"`
	CreatedAt     null.Time   `db:"created_at"`
	UpdatedAt     null.Time   `db:"updated_at"`
}

type recordRow struct {
	SessionID   string      `db:"session_id"`
	Position    int         `db:"position"`
	StudentID   string      `db:"student_id"`
	StudentName null.String `db:"student_name"`
	Status      string      `db:"status"`
	MinutesLate int         `db:"minutes_late"`
	Notes       null.String `db:"notes"`
	MarkedAt    null.Time   `db:"marked_at"`
	MarkedBy    null.String `db:"marked_by"`
}

func packSession(sess attendance.Session) sessionRow {
	return sessionRow{
		ID:            sess.ID,
		GroupID:       sess.GroupID,
		GroupName:     null.NewString(sess.GroupName, sess.GroupName != ""),
		Date:          core.DateOnly(sess.Date),
		ScheduleIndex: sess.ScheduleIndex,
		TeacherID:     null.NewString(sess.TeacherID, sess.TeacherID != ""),
		TeacherName:   null.NewString(sess.TeacherName, sess.TeacherName != ""),
		Subject:       null.NewString(sess.Subject, sess.Subject != ""),
		SessionNotes:  null.NewString(sess.SessionNotes, sess.SessionNotes != ""),
		IsCompleted:   sess.IsCompleted,
		IsLocked:      sess.IsLocked,
		LockedAt:      null.NewTime(sess.LockedAt.UTC(), !sess.LockedAt.IsZero()),
		LockedBy:      null.NewString(sess.LockedBy, sess.LockedBy != ""),
		CreatedBy:     null.NewString(sess.CreatedBy, sess.CreatedBy != ""),
		CreatedAt:     null.NewTime(sess.CreatedAt.UTC(), !sess.CreatedAt.IsZero()),
		UpdatedAt:     null.NewTime(sess.UpdatedAt.UTC(), !sess.UpdatedAt.IsZero()),
	}
}

func unpackSession(row sessionRow) attendance.Session {
	return attendance.Session{
		ID:            row.ID,
		GroupID:       row.GroupID,
		GroupName:     row.GroupName.String,
		Date:          core.DateOnly(row.Date),
		ScheduleIndex: row.ScheduleIndex,
		TeacherID:     row.TeacherID.String,
		TeacherName:   row.TeacherName.String,
		Subject:       row.Subject.String,
		SessionNotes:  row.SessionNotes.String,
		IsCompleted:   row.IsCompleted,
		IsLocked:      row.IsLocked,
		LockedAt:      row.LockedAt.Time,
		LockedBy:      row.LockedBy.String,
		CreatedBy:     row.CreatedBy.String,
		CreatedAt:     row.CreatedAt.Time,
		UpdatedAt:     row.UpdatedAt.Time,
	}
}

func packRecord(sessID string, pos int, rec attendance.Record) recordRow {
	return recordRow{
		SessionID:   sessID,
		Position:    pos,
		StudentID:   rec.StudentID,
		StudentName: null.NewString(rec.StudentName, rec.StudentName != ""),
		Status:      string(rec.Status),
		MinutesLate: rec.MinutesLate,
		Notes:       null.NewString(rec.Notes, rec.Notes != ""),
		MarkedAt:    null.NewTime(rec.MarkedAt.UTC(), !rec.MarkedAt.IsZero()),
		MarkedBy:    null.NewString(rec.MarkedBy, rec.MarkedBy != ""),
	}
}

func unpackRecord(row recordRow) attendance.Record {
	return attendance.Record{
		StudentID:   row.StudentID,
		StudentName: row.StudentName.String,
		Status:      attendance.Status(row.Status),
		MinutesLate: row.MinutesLate,
		Notes:       row.Notes.String,
		MarkedAt:    row.MarkedAt.Time,
		MarkedBy:    row.MarkedBy.String,
	}
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *sqlx.DB) attendance.Repository {
	return &sessionRepository{db: db}
}

const insertRecordQuery = `
	INSERT INTO attendance_record (session_id, position, student_id, student_name, status, minutes_late, notes, marked_at, marked_by)
	VALUES (:session_id, :position, :student_id, :student_name, :status, :minutes_late, :notes, :marked_at, :marked_by)`

func (repo *sessionRepository) CreateSession(ctx context.Context, sess attendance.Session) (attendance.Session, error) {
	sess.ID = uuid.New().String()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return attendance.Session{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `
		INSERT INTO attendance_session (id, group_id, group_name, session_date, schedule_index, teacher_id, teacher_name,
										subject, session_notes, is_completed, is_locked, locked_at, locked_by,
										created_by, created_at, updated_at)
		VALUES (:id, :group_id, :group_name, :session_date, :schedule_index, :teacher_id, :teacher_name,
				:subject, :session_notes, :is_completed, :is_locked, :locked_at, :locked_by,
				:created_by, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, q, packSession(sess)); err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == pqUniqueViolation {
			return attendance.Session{}, attendance.ErrDuplicateSession
		}
		return attendance.Session{}, errors.Wrap(err, "inserting session")
	}

	if err = insertRecords(ctx, tx, sess.ID, sess.Records); err != nil {
		return attendance.Session{}, err
	}
	if err = tx.Commit(); err != nil {
		return attendance.Session{}, errors.Wrap(err, "committing transaction")
	}
	return sess, nil
}

func (repo *sessionRepository) GetSessionByID(ctx context.Context, id string) (attendance.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Session{}, attendance.ErrNotFound
	}
	return repo.getSession(ctx, `SELECT * FROM attendance_session WHERE id = $1`, id)
}

func (repo *sessionRepository) GetSessionByKey(ctx context.Context, groupID string, date time.Time, scheduleIndex int) (attendance.Session, error) {
	return repo.getSession(ctx,
		`SELECT * FROM attendance_session WHERE group_id = $1 AND session_date = $2 AND schedule_index = $3`,
		groupID, core.DateOnly(date), scheduleIndex)
}

func (repo *sessionRepository) getSession(ctx context.Context, q string, args ...interface{}) (attendance.Session, error) {
	var row sessionRow
	if err := repo.db.GetContext(ctx, &row, q, args...); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Session{}, attendance.ErrNotFound
		}
		return attendance.Session{}, errors.Wrap(err, "finding session")
	}

	sess := unpackSession(row)
	records, err := repo.loadRecords(ctx, []string{sess.ID})
	if err != nil {
		return attendance.Session{}, err
	}
	sess.Records = records[sess.ID]
	return sess, nil
}

func (repo *sessionRepository) FilterSessions(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Session, int, error) {
	where := "TRUE"
	var args []interface{}

	arg := func(val interface{}) string {
		args = append(args, val)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.GroupID != "" {
		where += " AND s.group_id = " + arg(filter.GroupID)
	}
	if filter.TeacherID != "" {
		where += " AND s.teacher_id = " + arg(filter.TeacherID)
	}
	if filter.StudentID != "" {
		where += " AND s.id IN (SELECT session_id FROM attendance_record WHERE student_id = " + arg(filter.StudentID) + ")"
	}
	if !filter.DateFrom.IsZero() {
		where += " AND s.session_date >= " + arg(core.DateOnly(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		where += " AND s.session_date <= " + arg(core.DateOnly(filter.DateTo))
	}
	if filter.IsCompleted != nil {
		where += " AND s.is_completed = " + arg(*filter.IsCompleted)
	}
	if filter.IsLocked != nil {
		where += " AND s.is_locked = " + arg(*filter.IsLocked)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM attendance_session s WHERE " + where
	if err := repo.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting sessions")
	}

	q := "SELECT s.* FROM attendance_session s WHERE " + where + " ORDER BY s.session_date DESC, s.created_at DESC"
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		q += fmt.Sprintf(" LIMIT %s OFFSET %s", arg(filter.PageSize), arg((page-1)*filter.PageSize))
	}

	var rows []sessionRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying sessions")
	}
	if len(rows) == 0 {
		return []attendance.Session{}, total, nil
	}

	sessions := make([]attendance.Session, 0, len(rows))
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, unpackSession(row))
		ids = append(ids, row.ID)
	}
	records, err := repo.loadRecords(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range sessions {
		sessions[i].Records = records[sessions[i].ID]
	}
	return sessions, total, nil
}

func (repo *sessionRepository) UpdateSession(ctx context.Context, sess attendance.Session) (attendance.Session, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return attendance.Session{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `
		UPDATE attendance_session
		SET session_notes = :session_notes,
			is_completed  = :is_completed,
			is_locked     = :is_locked,
			locked_at     = :locked_at,
			locked_by     = :locked_by,
			updated_at    = :updated_at
		WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, q, packSession(sess))
	if err != nil {
		return attendance.Session{}, errors.Wrap(err, "updating session")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.Session{}, attendance.ErrNotFound
	}

	// records are replaced wholesale; last write wins
	if _, err = tx.ExecContext(ctx, `DELETE FROM attendance_record WHERE session_id = $1`, sess.ID); err != nil {
		return attendance.Session{}, errors.Wrap(err, "clearing records")
	}
	if err = insertRecords(ctx, tx, sess.ID, sess.Records); err != nil {
		return attendance.Session{}, err
	}

	if err = tx.Commit(); err != nil {
		return attendance.Session{}, errors.Wrap(err, "committing transaction")
	}
	return sess, nil
}

func (repo *sessionRepository) DeleteSessionByID(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	// records cascade
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM attendance_session WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return nil
}

func insertRecords(ctx context.Context, tx *sqlx.Tx, sessID string, records []attendance.Record) error {
	for i, rec := range records {
		if _, err := tx.NamedExecContext(ctx, insertRecordQuery, packRecord(sessID, i, rec)); err != nil {
			return errors.Wrap(err, "inserting record")
		}
	}
	return nil
}

// loadRecords fetches the records of the given sessions keyed by session ID,
// in roster order.
func (repo *sessionRepository) loadRecords(ctx context.Context, sessionIDs []string) (map[string][]attendance.Record, error) {
	q, args, err := sqlx.In(`SELECT * FROM attendance_record WHERE session_id IN (?) ORDER BY session_id, position`, sessionIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building records query")
	}

	var rows []recordRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying records")
	}

	records := make(map[string][]attendance.Record, len(sessionIDs))
	for _, row := range rows {
		records[row.SessionID] = append(records[row.SessionID], unpackRecord(row))
	}
	return records, nil
}

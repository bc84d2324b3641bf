package attendance

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/group"
)

// defaultMinutesLate is applied when a record transitions into late with no
// minutes supplied and none previously set.
const defaultMinutesLate = 5

type (
	Repository interface {
		// CreateSession persists a new session, assigning its ID. It enforces
		// the composite uniqueness of (GroupID, Date, ScheduleIndex) and
		// returns ErrDuplicateSession on conflict.
		CreateSession(ctx context.Context, sess Session) (Session, error)
		GetSessionByID(ctx context.Context, id string) (Session, error)
		GetSessionByKey(ctx context.Context, groupID string, date time.Time, scheduleIndex int) (Session, error)
		// FilterSessions applies AND operation on set QueryFilter fields and
		// returns the page plus the total match count, newest date first.
		// A PageSize <= 0 disables pagination.
		FilterSessions(ctx context.Context, filter QueryFilter) ([]Session, int, error)
		// UpdateSession replaces the stored session wholesale, records
		// included; concurrent updates are last-write-wins.
		UpdateSession(ctx context.Context, sess Session) (Session, error)
		DeleteSessionByID(ctx context.Context, id string) error
	}

	// Service owns the session lifecycle: creation, record mutation,
	// completion and the business lock. Privilege gating takes an explicit
	// Actor; identity lookup is the caller's concern.
	Service interface {
		Create(ctx context.Context, ns NewSession, actor Actor) (SessionWithStats, error)
		GetByID(ctx context.Context, id string) (SessionWithStats, error)
		Filter(ctx context.Context, filter QueryFilter) ([]SessionWithStats, int, error)
		UpdateRecords(ctx context.Context, id string, us UpdateSession, actor Actor) (SessionWithStats, error)
		// BulkSetStatus sets status on all records, or only studentIDs if given.
		BulkSetStatus(ctx context.Context, id string, status Status, studentIDs []string, actor Actor) (SessionWithStats, error)
		// InvertStatuses swaps present and absent; late and excused records
		// are left untouched.
		InvertStatuses(ctx context.Context, id string, actor Actor) (SessionWithStats, error)
		// ResetRecords marks every record present with cleared notes and
		// minutes, and clears the session notes.
		ResetRecords(ctx context.Context, id string, actor Actor) (SessionWithStats, error)
		Lock(ctx context.Context, id string, actor Actor) (SessionWithStats, error)
		Unlock(ctx context.Context, id string, actor Actor) (SessionWithStats, error)
		Delete(ctx context.Context, id string, actor Actor) error
		// Pending returns the group meetings scheduled on now's weekday whose
		// attendance is missing or still a draft.
		Pending(ctx context.Context, now time.Time) ([]PendingGroup, error)
		GroupHistory(ctx context.Context, groupID string) ([]SessionWithStats, Stats, error)
		StudentHistory(ctx context.Context, studentID string) ([]SessionWithStats, Stats, error)
	}

	service struct {
		repo    Repository
		groups  group.Service
		mailSvc core.EmailService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, groups group.Service, mailSvc core.EmailService) Service {
	return &service{repo: repo, groups: groups, mailSvc: mailSvc}
}

func (svc *service) Create(ctx context.Context, ns NewSession, actor Actor) (SessionWithStats, error) {
	if err := ns.Validate(); err != nil {
		return SessionWithStats{}, err
	}

	date := core.DateOnly(ns.Date)
	if _, err := svc.repo.GetSessionByKey(ctx, ns.GroupID, date, ns.ScheduleIndex); err == nil {
		return SessionWithStats{}, ErrDuplicateSession
	} else if err != ErrNotFound {
		return SessionWithStats{}, err
	}

	grp, err := svc.groups.GetByID(ctx, ns.GroupID)
	if err != nil {
		return SessionWithStats{}, err
	}
	roster, err := svc.groups.Roster(ctx, ns.GroupID)
	if err != nil {
		return SessionWithStats{}, err
	}

	inputs := make(map[string]RecordInput, len(ns.Records))
	for _, in := range ns.Records {
		inputs[in.StudentID] = in // off-roster entries are dropped below
	}

	now := time.Now().UTC()
	records := make([]Record, 0, len(roster))
	for _, student := range roster {
		rec := Record{StudentID: student.ID, StudentName: student.Name}
		if in, ok := inputs[student.ID]; ok {
			if err := applyRecordInput(&rec, in, now, actor, true /* allowUnset */); err != nil {
				return SessionWithStats{}, err
			}
		}
		records = append(records, rec)
	}

	sess := Session{
		GroupID:       grp.ID,
		GroupName:     grp.Name,
		Date:          date,
		ScheduleIndex: ns.ScheduleIndex,
		TeacherID:     grp.Teacher.ID,
		TeacherName:   grp.Teacher.Name,
		Subject:       grp.Subject,
		Records:       records,
		SessionNotes:  ns.SessionNotes,
		IsCompleted:   ns.MarkComplete,
		CreatedBy:     actor.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if ns.MarkComplete {
		if missing := sess.missingStatuses(); len(missing) > 0 {
			return SessionWithStats{}, &IncompleteAttendanceError{MissingStudents: missing}
		}
	}

	sess, err = svc.repo.CreateSession(ctx, sess)
	if err != nil {
		return SessionWithStats{}, err
	}
	if sess.IsCompleted {
		svc.sendCompletionMail(grp, sess)
	}
	return sess.WithStats(), nil
}

func (svc *service) GetByID(ctx context.Context, id string) (SessionWithStats, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return SessionWithStats{}, err
	}
	return sess.WithStats(), nil
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter) ([]SessionWithStats, int, error) {
	filter.Clean()
	sessions, total, err := svc.repo.FilterSessions(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return withStats(sessions), total, nil
}

func (svc *service) UpdateRecords(ctx context.Context, id string, us UpdateSession, actor Actor) (SessionWithStats, error) {
	if err := us.Validate(); err != nil {
		return SessionWithStats{}, err
	}

	sess, err := svc.getMutable(ctx, id, actor)
	if err != nil {
		return SessionWithStats{}, err
	}

	now := time.Now().UTC()
	for _, in := range us.Records {
		rec := sess.recordByStudent(in.StudentID)
		if rec == nil {
			continue // roster snapshot is authoritative
		}
		if err := applyRecordInput(rec, in, now, actor, false); err != nil {
			return SessionWithStats{}, err
		}
	}
	if us.SessionNotes != nil {
		sess.SessionNotes = *us.SessionNotes
	}

	wasCompleted := sess.IsCompleted
	if us.MarkComplete {
		if missing := sess.missingStatuses(); len(missing) > 0 {
			return SessionWithStats{}, &IncompleteAttendanceError{MissingStudents: missing}
		}
		sess.IsCompleted = true
	}
	sess.UpdatedAt = now

	sess, err = svc.repo.UpdateSession(ctx, sess)
	if err != nil {
		return SessionWithStats{}, err
	}
	if sess.IsCompleted && !wasCompleted {
		if grp, gerr := svc.groups.GetByID(ctx, sess.GroupID); gerr == nil {
			svc.sendCompletionMail(grp, sess)
		}
	}
	return sess.WithStats(), nil
}

func (svc *service) BulkSetStatus(ctx context.Context, id string, status Status, studentIDs []string, actor Actor) (SessionWithStats, error) {
	if !status.Valid() {
		return SessionWithStats{}, &InvalidStatusError{Status: status}
	}

	sess, err := svc.getMutable(ctx, id, actor)
	if err != nil {
		return SessionWithStats{}, err
	}

	only := make(map[string]bool, len(studentIDs))
	for _, sid := range studentIDs {
		only[sid] = true
	}

	now := time.Now().UTC()
	for i := range sess.Records {
		rec := &sess.Records[i]
		if len(only) > 0 && !only[rec.StudentID] {
			continue
		}
		rec.Status = status
		if status == StatusLate {
			if rec.MinutesLate == 0 {
				rec.MinutesLate = defaultMinutesLate
			}
		} else {
			rec.MinutesLate = 0
		}
		rec.MarkedAt = now
		rec.MarkedBy = actor.ID
	}
	sess.UpdatedAt = now

	sess, err = svc.repo.UpdateSession(ctx, sess)
	if err != nil {
		return SessionWithStats{}, err
	}
	return sess.WithStats(), nil
}

func (svc *service) InvertStatuses(ctx context.Context, id string, actor Actor) (SessionWithStats, error) {
	sess, err := svc.getMutable(ctx, id, actor)
	if err != nil {
		return SessionWithStats{}, err
	}

	now := time.Now().UTC()
	for i := range sess.Records {
		rec := &sess.Records[i]
		switch rec.Status {
		case StatusPresent:
			rec.Status = StatusAbsent
		case StatusAbsent:
			rec.Status = StatusPresent
		default:
			continue // late and excused are deliberately untouched
		}
		rec.MinutesLate = 0
		rec.MarkedAt = now
		rec.MarkedBy = actor.ID
	}
	sess.UpdatedAt = now

	sess, err = svc.repo.UpdateSession(ctx, sess)
	if err != nil {
		return SessionWithStats{}, err
	}
	return sess.WithStats(), nil
}

func (svc *service) ResetRecords(ctx context.Context, id string, actor Actor) (SessionWithStats, error) {
	sess, err := svc.getMutable(ctx, id, actor)
	if err != nil {
		return SessionWithStats{}, err
	}

	now := time.Now().UTC()
	for i := range sess.Records {
		rec := &sess.Records[i]
		rec.Status = StatusPresent
		rec.MinutesLate = 0
		rec.Notes = ""
		rec.MarkedAt = now
		rec.MarkedBy = actor.ID
	}
	sess.SessionNotes = ""
	sess.UpdatedAt = now

	sess, err = svc.repo.UpdateSession(ctx, sess)
	if err != nil {
		return SessionWithStats{}, err
	}
	return sess.WithStats(), nil
}

func (svc *service) Lock(ctx context.Context, id string, actor Actor) (SessionWithStats, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return SessionWithStats{}, err
	}
	if sess.IsLocked {
		return sess.WithStats(), nil // idempotent
	}
	if !sess.IsCompleted {
		return SessionWithStats{}, ErrSessionNotCompleted
	}

	now := time.Now().UTC()
	sess.IsLocked = true
	sess.LockedAt = now
	sess.LockedBy = actor.ID
	sess.UpdatedAt = now

	sess, err = svc.repo.UpdateSession(ctx, sess)
	if err != nil {
		return SessionWithStats{}, err
	}
	return sess.WithStats(), nil
}

func (svc *service) Unlock(ctx context.Context, id string, actor Actor) (SessionWithStats, error) {
	if !actor.Elevated {
		return SessionWithStats{}, ErrInsufficientPrivilege
	}

	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return SessionWithStats{}, err
	}
	// LockedAt/LockedBy are kept for audit; the next lock overwrites them.
	sess.IsLocked = false
	sess.UpdatedAt = time.Now().UTC()

	sess, err = svc.repo.UpdateSession(ctx, sess)
	if err != nil {
		return SessionWithStats{}, err
	}
	return sess.WithStats(), nil
}

func (svc *service) Delete(ctx context.Context, id string, actor Actor) error {
	if !actor.Elevated {
		return ErrInsufficientPrivilege
	}
	if _, err := svc.repo.GetSessionByID(ctx, id); err != nil {
		return err
	}
	return svc.repo.DeleteSessionByID(ctx, id)
}

func (svc *service) Pending(ctx context.Context, now time.Time) ([]PendingGroup, error) {
	day := now.UTC().Weekday()
	groups, err := svc.groups.ScheduledOn(ctx, day)
	if err != nil {
		return nil, err
	}

	date := core.DateOnly(now)
	pending := make([]PendingGroup, 0)
	for _, grp := range groups {
		for _, idx := range grp.SlotsOn(day) {
			sess, err := svc.repo.GetSessionByKey(ctx, grp.ID, date, idx)
			if err == ErrNotFound {
				pending = append(pending, PendingGroup{Group: grp, ScheduleIndex: idx})
				continue
			} else if err != nil {
				return nil, err
			}
			if !sess.IsCompleted {
				pending = append(pending, PendingGroup{Group: grp, ScheduleIndex: idx})
			}
		}
	}
	return pending, nil
}

func (svc *service) GroupHistory(ctx context.Context, groupID string) ([]SessionWithStats, Stats, error) {
	sessions, _, err := svc.repo.FilterSessions(ctx, QueryFilter{GroupID: groupID})
	if err != nil {
		return nil, Stats{}, err
	}

	var allRecords []Record
	for _, sess := range sessions {
		allRecords = append(allRecords, sess.Records...)
	}
	return withStats(sessions), ComputeStats(allRecords), nil
}

func (svc *service) StudentHistory(ctx context.Context, studentID string) ([]SessionWithStats, Stats, error) {
	sessions, _, err := svc.repo.FilterSessions(ctx, QueryFilter{StudentID: studentID})
	if err != nil {
		return nil, Stats{}, err
	}

	var records []Record
	for _, sess := range sessions {
		if rec := sess.recordByStudent(studentID); rec != nil {
			records = append(records, *rec)
		}
	}
	return withStats(sessions), ComputeStats(records), nil
}

// getMutable fetches a session and enforces the business lock: a locked
// session rejects edits from non-elevated callers before any state changes.
func (svc *service) getMutable(ctx context.Context, id string, actor Actor) (Session, error) {
	sess, err := svc.repo.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.IsLocked && !actor.Elevated {
		return Session{}, ErrSessionLocked
	}
	return sess, nil
}

// applyRecordInput mutates rec per the status rules:
// minutesLate > 0 implies late; transitioning into late with no minutes
// supplied and none previously set gets defaultMinutesLate.
func applyRecordInput(rec *Record, in RecordInput, now time.Time, actor Actor, allowUnset bool) error {
	if !in.Status.Valid() {
		if !allowUnset || in.Status.IsSet() {
			return &InvalidStatusError{Status: in.Status}
		}
		if in.Notes != "" {
			rec.Notes = core.CleanString(in.Notes)
			rec.MarkedAt = now
			rec.MarkedBy = actor.ID
		}
		return nil // record seeded unset
	}

	rec.Status = in.Status
	if in.Status == StatusLate {
		if in.MinutesLate > 0 {
			rec.MinutesLate = in.MinutesLate
		} else if rec.MinutesLate == 0 {
			rec.MinutesLate = defaultMinutesLate
		}
	} else {
		rec.MinutesLate = 0
	}
	if in.Notes != "" {
		rec.Notes = core.CleanString(in.Notes)
	}
	rec.MarkedAt = now
	rec.MarkedBy = actor.ID
	return nil
}

func (svc *service) sendCompletionMail(grp group.Group, sess Session) {
	if svc.mailSvc == nil || grp.Teacher.Email == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: grp.Teacher.Name, Address: grp.Teacher.Email}},
		Subject: fmt.Sprintf("Attendance recorded for %s on %s", grp.Name, sess.Date.Format("Mon, 02 Jan 2006")),
		TemplateName: "attendance-summary",
		TemplateData: struct {
			Group   group.Group
			Session Session
			Stats   Stats
		}{grp, sess, sess.Stats()},
	})
}

func withStats(sessions []Session) []SessionWithStats {
	out := make([]SessionWithStats, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessions[i].WithStats())
	}
	return out
}

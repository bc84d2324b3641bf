package attendance_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/group"
	dummydb "github.com/trezcool/darasa/storage/database/dummy"
)

type mailRecorder struct {
	sync.Mutex
	messages []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.Lock()
	defer m.Unlock()
	m.messages = append(m.messages, messages...)
}

func (m *mailRecorder) count() int {
	m.Lock()
	defer m.Unlock()
	return len(m.messages)
}

type fixture struct {
	svc      attendance.Service
	grpRepo  group.Repository
	sessRepo attendance.Repository
	mail     *mailRecorder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)

	grpRepo := dummydb.NewGroupRepository(db)
	sessRepo := dummydb.NewSessionRepository(db)
	mail := new(mailRecorder)
	svc := attendance.NewService(sessRepo, group.NewService(grpRepo), mail)
	return &fixture{svc: svc, grpRepo: grpRepo, sessRepo: sessRepo, mail: mail}
}

func createGroup(t *testing.T, repo group.Repository, name string, days []time.Weekday, students ...group.StudentRef) group.Group {
	t.Helper()
	schedule := make([]group.ScheduleSlot, 0, len(days))
	for _, day := range days {
		schedule = append(schedule, group.ScheduleSlot{Day: day, StartTime: "08:00", EndTime: "09:30"})
	}
	grp, err := repo.CreateGroup(context.Background(), group.Group{
		Name:     name,
		Code:     "G-" + name,
		Subject:  "Mathematics",
		Teacher:  group.TeacherRef{ID: "t1", Name: "Mr. Banza", Email: "banza@test.cd"},
		Schedule: schedule,
		Students: students,
	})
	require.NoError(t, err)
	return grp
}

var (
	monday  = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC) // a Monday
	trio    = []group.StudentRef{{ID: "s1", Name: "Alia"}, {ID: "s2", Name: "Ben"}, {ID: "s3", Name: "Cira"}}
	quartet = []group.StudentRef{{ID: "s1", Name: "Alia"}, {ID: "s2", Name: "Ben"}, {ID: "s3", Name: "Cira"}, {ID: "s4", Name: "Didi"}}
)

func Test_service_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("missing group fails validation", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Create(ctx, attendance.NewSession{Date: monday}, attendance.Actor{ID: "t1"})
		assert.Error(t, err)
	})

	t.Run("unknown group", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.Create(ctx, attendance.NewSession{GroupID: "nope", Date: monday}, attendance.Actor{ID: "t1"})
		assert.Equal(t, group.ErrNotFound, err)
	})

	t.Run("records are seeded from the roster, unset", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

		sess, err := f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, attendance.Actor{ID: "t1"})
		require.NoError(t, err)

		assert.NotEmpty(t, sess.ID)
		assert.Equal(t, grp.Name, sess.GroupName)
		assert.Equal(t, grp.Teacher.ID, sess.TeacherID)
		assert.Equal(t, grp.Subject, sess.Subject)
		assert.False(t, sess.IsCompleted)
		assert.False(t, sess.IsLocked)
		require.Len(t, sess.Records, 3)
		for i, student := range trio {
			assert.Equal(t, student.ID, sess.Records[i].StudentID)
			assert.Equal(t, student.Name, sess.Records[i].StudentName)
			assert.False(t, sess.Records[i].Status.IsSet())
		}
		assert.Equal(t, attendance.Stats{Total: 3}, sess.Stats)
	})

	t.Run("date normalizes to UTC midnight", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

		sess, err := f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, attendance.Actor{ID: "t1"})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), sess.Date)
	})

	t.Run("duplicate key is rejected", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

		_, err := f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, attendance.Actor{ID: "t1"})
		require.NoError(t, err)

		// same calendar date at a different hour
		_, err = f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday.Add(3 * time.Hour)}, attendance.Actor{ID: "t1"})
		assert.Equal(t, attendance.ErrDuplicateSession, err)

		// a second slot on the same date is a distinct session
		_, err = f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday, ScheduleIndex: 1}, attendance.Actor{ID: "t1"})
		assert.NoError(t, err)
	})

	t.Run("off-roster inputs are silently dropped", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

		sess, err := f.svc.Create(ctx, attendance.NewSession{
			GroupID: grp.ID,
			Date:    monday,
			Records: []attendance.RecordInput{
				{StudentID: "s1", Status: attendance.StatusPresent},
				{StudentID: "intruder", Status: attendance.StatusPresent},
			},
		}, attendance.Actor{ID: "t1"})
		require.NoError(t, err)

		require.Len(t, sess.Records, 3)
		assert.Equal(t, attendance.StatusPresent, sess.Records[0].Status)
		for _, rec := range sess.Records {
			assert.NotEqual(t, "intruder", rec.StudentID)
		}
	})

	t.Run("invalid status is a typed error", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

		_, err := f.svc.Create(ctx, attendance.NewSession{
			GroupID: grp.ID,
			Date:    monday,
			Records: []attendance.RecordInput{{StudentID: "s1", Status: "tardy"}},
		}, attendance.Actor{ID: "t1"})

		var statusErr *attendance.InvalidStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, attendance.Status("tardy"), statusErr.Status)
	})

	t.Run("a note on an unset record carries provenance", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

		sess, err := f.svc.Create(ctx, attendance.NewSession{
			GroupID: grp.ID,
			Date:    monday,
			Records: []attendance.RecordInput{{StudentID: "s1", Notes: "left early last week"}},
		}, attendance.Actor{ID: "t1"})
		require.NoError(t, err)

		rec := sess.Records[0]
		assert.False(t, rec.Status.IsSet())
		assert.Equal(t, "left early last week", rec.Notes)
		assert.Equal(t, "t1", rec.MarkedBy)
		assert.False(t, rec.MarkedAt.IsZero())
	})

	t.Run("mark complete with missing statuses fails", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

		_, err := f.svc.Create(ctx, attendance.NewSession{
			GroupID:      grp.ID,
			Date:         monday,
			Records:      []attendance.RecordInput{{StudentID: "s1", Status: attendance.StatusPresent}},
			MarkComplete: true,
		}, attendance.Actor{ID: "t1"})

		var incErr *attendance.IncompleteAttendanceError
		require.ErrorAs(t, err, &incErr)
		assert.ElementsMatch(t, []string{"s2", "s3"}, incErr.MissingStudents)

		// nothing was persisted
		_, total, err := f.sessRepo.FilterSessions(ctx, attendance.QueryFilter{GroupID: grp.ID})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("mark complete with full statuses sends the summary mail", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

		sess, err := f.svc.Create(ctx, attendance.NewSession{
			GroupID: grp.ID,
			Date:    monday,
			Records: []attendance.RecordInput{
				{StudentID: "s1", Status: attendance.StatusPresent},
				{StudentID: "s2", Status: attendance.StatusLate, MinutesLate: 10},
				{StudentID: "s3", Status: attendance.StatusAbsent},
			},
			MarkComplete: true,
		}, attendance.Actor{ID: "t1"})
		require.NoError(t, err)

		assert.True(t, sess.IsCompleted)
		assert.Equal(t, attendance.Stats{Total: 3, Present: 1, Absent: 1, Late: 1, Rate: 67}, sess.Stats)
		assert.Equal(t, 1, f.mail.count())
	})
}

func Test_service_UpdateRecords(t *testing.T) {
	ctx := context.Background()
	actor := attendance.Actor{ID: "t1", Name: "Mr. Banza"}

	newDraft := func(t *testing.T, f *fixture, students ...group.StudentRef) attendance.SessionWithStats {
		t.Helper()
		if students == nil {
			students = trio
		}
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, students...)
		sess, err := f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, actor)
		require.NoError(t, err)
		return sess
	}

	t.Run("unknown session", func(t *testing.T) {
		f := setup(t)
		_, err := f.svc.UpdateRecords(ctx, "1f7e10b2-23a6-4a57-9c61-0bd2c9a6d0cd", attendance.UpdateSession{}, actor)
		assert.Equal(t, attendance.ErrNotFound, err)
	})

	t.Run("statuses, notes and provenance are applied", func(t *testing.T) {
		f := setup(t)
		draft := newDraft(t, f)

		notes := "fire drill at 8:20"
		sess, err := f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{
				{StudentID: "s1", Status: attendance.StatusPresent},
				{StudentID: "s2", Status: attendance.StatusAbsent, Notes: "sick"},
			},
			SessionNotes: &notes,
		}, actor)
		require.NoError(t, err)

		assert.Equal(t, attendance.StatusPresent, sess.Records[0].Status)
		assert.Equal(t, attendance.StatusAbsent, sess.Records[1].Status)
		assert.Equal(t, "sick", sess.Records[1].Notes)
		assert.Equal(t, actor.ID, sess.Records[0].MarkedBy)
		assert.False(t, sess.Records[0].MarkedAt.IsZero())
		assert.Equal(t, notes, sess.SessionNotes)
		assert.False(t, sess.Records[2].Status.IsSet()) // untouched
	})

	t.Run("nil session notes leaves notes untouched", func(t *testing.T) {
		f := setup(t)
		draft := newDraft(t, f)

		notes := "keep me"
		_, err := f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{SessionNotes: &notes}, actor)
		require.NoError(t, err)

		sess, err := f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{{StudentID: "s1", Status: attendance.StatusPresent}},
		}, actor)
		require.NoError(t, err)
		assert.Equal(t, "keep me", sess.SessionNotes)
	})

	t.Run("unset status is rejected on update", func(t *testing.T) {
		f := setup(t)
		draft := newDraft(t, f)

		_, err := f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{{StudentID: "s1"}},
		}, actor)
		var statusErr *attendance.InvalidStatusError
		assert.ErrorAs(t, err, &statusErr)
	})

	t.Run("invalid status is rejected on update", func(t *testing.T) {
		f := setup(t)
		draft := newDraft(t, f)

		_, err := f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{{StudentID: "s1", Status: "tardy"}},
		}, actor)
		var statusErr *attendance.InvalidStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, attendance.Status("tardy"), statusErr.Status)
	})

	t.Run("minutes late rules", func(t *testing.T) {
		f := setup(t)
		draft := newDraft(t, f)

		// transition to late with no minutes gets the default
		sess, err := f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{{StudentID: "s1", Status: attendance.StatusLate}},
		}, actor)
		require.NoError(t, err)
		assert.Equal(t, 5, sess.Records[0].MinutesLate)

		// explicit minutes are kept
		sess, err = f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{{StudentID: "s1", Status: attendance.StatusLate, MinutesLate: 12}},
		}, actor)
		require.NoError(t, err)
		assert.Equal(t, 12, sess.Records[0].MinutesLate)

		// leaving late forces minutes back to zero
		sess, err = f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{{StudentID: "s1", Status: attendance.StatusPresent, MinutesLate: 12}},
		}, actor)
		require.NoError(t, err)
		assert.Equal(t, 0, sess.Records[0].MinutesLate)
	})

	t.Run("completing a draft sends the summary mail once", func(t *testing.T) {
		f := setup(t)
		draft := newDraft(t, f)

		sess, err := f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{
				{StudentID: "s1", Status: attendance.StatusPresent},
				{StudentID: "s2", Status: attendance.StatusPresent},
				{StudentID: "s3", Status: attendance.StatusPresent},
			},
			MarkComplete: true,
		}, actor)
		require.NoError(t, err)
		assert.True(t, sess.IsCompleted)
		assert.Equal(t, 1, f.mail.count())

		// updating an already-completed session does not re-notify
		_, err = f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records:      []attendance.RecordInput{{StudentID: "s1", Status: attendance.StatusAbsent}},
			MarkComplete: true,
		}, actor)
		require.NoError(t, err)
		assert.Equal(t, 1, f.mail.count())
	})

	t.Run("locked session rejects edits and keeps stored state", func(t *testing.T) {
		f := setup(t)
		draft := newDraft(t, f)

		_, err := f.svc.BulkSetStatus(ctx, draft.ID, attendance.StatusPresent, nil, actor)
		require.NoError(t, err)
		_, err = f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{MarkComplete: true}, actor)
		require.NoError(t, err)
		_, err = f.svc.Lock(ctx, draft.ID, actor)
		require.NoError(t, err)

		_, err = f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{{StudentID: "s1", Status: attendance.StatusAbsent}},
		}, actor)
		assert.Equal(t, attendance.ErrSessionLocked, err)

		stored, err := f.svc.GetByID(ctx, draft.ID)
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusPresent, stored.Records[0].Status)
	})

	t.Run("elevated actor may edit a locked session", func(t *testing.T) {
		f := setup(t)
		draft := newDraft(t, f)

		_, err := f.svc.BulkSetStatus(ctx, draft.ID, attendance.StatusPresent, nil, actor)
		require.NoError(t, err)
		_, err = f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{MarkComplete: true}, actor)
		require.NoError(t, err)
		_, err = f.svc.Lock(ctx, draft.ID, actor)
		require.NoError(t, err)

		admin := attendance.Actor{ID: "a1", Name: "Principal", Elevated: true}
		sess, err := f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{
			Records: []attendance.RecordInput{{StudentID: "s1", Status: attendance.StatusExcused}},
		}, admin)
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusExcused, sess.Records[0].Status)
		assert.Equal(t, admin.ID, sess.Records[0].MarkedBy)
	})
}

func Test_service_BulkSetStatus(t *testing.T) {
	ctx := context.Background()
	actor := attendance.Actor{ID: "t1"}

	f := setup(t)
	grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, quartet...)
	draft, err := f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, actor)
	require.NoError(t, err)

	t.Run("invalid status", func(t *testing.T) {
		_, err := f.svc.BulkSetStatus(ctx, draft.ID, "tardy", nil, actor)
		var statusErr *attendance.InvalidStatusError
		assert.ErrorAs(t, err, &statusErr)
	})

	t.Run("all records", func(t *testing.T) {
		sess, err := f.svc.BulkSetStatus(ctx, draft.ID, attendance.StatusPresent, nil, actor)
		require.NoError(t, err)
		for _, rec := range sess.Records {
			assert.Equal(t, attendance.StatusPresent, rec.Status)
			assert.Equal(t, 0, rec.MinutesLate)
		}
		assert.Equal(t, attendance.Stats{Total: 4, Present: 4, Rate: 100}, sess.Stats)
	})

	t.Run("subset only", func(t *testing.T) {
		sess, err := f.svc.BulkSetStatus(ctx, draft.ID, attendance.StatusLate, []string{"s2", "s4"}, actor)
		require.NoError(t, err)
		assert.Equal(t, attendance.StatusPresent, sess.Records[0].Status)
		assert.Equal(t, attendance.StatusLate, sess.Records[1].Status)
		assert.Equal(t, 5, sess.Records[1].MinutesLate) // default applied
		assert.Equal(t, attendance.StatusPresent, sess.Records[2].Status)
		assert.Equal(t, attendance.StatusLate, sess.Records[3].Status)
	})
}

func Test_service_InvertStatuses(t *testing.T) {
	ctx := context.Background()
	actor := attendance.Actor{ID: "t1"}

	f := setup(t)
	grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, quartet...)
	draft, err := f.svc.Create(ctx, attendance.NewSession{
		GroupID: grp.ID,
		Date:    monday,
		Records: []attendance.RecordInput{
			{StudentID: "s1", Status: attendance.StatusPresent},
			{StudentID: "s2", Status: attendance.StatusAbsent},
			{StudentID: "s3", Status: attendance.StatusLate, MinutesLate: 15},
			{StudentID: "s4", Status: attendance.StatusExcused},
		},
	}, actor)
	require.NoError(t, err)

	sess, err := f.svc.InvertStatuses(ctx, draft.ID, actor)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusAbsent, sess.Records[0].Status)
	assert.Equal(t, attendance.StatusPresent, sess.Records[1].Status)
	assert.Equal(t, attendance.StatusLate, sess.Records[2].Status)
	assert.Equal(t, 15, sess.Records[2].MinutesLate) // untouched
	assert.Equal(t, attendance.StatusExcused, sess.Records[3].Status)
}

func Test_service_ResetRecords(t *testing.T) {
	ctx := context.Background()
	actor := attendance.Actor{ID: "t1"}

	f := setup(t)
	grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)
	draft, err := f.svc.Create(ctx, attendance.NewSession{
		GroupID:      grp.ID,
		Date:         monday,
		SessionNotes: "rowdy bunch",
		Records: []attendance.RecordInput{
			{StudentID: "s1", Status: attendance.StatusAbsent, Notes: "sick"},
			{StudentID: "s2", Status: attendance.StatusLate, MinutesLate: 20},
		},
	}, actor)
	require.NoError(t, err)

	sess, err := f.svc.ResetRecords(ctx, draft.ID, actor)
	require.NoError(t, err)

	for _, rec := range sess.Records {
		assert.Equal(t, attendance.StatusPresent, rec.Status)
		assert.Equal(t, 0, rec.MinutesLate)
		assert.Empty(t, rec.Notes)
	}
	assert.Empty(t, sess.SessionNotes)
	assert.Equal(t, attendance.Stats{Total: 3, Present: 3, Rate: 100}, sess.Stats)
}

func Test_service_LockUnlock(t *testing.T) {
	ctx := context.Background()
	teacher := attendance.Actor{ID: "t1", Name: "Mr. Banza"}
	admin := attendance.Actor{ID: "a1", Name: "Principal", Elevated: true}

	newCompleted := func(t *testing.T, f *fixture) attendance.SessionWithStats {
		t.Helper()
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)
		sess, err := f.svc.Create(ctx, attendance.NewSession{
			GroupID: grp.ID,
			Date:    monday,
			Records: []attendance.RecordInput{
				{StudentID: "s1", Status: attendance.StatusPresent},
				{StudentID: "s2", Status: attendance.StatusPresent},
				{StudentID: "s3", Status: attendance.StatusPresent},
			},
			MarkComplete: true,
		}, teacher)
		require.NoError(t, err)
		return sess
	}

	t.Run("draft cannot be locked", func(t *testing.T) {
		f := setup(t)
		grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)
		draft, err := f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, teacher)
		require.NoError(t, err)

		_, err = f.svc.Lock(ctx, draft.ID, teacher)
		assert.Equal(t, attendance.ErrSessionNotCompleted, err)
	})

	t.Run("lock is idempotent", func(t *testing.T) {
		f := setup(t)
		completed := newCompleted(t, f)

		locked, err := f.svc.Lock(ctx, completed.ID, teacher)
		require.NoError(t, err)
		assert.True(t, locked.IsLocked)
		assert.Equal(t, teacher.ID, locked.LockedBy)
		assert.False(t, locked.LockedAt.IsZero())

		again, err := f.svc.Lock(ctx, completed.ID, admin)
		require.NoError(t, err)
		assert.Equal(t, locked.LockedAt, again.LockedAt)
		assert.Equal(t, locked.LockedBy, again.LockedBy)
	})

	t.Run("unlock requires elevation and keeps the audit trail", func(t *testing.T) {
		f := setup(t)
		completed := newCompleted(t, f)

		locked, err := f.svc.Lock(ctx, completed.ID, teacher)
		require.NoError(t, err)

		_, err = f.svc.Unlock(ctx, completed.ID, teacher)
		assert.Equal(t, attendance.ErrInsufficientPrivilege, err)

		unlocked, err := f.svc.Unlock(ctx, completed.ID, admin)
		require.NoError(t, err)
		assert.False(t, unlocked.IsLocked)
		assert.Equal(t, locked.LockedAt, unlocked.LockedAt)
		assert.Equal(t, locked.LockedBy, unlocked.LockedBy)
		assert.True(t, unlocked.IsCompleted) // completion survives unlock
	})
}

func Test_service_Delete(t *testing.T) {
	ctx := context.Background()
	teacher := attendance.Actor{ID: "t1"}
	admin := attendance.Actor{ID: "a1", Elevated: true}

	f := setup(t)
	grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)
	sess, err := f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, teacher)
	require.NoError(t, err)

	assert.Equal(t, attendance.ErrInsufficientPrivilege, f.svc.Delete(ctx, sess.ID, teacher))

	require.NoError(t, f.svc.Delete(ctx, sess.ID, admin))
	_, err = f.svc.GetByID(ctx, sess.ID)
	assert.Equal(t, attendance.ErrNotFound, err)

	// the composite key is freed for a retake
	_, err = f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, teacher)
	assert.NoError(t, err)

	assert.Equal(t, attendance.ErrNotFound, f.svc.Delete(ctx, "4dc6a18e-6d7e-4f31-bd9a-3e5c4f2a1b0c", admin))
}

func Test_service_Pending(t *testing.T) {
	ctx := context.Background()
	actor := attendance.Actor{ID: "t1"}

	f := setup(t)
	// meets twice on Mondays; a second group meets on Tuesdays only
	grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday, time.Monday}, trio...)
	createGroup(t, f.grpRepo, "7B", []time.Weekday{time.Tuesday}, trio...)

	pending, err := f.svc.Pending(ctx, monday)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, grp.ID, pending[0].Group.ID)
	assert.Equal(t, 0, pending[0].ScheduleIndex)
	assert.Equal(t, 1, pending[1].ScheduleIndex)

	// a draft session is still pending
	draft, err := f.svc.Create(ctx, attendance.NewSession{GroupID: grp.ID, Date: monday}, actor)
	require.NoError(t, err)
	pending, err = f.svc.Pending(ctx, monday)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// completing slot 0 clears it
	_, err = f.svc.BulkSetStatus(ctx, draft.ID, attendance.StatusPresent, nil, actor)
	require.NoError(t, err)
	_, err = f.svc.UpdateRecords(ctx, draft.ID, attendance.UpdateSession{MarkComplete: true}, actor)
	require.NoError(t, err)

	pending, err = f.svc.Pending(ctx, monday)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].ScheduleIndex)
}

func Test_service_Histories(t *testing.T) {
	ctx := context.Background()
	actor := attendance.Actor{ID: "t1"}

	f := setup(t)
	grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

	for week := 0; week < 3; week++ {
		_, err := f.svc.Create(ctx, attendance.NewSession{
			GroupID: grp.ID,
			Date:    monday.AddDate(0, 0, -7*week),
			Records: []attendance.RecordInput{
				{StudentID: "s1", Status: attendance.StatusPresent},
				{StudentID: "s2", Status: attendance.StatusPresent},
				{StudentID: "s3", Status: attendance.StatusAbsent},
			},
			MarkComplete: true,
		}, actor)
		require.NoError(t, err)
	}

	t.Run("group history aggregates all records", func(t *testing.T) {
		sessions, stats, err := f.svc.GroupHistory(ctx, grp.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		// newest first
		assert.True(t, sessions[0].Date.After(sessions[1].Date))
		assert.Equal(t, attendance.Stats{Total: 9, Present: 6, Absent: 3, Rate: 67}, stats)
	})

	t.Run("student history aggregates only the student's records", func(t *testing.T) {
		sessions, stats, err := f.svc.StudentHistory(ctx, "s3")
		require.NoError(t, err)
		require.Len(t, sessions, 3)
		assert.Equal(t, attendance.Stats{Total: 3, Absent: 3}, stats)
	})

	t.Run("unknown student has empty history", func(t *testing.T) {
		sessions, stats, err := f.svc.StudentHistory(ctx, "ghost")
		require.NoError(t, err)
		assert.Empty(t, sessions)
		assert.Equal(t, attendance.Stats{}, stats)
	})
}

func Test_service_Filter(t *testing.T) {
	ctx := context.Background()
	actor := attendance.Actor{ID: "t1"}

	f := setup(t)
	grp := createGroup(t, f.grpRepo, "7A", []time.Weekday{time.Monday}, trio...)

	for week := 0; week < 5; week++ {
		ns := attendance.NewSession{GroupID: grp.ID, Date: monday.AddDate(0, 0, -7*week)}
		if week%2 == 0 {
			ns.Records = []attendance.RecordInput{
				{StudentID: "s1", Status: attendance.StatusPresent},
				{StudentID: "s2", Status: attendance.StatusPresent},
				{StudentID: "s3", Status: attendance.StatusPresent},
			}
			ns.MarkComplete = true
		}
		_, err := f.svc.Create(ctx, ns, actor)
		require.NoError(t, err)
	}

	t.Run("pagination", func(t *testing.T) {
		page, total, err := f.svc.Filter(ctx, attendance.QueryFilter{GroupID: grp.ID, Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, page, 2)

		last, _, err := f.svc.Filter(ctx, attendance.QueryFilter{GroupID: grp.ID, Page: 3, PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, last, 1)
	})

	t.Run("completion filter", func(t *testing.T) {
		completed := true
		page, total, err := f.svc.Filter(ctx, attendance.QueryFilter{GroupID: grp.ID, IsCompleted: &completed})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		for _, sess := range page {
			assert.True(t, sess.IsCompleted)
		}
	})

	t.Run("date range", func(t *testing.T) {
		_, total, err := f.svc.Filter(ctx, attendance.QueryFilter{
			GroupID:  grp.ID,
			DateFrom: monday.AddDate(0, 0, -7),
			DateTo:   monday,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
	})
}

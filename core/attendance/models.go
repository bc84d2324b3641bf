package attendance

import (
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/group"
)

// Status is a student's attendance status within a session.
// The empty Status marks a record that has not been filled in yet; it is only
// valid while the session is a draft.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

var Statuses = []Status{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// IsSet reports whether the status has been filled in.
func (s Status) IsSet() bool { return s != "" }

// Attended reports whether the status counts toward the attendance rate.
// Late is not penalized in the rate; minutesLate is informational only.
func (s Status) Attended() bool { return s == StatusPresent || s == StatusLate }

type (
	// Record is one student's attendance within a Session. Student identity is
	// a roster snapshot reference; the roster owns the student, not the record.
	Record struct {
		StudentID   string    `json:"student_id"`
		StudentName string    `json:"student_name"`
		Status      Status    `json:"status"`
		MinutesLate int       `json:"minutes_late"`
		Notes       string    `json:"notes,omitempty"`
		MarkedAt    time.Time `json:"marked_at"` // UTC; last mutation
		MarkedBy    string    `json:"marked_by"` // user ID
	}

	// Session is one class-group meeting on one calendar date. Exactly one
	// Session may exist per (GroupID, Date, ScheduleIndex).
	Session struct {
		ID            string    `json:"id"`
		GroupID       string    `json:"group_id"`
		GroupName     string    `json:"group_name"`
		Date          time.Time `json:"date"`           // calendar date, UTC midnight
		ScheduleIndex int       `json:"schedule_index"` // which weekly slot of the group
		TeacherID     string    `json:"teacher_id"`     // denormalized at creation
		TeacherName   string    `json:"teacher_name"`
		Subject       string    `json:"subject"`
		Records       []Record  `json:"records"` // roster order
		SessionNotes  string    `json:"session_notes,omitempty"`
		IsCompleted   bool      `json:"is_completed"`
		IsLocked      bool      `json:"is_locked"`
		LockedAt      time.Time `json:"locked_at,omitempty"` // most recent lock event, kept on unlock
		LockedBy      string    `json:"locked_by,omitempty"`
		CreatedBy     string    `json:"created_by"`
		CreatedAt     time.Time `json:"created_at"` // UTC
		UpdatedAt     time.Time `json:"updated_at"` // UTC
	}

	// Stats are derived from a Session's records; never persisted.
	Stats struct {
		Total   int `json:"total"`
		Present int `json:"present"`
		Absent  int `json:"absent"`
		Late    int `json:"late"`
		Excused int `json:"excused"`
		Rate    int `json:"rate"` // percentage of total that attended (present or late)
	}

	// SessionWithStats is what service reads return to callers.
	SessionWithStats struct {
		Session
		Stats Stats `json:"stats"`
	}
)

func (s *Session) Stats() Stats { return ComputeStats(s.Records) }

func (s *Session) WithStats() SessionWithStats {
	return SessionWithStats{Session: *s, Stats: s.Stats()}
}

// missingStatuses returns the IDs of students whose record has no status yet.
func (s *Session) missingStatuses() []string {
	var missing []string
	for _, rec := range s.Records {
		if !rec.Status.IsSet() {
			missing = append(missing, rec.StudentID)
		}
	}
	return missing
}

func (s *Session) recordByStudent(studentID string) *Record {
	for i := range s.Records {
		if s.Records[i].StudentID == studentID {
			return &s.Records[i]
		}
	}
	return nil
}

// Actor is the caller capability passed explicitly into every guarded
// operation; the service never inspects ambient identity state itself.
type Actor struct {
	ID       string
	Name     string
	Elevated bool // administrator-equivalent; may unlock, delete and edit locked sessions
}

type (
	// RecordInput is one student's status submission. An unknown StudentID is
	// silently dropped: the roster snapshot is authoritative. The status is
	// checked by the service so a bad value always surfaces as
	// InvalidStatusError, whatever the entry point.
	RecordInput struct {
		StudentID   string `json:"student_id" validate:"required"`
		Status      Status `json:"status"`
		MinutesLate int    `json:"minutes_late" validate:"gte=0"`
		Notes       string `json:"notes"`
	}

	// NewSession contains information needed to take attendance for a meeting.
	NewSession struct {
		GroupID       string        `json:"group_id" validate:"required"`
		Date          time.Time     `json:"date" validate:"required"`
		ScheduleIndex int           `json:"schedule_index" validate:"gte=0"`
		Records       []RecordInput `json:"records" validate:"omitempty,dive"`
		SessionNotes  string        `json:"session_notes"`
		MarkComplete  bool          `json:"mark_complete"`
	}

	// UpdateSession defines what may be modified on an existing Session.
	// A nil SessionNotes leaves the notes untouched.
	UpdateSession struct {
		Records      []RecordInput `json:"records" validate:"omitempty,dive"`
		SessionNotes *string       `json:"session_notes"`
		MarkComplete bool          `json:"mark_complete"`
	}

	// QueryFilter narrows session listings; date bounds are bound manually
	// by the transport (date-only values).
	QueryFilter struct {
		GroupID     string    `query:"group"`
		TeacherID   string    `query:"teacher"`
		StudentID   string    `query:"student"`
		DateFrom    time.Time `query:"-"`
		DateTo      time.Time `query:"-"`
		IsCompleted *bool     `query:"is_completed"`
		IsLocked    *bool     `query:"is_locked"`
		Page        int       `query:"page"`
		PageSize    int       `query:"page_size"`
	}

	// PendingGroup is a group meeting scheduled today whose attendance has not
	// been completed yet.
	PendingGroup struct {
		Group         group.Group `json:"group"`
		ScheduleIndex int         `json:"schedule_index"`
	}
)

func (ns *NewSession) Validate() error {
	ns.GroupID = core.CleanString(ns.GroupID)
	ns.SessionNotes = core.CleanString(ns.SessionNotes)
	return core.Validate.Struct(ns)
}

func (us *UpdateSession) Validate() error {
	if us.SessionNotes != nil {
		notes := core.CleanString(*us.SessionNotes)
		us.SessionNotes = &notes
	}
	return core.Validate.Struct(us)
}

func (qf *QueryFilter) Clean() {
	qf.GroupID = core.CleanString(qf.GroupID)
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.StudentID = core.CleanString(qf.StudentID)
	if qf.Page < 1 {
		qf.Page = 1
	}
	if qf.PageSize < 1 || qf.PageSize > 100 {
		qf.PageSize = 20
	}
}

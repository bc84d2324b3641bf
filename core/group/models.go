package group

import (
	"time"
)

type (
	// TeacherRef is a denormalized reference to the teacher in charge of a
	// Group, captured so attendance reporting survives later staff changes.
	TeacherRef struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	// StudentRef is a reference to an enrolled student. Attendance sessions
	// copy these at creation time (point-in-time roster snapshot).
	StudentRef struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// ScheduleSlot is one recurring weekly meeting of a Group. A Group may
	// meet several times a week; slots are identified by their index.
	ScheduleSlot struct {
		Day       time.Weekday `json:"day"`
		StartTime string       `json:"start_time"` // "HH:MM"
		EndTime   string       `json:"end_time"`   // "HH:MM"
	}

	Group struct {
		ID        string         `json:"id"`
		Name      string         `json:"name"`
		Code      string         `json:"code"`
		Subject   string         `json:"subject"`
		Teacher   TeacherRef     `json:"teacher"`
		Schedule  []ScheduleSlot `json:"schedule"`
		Students  []StudentRef   `json:"students"`
		IsActive  *bool          `json:"is_active"`
		CreatedAt time.Time      `json:"created_at"` // UTC
		UpdatedAt time.Time      `json:"updated_at"` // UTC
	}
)

// SlotsOn returns the indices of g's schedule slots falling on the given weekday.
func (g *Group) SlotsOn(day time.Weekday) []int {
	var idxs []int
	for i, slot := range g.Schedule {
		if slot.Day == day {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

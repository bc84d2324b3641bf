package attendance

import (
	"errors"
	"fmt"
	"strings"
)

// Business-rule violations. All are expected outcomes surfaced verbatim to the
// caller; none warrants a retry.
var (
	ErrNotFound              = errors.New("attendance session not found")
	ErrDuplicateSession      = errors.New("attendance has already been taken for this session")
	ErrSessionLocked         = errors.New("attendance session is locked")
	ErrSessionNotCompleted   = errors.New("attendance session must be completed before locking")
	ErrInsufficientPrivilege = errors.New("this operation requires an elevated role")
)

// InvalidStatusError reports a status value outside the enum.
type InvalidStatusError struct {
	Status Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid attendance status %q", string(e.Status))
}

// IncompleteAttendanceError reports completion requested while some students
// still have no status; it carries the offending student IDs.
type IncompleteAttendanceError struct {
	MissingStudents []string
}

func (e *IncompleteAttendanceError) Error() string {
	return fmt.Sprintf("cannot complete attendance: %d student(s) without a status (%s)",
		len(e.MissingStudents), strings.Join(e.MissingStudents, ", "))
}

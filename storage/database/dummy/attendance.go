package dummydb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
)

type sessionRepository struct {
	db *sessionTable
}

var _ attendance.Repository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) attendance.Repository {
	return &sessionRepository{db: db.session}
}

func sessionKey(groupID string, date time.Time, scheduleIndex int) string {
	return fmt.Sprintf("%s|%s|%d", groupID, date.UTC().Format("2006-01-02"), scheduleIndex)
}

// copySession returns a session with its own records slice so callers cannot
// mutate stored state in place.
func copySession(sess attendance.Session) attendance.Session {
	records := make([]attendance.Record, len(sess.Records))
	copy(records, sess.Records)
	sess.Records = records
	return sess
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess attendance.Session) (attendance.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := sessionKey(sess.GroupID, sess.Date, sess.ScheduleIndex)
	if _, ok := repo.db.byKey[key]; ok {
		return attendance.Session{}, attendance.ErrDuplicateSession
	}

	sess.ID = uuid.New().String()
	stored := copySession(sess)
	repo.db.table[sess.ID] = &stored
	repo.db.byKey[key] = sess.ID
	return sess, nil
}

func (repo *sessionRepository) GetSessionByID(_ context.Context, id string) (attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sess, ok := repo.db.table[id]; ok {
		return copySession(*sess), nil
	}
	return attendance.Session{}, attendance.ErrNotFound
}

func (repo *sessionRepository) GetSessionByKey(_ context.Context, groupID string, date time.Time, scheduleIndex int) (attendance.Session, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if id, ok := repo.db.byKey[sessionKey(groupID, date, scheduleIndex)]; ok {
		if sess, ok := repo.db.table[id]; ok {
			return copySession(*sess), nil
		}
	}
	return attendance.Session{}, attendance.ErrNotFound
}

func (repo *sessionRepository) FilterSessions(_ context.Context, filter attendance.QueryFilter) ([]attendance.Session, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	matches := make([]attendance.Session, 0)
	for _, sess := range repo.db.table {
		if matchesFilter(*sess, filter) {
			matches = append(matches, copySession(*sess))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].Date.Equal(matches[j].Date) {
			return matches[i].Date.After(matches[j].Date)
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	total := len(matches)
	if filter.PageSize > 0 {
		start := (filter.Page - 1) * filter.PageSize
		if start < 0 {
			start = 0
		}
		if start > total {
			start = total
		}
		end := start + filter.PageSize
		if end > total {
			end = total
		}
		matches = matches[start:end]
	}
	return matches, total, nil
}

func (repo *sessionRepository) UpdateSession(_ context.Context, sess attendance.Session) (attendance.Session, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[sess.ID]; !ok {
		return attendance.Session{}, attendance.ErrNotFound
	}
	// wholesale replacement; last write wins
	stored := copySession(sess)
	repo.db.table[sess.ID] = &stored
	return sess, nil
}

func (repo *sessionRepository) DeleteSessionByID(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if sess, ok := repo.db.table[id]; ok {
		delete(repo.db.byKey, sessionKey(sess.GroupID, sess.Date, sess.ScheduleIndex))
		delete(repo.db.table, id)
	}
	return nil
}

func matchesFilter(sess attendance.Session, filter attendance.QueryFilter) bool {
	if filter.GroupID != "" && sess.GroupID != filter.GroupID {
		return false
	}
	if filter.TeacherID != "" && sess.TeacherID != filter.TeacherID {
		return false
	}
	if filter.StudentID != "" {
		var found bool
		for _, rec := range sess.Records {
			if rec.StudentID == filter.StudentID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	// stored dates are UTC midnight; bounds are compared date-only
	if !filter.DateFrom.IsZero() && sess.Date.Before(core.DateOnly(filter.DateFrom)) {
		return false
	}
	if !filter.DateTo.IsZero() && sess.Date.After(core.DateOnly(filter.DateTo)) {
		return false
	}
	if filter.IsCompleted != nil && sess.IsCompleted != *filter.IsCompleted {
		return false
	}
	if filter.IsLocked != nil && sess.IsLocked != *filter.IsLocked {
		return false
	}
	return true
}

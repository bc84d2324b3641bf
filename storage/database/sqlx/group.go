package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/group"
)

type groupRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Code         null.String `db:"code"`
	Subject      null.String `db:"subject"`
	TeacherID    null.String `db:"teacher_id"`
	TeacherName  null.String `db:"teacher_name"`
	TeacherEmail null.String `db:"teacher_email"`
	IsActive     null.Bool   `db:"is_active"`
	CreatedAt    null.Time   `db:"created_at"`
	UpdatedAt    null.Time   `db:"updated_at"`
}

type scheduleRow struct {
	GroupID   string `db:"group_id"`
	SlotIndex int    `db:"slot_index"`
	Day       int    `db:"day"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
}

type studentRow struct {
	GroupID     string      `db:"group_id"`
	StudentID   string      `db:"student_id"`
	StudentName null.String `db:"student_name"`
}

func unpackGroup(row groupRow) group.Group {
	return group.Group{
		ID:      row.ID,
		Name:    row.Name,
		Code:    row.Code.String,
		Subject: row.Subject.String,
		Teacher: group.TeacherRef{
			ID:    row.TeacherID.String,
			Name:  row.TeacherName.String,
			Email: row.TeacherEmail.String,
		},
		IsActive:  row.IsActive.Ptr(),
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

const groupSelect = `
	SELECT g.id, g.name, g.code, g.subject, g.teacher_id, g.is_active, g.created_at, g.updated_at,
		   t.name AS teacher_name, t.email AS teacher_email
	FROM "group" g
	LEFT JOIN "user" t ON t.id = g.teacher_id`

type groupRepository struct {
	db *sqlx.DB
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(db *sqlx.DB) group.Repository {
	return &groupRepository{db: db}
}

func (repo *groupRepository) CreateGroup(ctx context.Context, grp group.Group) (group.Group, error) {
	grp.ID = uuid.New().String()

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	q := `
		INSERT INTO "group" (id, name, code, subject, teacher_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.ExecContext(ctx, q,
		grp.ID, grp.Name,
		null.NewString(grp.Code, grp.Code != ""),
		null.NewString(grp.Subject, grp.Subject != ""),
		null.NewString(grp.Teacher.ID, grp.Teacher.ID != ""),
		null.BoolFromPtr(grp.IsActive),
		null.NewTime(grp.CreatedAt.UTC(), !grp.CreatedAt.IsZero()),
	)
	if err != nil {
		return group.Group{}, errors.Wrap(err, "inserting group")
	}

	for i, slot := range grp.Schedule {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_schedule (group_id, slot_index, day, start_time, end_time) VALUES ($1, $2, $3, $4, $5)`,
			grp.ID, i, int(slot.Day), slot.StartTime, slot.EndTime)
		if err != nil {
			return group.Group{}, errors.Wrap(err, "inserting schedule slot")
		}
	}
	for _, std := range grp.Students {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_student (group_id, student_id) VALUES ($1, $2)`, grp.ID, std.ID)
		if err != nil {
			return group.Group{}, errors.Wrap(err, "inserting group student")
		}
	}

	if err = tx.Commit(); err != nil {
		return group.Group{}, errors.Wrap(err, "committing transaction")
	}
	return repo.GetGroupByID(ctx, grp.ID)
}

func (repo *groupRepository) GetGroupByID(ctx context.Context, id string) (group.Group, error) {
	if _, err := uuid.Parse(id); err != nil {
		return group.Group{}, group.ErrNotFound
	}

	var row groupRow
	if err := repo.db.GetContext(ctx, &row, groupSelect+` WHERE g.id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return group.Group{}, group.ErrNotFound
		}
		return group.Group{}, errors.Wrap(err, "finding group")
	}

	grp := unpackGroup(row)
	if err := repo.loadRelations(ctx, []*group.Group{&grp}); err != nil {
		return group.Group{}, err
	}
	return grp, nil
}

func (repo *groupRepository) QueryAllGroups(ctx context.Context) ([]group.Group, error) {
	return repo.queryGroups(ctx, groupSelect+` ORDER BY g.name`)
}

func (repo *groupRepository) QueryGroupsScheduledOn(ctx context.Context, day time.Weekday) ([]group.Group, error) {
	q := groupSelect + `
		WHERE COALESCE(g.is_active, TRUE)
		  AND g.id IN (SELECT group_id FROM group_schedule WHERE day = $1)
		ORDER BY g.name`
	return repo.queryGroups(ctx, q, int(day))
}

func (repo *groupRepository) queryGroups(ctx context.Context, q string, args ...interface{}) ([]group.Group, error) {
	var rows []groupRow
	if err := repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}

	groups := make([]group.Group, 0, len(rows))
	refs := make([]*group.Group, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, unpackGroup(row))
	}
	for i := range groups {
		refs = append(refs, &groups[i])
	}
	if err := repo.loadRelations(ctx, refs); err != nil {
		return nil, err
	}
	return groups, nil
}

// loadRelations fills in the schedule and roster of each group.
func (repo *groupRepository) loadRelations(ctx context.Context, groups []*group.Group) error {
	if len(groups) == 0 {
		return nil
	}
	byID := make(map[string]*group.Group, len(groups))
	ids := make([]string, 0, len(groups))
	for _, grp := range groups {
		byID[grp.ID] = grp
		ids = append(ids, grp.ID)
	}

	q, args, err := sqlx.In(
		`SELECT group_id, slot_index, day, start_time, end_time FROM group_schedule WHERE group_id IN (?) ORDER BY group_id, slot_index`, ids)
	if err != nil {
		return errors.Wrap(err, "building schedule query")
	}
	var slots []scheduleRow
	if err = repo.db.SelectContext(ctx, &slots, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "querying schedules")
	}
	for _, slot := range slots {
		grp := byID[slot.GroupID]
		grp.Schedule = append(grp.Schedule, group.ScheduleSlot{
			Day:       time.Weekday(slot.Day),
			StartTime: slot.StartTime,
			EndTime:   slot.EndTime,
		})
	}

	q, args, err = sqlx.In(
		`SELECT gs.group_id, gs.student_id, u.name AS student_name
		 FROM group_student gs
		 LEFT JOIN "user" u ON u.id = gs.student_id
		 WHERE gs.group_id IN (?)
		 ORDER BY u.name`, ids)
	if err != nil {
		return errors.Wrap(err, "building roster query")
	}
	var students []studentRow
	if err = repo.db.SelectContext(ctx, &students, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "querying rosters")
	}
	for _, std := range students {
		grp := byID[std.GroupID]
		grp.Students = append(grp.Students, group.StudentRef{ID: std.StudentID, Name: std.StudentName.String})
	}
	return nil
}

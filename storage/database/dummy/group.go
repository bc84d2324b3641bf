package dummydb

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/group"
)

type groupRepository struct {
	db *groupTable
}

var _ group.Repository = (*groupRepository)(nil)

func NewGroupRepository(db *DB) group.Repository {
	return &groupRepository{db: db.group}
}

func copyGroup(grp group.Group) group.Group {
	students := make([]group.StudentRef, len(grp.Students))
	copy(students, grp.Students)
	grp.Students = students

	schedule := make([]group.ScheduleSlot, len(grp.Schedule))
	copy(schedule, grp.Schedule)
	grp.Schedule = schedule
	return grp
}

func (repo *groupRepository) CreateGroup(_ context.Context, grp group.Group) (group.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	grp.ID = uuid.New().String()
	stored := copyGroup(grp)
	repo.db.table[grp.ID] = &stored
	return grp, nil
}

func (repo *groupRepository) GetGroupByID(_ context.Context, id string) (group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if grp, ok := repo.db.table[id]; ok {
		return copyGroup(*grp), nil
	}
	return group.Group{}, group.ErrNotFound
}

func (repo *groupRepository) QueryAllGroups(_ context.Context) ([]group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	groups := make([]group.Group, 0, len(repo.db.table))
	for _, grp := range repo.db.table {
		groups = append(groups, copyGroup(*grp))
	}
	return groups, nil
}

func (repo *groupRepository) QueryGroupsScheduledOn(_ context.Context, day time.Weekday) ([]group.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	groups := make([]group.Group, 0)
	for _, grp := range repo.db.table {
		if grp.IsActive != nil && !*grp.IsActive {
			continue
		}
		if len(grp.SlotsOn(day)) > 0 {
			groups = append(groups, copyGroup(*grp))
		}
	}
	return groups, nil
}

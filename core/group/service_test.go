package group_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/group"
	dummydb "github.com/trezcool/darasa/storage/database/dummy"
)

func setup(t *testing.T) (group.Service, group.Repository) {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewGroupRepository(db)
	return group.NewService(repo), repo
}

func createGroup(t *testing.T, repo group.Repository, name string, slots []group.ScheduleSlot, students ...group.StudentRef) group.Group {
	t.Helper()
	grp, err := repo.CreateGroup(context.Background(), group.Group{
		Name:     name,
		Subject:  "Mathematics",
		Teacher:  group.TeacherRef{ID: "t1", Name: "Mr. Banza", Email: "banza@test.cd"},
		Schedule: slots,
		Students: students,
	})
	require.NoError(t, err)
	return grp
}

func Test_service_Roster(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	grp := createGroup(t, repo, "7A", nil,
		group.StudentRef{ID: "s1", Name: "Alia"},
		group.StudentRef{ID: "s2", Name: "Ben"},
	)

	roster, err := svc.Roster(ctx, grp.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "s1", roster[0].ID) // enrollment order

	// the returned roster is a copy; callers cannot mutate the stored group
	roster[0].Name = "Hacked"
	again, err := svc.Roster(ctx, grp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alia", again[0].Name)

	_, err = svc.Roster(ctx, "ghost")
	assert.Equal(t, group.ErrNotFound, err)
}

func Test_service_ScheduledOn(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	monday := []group.ScheduleSlot{{Day: time.Monday, StartTime: "08:00", EndTime: "09:30"}}
	twice := []group.ScheduleSlot{
		{Day: time.Monday, StartTime: "10:00", EndTime: "11:30"},
		{Day: time.Wednesday, StartTime: "08:00", EndTime: "09:30"},
	}

	createGroup(t, repo, "7A", monday)
	createGroup(t, repo, "7B", twice)

	// an inactive group never shows up, whatever its schedule says
	inactive := false
	_, err := repo.CreateGroup(ctx, group.Group{Name: "7C", Schedule: monday, IsActive: &inactive})
	require.NoError(t, err)

	groups, err := svc.ScheduledOn(ctx, time.Monday)
	require.NoError(t, err)
	names := make([]string, 0, len(groups))
	for _, grp := range groups {
		names = append(names, grp.Name)
	}
	assert.ElementsMatch(t, []string{"7A", "7B"}, names)

	groups, err = svc.ScheduledOn(ctx, time.Wednesday)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "7B", groups[0].Name)

	groups, err = svc.ScheduledOn(ctx, time.Friday)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func Test_Group_SlotsOn(t *testing.T) {
	grp := group.Group{Schedule: []group.ScheduleSlot{
		{Day: time.Monday, StartTime: "08:00", EndTime: "09:30"},
		{Day: time.Wednesday, StartTime: "08:00", EndTime: "09:30"},
		{Day: time.Monday, StartTime: "14:00", EndTime: "15:30"},
	}}
	assert.Equal(t, []int{0, 2}, grp.SlotsOn(time.Monday))
	assert.Equal(t, []int{1}, grp.SlotsOn(time.Wednesday))
	assert.Nil(t, grp.SlotsOn(time.Friday))
}

func Test_service_GetAll(t *testing.T) {
	svc, repo := setup(t)
	ctx := context.Background()

	createGroup(t, repo, "7A", nil)
	createGroup(t, repo, "7B", nil)

	groups, err := svc.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

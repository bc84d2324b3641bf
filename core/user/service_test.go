package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
	dummydb "github.com/trezcool/darasa/storage/database/dummy"
)

func setup(t *testing.T) user.Service {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	return user.NewService(dummydb.NewUserRepository(db))
}

func Test_service_Create(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{
		Name:     "Mr. Banza",
		Username: "banza1",
		Email:    "banza@test.cd",
		Password: "s3cr3t!!",
		Roles:    user.TeacherRoles,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, usr.ID)
	assert.True(t, usr.IsTeacher())
	assert.False(t, usr.IsAdmin())
	require.NotNil(t, usr.IsActive)
	assert.True(t, *usr.IsActive)
	assert.NoError(t, usr.CheckPassword("s3cr3t!!"))
	assert.Error(t, usr.CheckPassword("nope"))

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.Create(ctx, user.NewUser{Name: "X", Username: "banza1", Email: "other@test.cd", Password: "pwd"})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "username", vErr.Fields[0].Field)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Create(ctx, user.NewUser{Name: "X", Username: "other1", Email: "banza@test.cd", Password: "pwd"})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "email", vErr.Fields[0].Field)
	})
}

func Test_service_GetByUsernameOrEmail(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, user.NewUser{Name: "Alia", Username: "alia01", Email: "alia@test.cd", Password: "pwd"})
	require.NoError(t, err)

	byUname, err := svc.GetByUsernameOrEmail(ctx, "alia01")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byUname.ID)

	// lookup is case-insensitive
	byEmail, err := svc.GetByUsernameOrEmail(ctx, " Alia@Test.cd ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	_, err = svc.GetByUsernameOrEmail(ctx, "ghost")
	assert.Equal(t, user.ErrNotFound, err)
}

func Test_service_SetLastLogin(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	usr, err := svc.Create(ctx, user.NewUser{Name: "Alia", Username: "alia01", Email: "alia@test.cd", Password: "pwd"})
	require.NoError(t, err)
	assert.True(t, usr.LastLogin.IsZero())

	usr, err = svc.SetLastLogin(ctx, usr)
	require.NoError(t, err)
	assert.False(t, usr.LastLogin.IsZero())
}

func Test_NewUser_Validate(t *testing.T) {
	tests := []struct {
		name    string
		nu      user.NewUser
		wantErr bool
	}{
		{name: "ok", nu: user.NewUser{Name: "Alia", Username: "alia01", Email: "alia@test.cd", Password: "pwd", Roles: user.StudentRoles}},
		{name: "name required", nu: user.NewUser{Password: "pwd"}, wantErr: true},
		{name: "short username", nu: user.NewUser{Name: "Alia", Username: "al", Password: "pwd"}, wantErr: true},
		{name: "bad email", nu: user.NewUser{Name: "Alia", Email: "nope", Password: "pwd"}, wantErr: true},
		{name: "unknown role", nu: user.NewUser{Name: "Alia", Password: "pwd", Roles: []string{"janitor:"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nu.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

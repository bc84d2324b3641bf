package group

import (
	"context"
	"errors"
	"time"
)

var (
	// errors
	ErrNotFound = errors.New("group not found")
)

type (
	Repository interface {
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		GetGroupByID(ctx context.Context, id string) (Group, error)
		QueryAllGroups(ctx context.Context) ([]Group, error)
		// QueryGroupsScheduledOn returns active groups with at least one
		// schedule slot on the given weekday.
		QueryGroupsScheduledOn(ctx context.Context, day time.Weekday) ([]Group, error)
	}

	// Service exposes group lookups and the student roster. The roster is
	// authoritative: attendance sessions seed their records from it.
	Service interface {
		GetAll(ctx context.Context) ([]Group, error)
		GetByID(ctx context.Context, id string) (Group, error)
		// Roster returns a point-in-time copy of the group's enrolled
		// students, in enrollment order.
		Roster(ctx context.Context, groupID string) ([]StudentRef, error)
		ScheduledOn(ctx context.Context, day time.Weekday) ([]Group, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) GetAll(ctx context.Context) ([]Group, error) {
	return svc.repo.QueryAllGroups(ctx)
}

func (svc *service) GetByID(ctx context.Context, id string) (Group, error) {
	return svc.repo.GetGroupByID(ctx, id)
}

func (svc *service) Roster(ctx context.Context, groupID string) ([]StudentRef, error) {
	grp, err := svc.repo.GetGroupByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	roster := make([]StudentRef, len(grp.Students))
	copy(roster, grp.Students)
	return roster, nil
}

func (svc *service) ScheduledOn(ctx context.Context, day time.Weekday) ([]Group, error) {
	return svc.repo.QueryGroupsScheduledOn(ctx, day)
}

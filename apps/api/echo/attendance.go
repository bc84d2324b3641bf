package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/attendance"
)

type attendanceApi struct {
	svc attendance.Service
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc attendance.Service) {
	api := attendanceApi{svc: svc}

	ag := g.Group("/attendance", jwt)

	ag.GET("", api.query)
	ag.POST("", api.create, teacherOrAdminMiddleware())
	ag.GET("/pending", api.pending, teacherOrAdminMiddleware())
	ag.GET("/group/:id", api.groupHistory)
	ag.GET("/student/:id", api.studentHistory)

	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update, teacherOrAdminMiddleware())
	ag.POST("/:id/bulk", api.bulk, teacherOrAdminMiddleware())
	ag.POST("/:id/lock", api.lock, teacherOrAdminMiddleware())
	ag.POST("/:id/unlock", api.unlock, adminMiddleware())
	ag.DELETE("/:id", api.destroy, adminMiddleware())
}

// Handlers

func (api *attendanceApi) create(ctx echo.Context) error {
	var data attendance.NewSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	sess, err := api.svc.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	var filter attendance.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	// date bounds are date-only; the binder cannot handle them
	var err error
	if filter.DateFrom, err = parseDateParam(ctx, "date_from"); err != nil {
		return err
	}
	if filter.DateTo, err = parseDateParam(ctx, "date_to"); err != nil {
		return err
	}
	filter.Clean()

	sessions, total, err := api.svc.Filter(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "filtering sessions")
	}
	return ctx.JSON(http.StatusOK, ListResponse{
		Results:  sessions,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

func (api *attendanceApi) pending(ctx echo.Context) error {
	now, err := parseDateParam(ctx, "date")
	if err != nil {
		return err
	}
	if now.IsZero() {
		now = time.Now()
	}

	pending, err := api.svc.Pending(ctx.Request().Context(), now)
	if err != nil {
		return errors.Wrap(err, "querying pending groups")
	}
	return ctx.JSON(http.StatusOK, pending)
}

func (api *attendanceApi) groupHistory(ctx echo.Context) error {
	sessions, stats, err := api.svc.GroupHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying group history")
	}
	return ctx.JSON(http.StatusOK, HistoryResponse{Sessions: sessions, Stats: stats})
}

func (api *attendanceApi) studentHistory(ctx echo.Context) error {
	sessions, stats, err := api.svc.StudentHistory(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying student history")
	}
	return ctx.JSON(http.StatusOK, HistoryResponse{Sessions: sessions, Stats: stats})
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	sess, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	var data attendance.UpdateSession
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSession")
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	sess, err := api.svc.UpdateRecords(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *attendanceApi) bulk(ctx echo.Context) error {
	var data BulkRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BulkRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	var sess attendance.SessionWithStats
	id := ctx.Param("id")
	switch data.Action {
	case bulkActionSet:
		sess, err = api.svc.BulkSetStatus(ctx.Request().Context(), id, data.Status, data.StudentIDs, actor)
	case bulkActionInvert:
		sess, err = api.svc.InvertStatuses(ctx.Request().Context(), id, actor)
	case bulkActionReset:
		sess, err = api.svc.ResetRecords(ctx.Request().Context(), id, actor)
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *attendanceApi) lock(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	sess, err := api.svc.Lock(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *attendanceApi) unlock(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	sess, err := api.svc.Unlock(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}

	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// parseDateParam reads an optional YYYY-MM-DD query parameter; the zero
// time means the parameter was absent.
func parseDateParam(ctx echo.Context, name string) (time.Time, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: name, Error: "invalid date; expected YYYY-MM-DD"})
	}
	return parsed, nil
}

const (
	bulkActionSet    = "set"
	bulkActionInvert = "invert"
	bulkActionReset  = "reset"
)

type (
	// BulkRequest drives the mark-all, invert and reset toolbar actions.
	BulkRequest struct {
		Action     string            `json:"action" validate:"required,oneof=set invert reset"`
		Status     attendance.Status `json:"status" validate:"omitempty,attstatus"`
		StudentIDs []string          `json:"student_ids"`
	}

	ListResponse struct {
		Results  []attendance.SessionWithStats `json:"results"`
		Total    int                           `json:"total"`
		Page     int                           `json:"page"`
		PageSize int                           `json:"page_size"`
	}

	HistoryResponse struct {
		Sessions []attendance.SessionWithStats `json:"sessions"`
		Stats    attendance.Stats              `json:"stats"`
	}
)

func (br *BulkRequest) Validate() error {
	br.Action = core.CleanString(br.Action, true /* lower */)
	if err := core.Validate.Struct(br); err != nil {
		return err
	}
	if br.Action == bulkActionSet && !br.Status.Valid() {
		return core.NewValidationError(nil, core.FieldError{Field: "status", Error: "a valid status is required"})
	}
	return nil
}

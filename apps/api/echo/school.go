package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
)

type schoolApi struct {
	svc      school.Service
	usrSvc   user.Service
	auth     *jwtAuth
	validate *validator.Validate
}

func registerSchoolAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *jwtAuth,
	usrSvc user.Service,
	svc school.Service,
	validate *validator.Validate,
) {
	api := schoolApi{
		svc:      svc,
		usrSvc:   usrSvc,
		auth:     auth,
		validate: validate,
	}
	teacher := teacherMiddleware(auth, usrSvc)
	student := studentMiddleware(auth, usrSvc)

	ag := g.Group("", jwt)

	// any role
	ag.GET("/classes", api.classes)
	ag.GET("/dashboard/stats", api.stats)

	// teachers
	ag.GET("/classes/:id/students", api.classStudents, teacher)
	ag.GET("/attendance/:classId", api.attendance, teacher)
	ag.POST("/attendance", api.markAttendance, teacher)

	// students
	ag.GET("/student/attendance", api.studentAttendance, student)
}

// Handlers

func (api *schoolApi) classes(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	classes, err := api.svc.Classes(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) stats(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if usr.IsStudent() {
		stats, err := api.svc.StudentStats(ctx.Request().Context(), usr)
		if err != nil {
			return errors.Wrap(err, "computing student stats")
		}
		return ctx.JSON(http.StatusOK, stats)
	}

	stats, err := api.svc.TeacherStats(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "computing teacher stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *schoolApi) classStudents(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	students, err := api.svc.ClassStudents(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying class students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) attendance(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	date := core.CleanString(ctx.QueryParam("date"))
	records, err := api.svc.Attendance(ctx.Request().Context(), usr, ctx.Param("classId"), date, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	return ctx.JSON(http.StatusOK, records)
}

func (api *schoolApi) markAttendance(ctx echo.Context) error {
	var data school.MarkAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkAttendance")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.auth.contextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	n, err := api.svc.MarkAttendance(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, MarkAttendanceResponse{Message: "Attendance marked successfully", Records: n})
}

func (api *schoolApi) studentAttendance(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	summary, err := api.svc.StudentAttendance(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "querying student attendance")
	}
	return ctx.JSON(http.StatusOK, summary)
}

type MarkAttendanceResponse struct {
	Message string `json:"message"`
	Records int    `json:"records"`
}

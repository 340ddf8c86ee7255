package echoapi

import (
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/user"
)

const courseFileField = "file"

type courseApi struct {
	svc      *course.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, auth []echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{svc: deps.CourseSvc, usrSvc: deps.UserSvc, validate: deps.Validate}

	g.GET("/courses", api.query, auth...)
	g.POST("/courses", api.create, auth...)
	g.GET("/courses/:id", api.retrieve, auth...)
	g.PUT("/courses/:id", api.update, auth...)
	g.DELETE("/courses/:id", api.destroy, auth...)
	g.GET("/courses/:id/file", api.download, auth...)
}

func isMultipart(ctx echo.Context) bool {
	return strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm)
}

// upload returns the attached file, nil when the request has none.
// The caller closes the returned content.
func upload(ctx echo.Context) (*course.Upload, func(), error) {
	noop := func() {}
	if !isMultipart(ctx) {
		return nil, noop, nil
	}
	fh, err := ctx.FormFile(courseFileField)
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, noop, nil
		}
		return nil, noop, errors.Wrap(err, "reading form file")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, errors.Wrap(err, "opening form file")
	}
	return &course.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Content:     f,
	}, func() { _ = f.Close() }, nil
}

func formValue(form url.Values, key string) *string {
	if vals, ok := form[key]; ok && len(vals) > 0 {
		return &vals[0]
	}
	return nil
}

func (api *courseApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := course.QueryFilter{Type: ctx.QueryParam("type"), Serie: ctx.QueryParam("serie")}
	courses, err := api.svc.Query(ctx.Request().Context(), usr, filter)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	up, closeFile, err := upload(ctx)
	if err != nil {
		return err
	}
	defer closeFile()

	c, err := api.svc.Create(ctx.Request().Context(), usr, data, up)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data course.UpdateCourse
	if isMultipart(ctx) {
		form, err := ctx.FormParams()
		if err != nil {
			return errors.Wrap(err, "parsing form")
		}
		data.Description = formValue(form, "description")
		for key, dst := range map[string]*string{"title": &data.Title, "serie": &data.Serie, "type": &data.Type} {
			if v := formValue(form, key); v != nil {
				*dst = *v
			}
		}
	} else if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	up, closeFile, err := upload(ctx)
	if err != nil {
		return err
	}
	defer closeFile()

	c, err := api.svc.Update(ctx.Request().Context(), usr, ctx.Param("id"), data, up)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) download(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	c, rc, err := api.svc.OpenFile(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "opening course file")
	}
	defer rc.Close()

	ctx.Response().Header().Set(
		echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": c.File.Name}),
	)
	return ctx.Stream(http.StatusOK, c.File.ContentType, rc)
}

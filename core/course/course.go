// Package course is the catalog of course documents published to the students.
package course

import (
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/user"
)

// SerieAll publishes a course to every serie.
const SerieAll = "all"

var (
	NowFunc = time.Now // mockable

	ErrNotFound = core.NewNotFoundError("course not found")
	ErrNoFile   = core.NewNotFoundError("course has no file")
)

type File struct {
	Key         string `json:"-"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Serie       string    `json:"serie"`
	Type        string    `json:"type"`
	File        *File     `json:"file"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

// VisibleTo reports whether a student of serie sees c.
func (c Course) VisibleTo(serie string) bool {
	return c.Serie == SerieAll || c.Serie == serie
}

type NewCourse struct {
	Title       string `json:"title" form:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" form:"description" validate:"max=5000"`
	Serie       string `json:"serie" form:"serie" validate:"required,oneof=A1 C D all"`
	Type        string `json:"type" form:"type" validate:"required,notblank,max=50"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Serie = core.CleanString(nc.Serie)
	nc.Type = core.CleanString(nc.Type, true /* lower */)
	return validate.Struct(nc)
}

type UpdateCourse struct {
	Title       string  `json:"title" form:"title" validate:"omitempty,max=200"`
	Description *string `json:"description" form:"description" validate:"omitempty,max=5000"`
	Serie       string  `json:"serie" form:"serie" validate:"omitempty,oneof=A1 C D all"`
	Type        string  `json:"type" form:"type" validate:"omitempty,max=50"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	if uc.Description != nil {
		desc := core.CleanString(*uc.Description)
		uc.Description = &desc
	}
	uc.Serie = core.CleanString(uc.Serie)
	uc.Type = core.CleanString(uc.Type, true /* lower */)
	return validate.Struct(uc)
}

// Upload is a file received with a course.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

type QueryFilter struct {
	Series []string
	Type   string `query:"type"`
	Serie  string `query:"serie"`
}

type Repository interface {
	CreateCourse(ctx context.Context, c Course) (Course, error)
	GetCourse(ctx context.Context, id string) (Course, error)
	// QueryCourses returns the matching courses, newest first.
	QueryCourses(ctx context.Context, filter QueryFilter) ([]Course, error)
	UpdateCourse(ctx context.Context, c Course) (Course, error)
	DeleteCourse(ctx context.Context, id string) error
	CountCourses(ctx context.Context) (int, error)
}

type Service struct {
	repo   Repository
	files  core.FileStore
	policy *access.Policy
	logger core.Logger
}

func NewService(repo Repository, files core.FileStore, policy *access.Policy, logger core.Logger) *Service {
	return &Service{repo: repo, files: files, policy: policy, logger: logger}
}

// fileKey is unique per upload so a replacement never overwrites the file still in use.
func fileKey(courseID, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return path.Join("courses", courseID, uuid.New().String(), name)
}

func (svc *Service) Create(ctx context.Context, actor user.User, nc NewCourse, upload *Upload) (Course, error) {
	if err := svc.policy.Authorize(actor, access.ObjCourse, access.ActWrite); err != nil {
		return Course{}, err
	}

	now := NowFunc().UTC()
	c := Course{
		ID:          uuid.New().String(),
		Title:       nc.Title,
		Description: nc.Description,
		Serie:       nc.Serie,
		Type:        nc.Type,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if upload != nil {
		f, err := svc.store(ctx, c.ID, upload)
		if err != nil {
			return Course{}, err
		}
		c.File = f
	}

	created, err := svc.repo.CreateCourse(ctx, c)
	if err != nil {
		if c.File != nil {
			svc.removeFile(ctx, c.File.Key)
		}
		return Course{}, errors.Wrap(err, "creating course")
	}
	return created, nil
}

func (svc *Service) store(ctx context.Context, courseID string, upload *Upload) (*File, error) {
	f := &File{
		Key:         fileKey(courseID, upload.Name),
		Name:        path.Base(upload.Name),
		ContentType: upload.ContentType,
		Size:        upload.Size,
	}
	if f.ContentType == "" {
		f.ContentType = "application/octet-stream"
	}
	if err := svc.files.Put(ctx, f.Key, upload.Content, f.ContentType); err != nil {
		return nil, errors.Wrap(err, "storing course file")
	}
	return f, nil
}

func (svc *Service) removeFile(ctx context.Context, key string) {
	if err := svc.files.Delete(ctx, key); err != nil {
		svc.logger.Error("deleting course file", errors.Wrap(err, key))
	}
}

// Get returns the course if viewer may see it.
func (svc *Service) Get(ctx context.Context, viewer user.User, id string) (Course, error) {
	if err := svc.policy.Authorize(viewer, access.ObjCourse, access.ActRead); err != nil {
		return Course{}, err
	}
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if viewer.IsStudent() && !c.VisibleTo(viewer.Serie) {
		return Course{}, ErrNotFound
	}
	return c, nil
}

// Query lists the courses of viewer: a student gets their serie and "all", an admin everything.
func (svc *Service) Query(ctx context.Context, viewer user.User, filter QueryFilter) ([]Course, error) {
	if err := svc.policy.Authorize(viewer, access.ObjCourse, access.ActRead); err != nil {
		return nil, err
	}
	filter.Type = core.CleanString(filter.Type, true /* lower */)
	filter.Serie = core.CleanString(filter.Serie)
	filter.Series = nil
	if viewer.IsStudent() {
		filter.Series = []string{viewer.Serie, SerieAll}
		filter.Serie = ""
	} else if filter.Serie != "" {
		filter.Series = []string{filter.Serie}
	}
	courses, err := svc.repo.QueryCourses(ctx, filter)
	return courses, errors.Wrap(err, "querying courses")
}

func (svc *Service) Update(ctx context.Context, actor user.User, id string, uc UpdateCourse, upload *Upload) (Course, error) {
	if err := svc.policy.Authorize(actor, access.ObjCourse, access.ActWrite); err != nil {
		return Course{}, err
	}
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return Course{}, err
	}
	if uc.Title != "" {
		c.Title = uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Serie != "" {
		c.Serie = uc.Serie
	}
	if uc.Type != "" {
		c.Type = uc.Type
	}

	var oldKey string
	if upload != nil {
		if c.File != nil {
			oldKey = c.File.Key
		}
		f, err := svc.store(ctx, c.ID, upload)
		if err != nil {
			return Course{}, err
		}
		c.File = f
	}
	c.UpdatedAt = NowFunc().UTC()

	updated, err := svc.repo.UpdateCourse(ctx, c)
	if err != nil {
		if upload != nil {
			svc.removeFile(ctx, c.File.Key)
		}
		return Course{}, errors.Wrap(err, "updating course")
	}
	if oldKey != "" {
		svc.removeFile(ctx, oldKey)
	}
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, actor user.User, id string) error {
	if err := svc.policy.Authorize(actor, access.ObjCourse, access.ActWrite); err != nil {
		return err
	}
	c, err := svc.repo.GetCourse(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteCourse(ctx, id); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if c.File != nil {
		svc.removeFile(ctx, c.File.Key)
	}
	return nil
}

// OpenFile streams the attachment of a course visible to viewer. The caller closes the reader.
func (svc *Service) OpenFile(ctx context.Context, viewer user.User, id string) (Course, io.ReadCloser, error) {
	c, err := svc.Get(ctx, viewer, id)
	if err != nil {
		return Course{}, nil, err
	}
	if c.File == nil {
		return Course{}, nil, ErrNoFile
	}
	rc, err := svc.files.Open(ctx, c.File.Key)
	if err != nil {
		return Course{}, nil, errors.Wrap(err, "opening course file")
	}
	return c, rc, nil
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	cnt, err := svc.repo.CountCourses(ctx)
	return cnt, errors.Wrap(err, "counting courses")
}

package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/foundi/core/course"
)

type courseRow struct {
	ID              string      `db:"id"`
	Title           string      `db:"title"`
	Description     string      `db:"description"`
	Serie           string      `db:"serie"`
	Type            string      `db:"type"`
	FileKey         null.String `db:"file_key"`
	FileName        null.String `db:"file_name"`
	FileContentType null.String `db:"file_content_type"`
	FileSize        null.Int64  `db:"file_size"`
	CreatedBy       null.String `db:"created_by"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func toCourseRow(c course.Course) courseRow {
	r := courseRow{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		Serie:       c.Serie,
		Type:        c.Type,
		CreatedBy:   null.NewString(c.CreatedBy, c.CreatedBy != ""),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
	if c.File != nil {
		r.FileKey = null.StringFrom(c.File.Key)
		r.FileName = null.StringFrom(c.File.Name)
		r.FileContentType = null.StringFrom(c.File.ContentType)
		r.FileSize = null.Int64From(c.File.Size)
	}
	return r
}

func (r courseRow) course() course.Course {
	c := course.Course{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Serie:       r.Serie,
		Type:        r.Type,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.FileKey.Valid {
		c.File = &course.File{
			Key:         r.FileKey.String,
			Name:        r.FileName.String,
			ContentType: r.FileContentType.String,
			Size:        r.FileSize.Int64,
		}
	}
	return c
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	q := `INSERT INTO course (id, title, description, serie, type, file_key, file_name, file_content_type, file_size, created_by, created_at, updated_at)
		VALUES (:id, :title, :description, :serie, :type, :file_key, :file_name, :file_content_type, :file_size, :created_by, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toCourseRow(c)); err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string) (course.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM course WHERE id = $1`, id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "finding course")
	}
	return row.course(), nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter) ([]course.Course, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.Series) > 0 {
		where = append(where, "serie = ANY(?)")
		args = append(args, pq.Array(filter.Series))
	}
	if filter.Type != "" {
		where = append(where, "type = ?")
		args = append(args, filter.Type)
	}
	q := `SELECT * FROM course`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	var rows []courseRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.course())
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	q := `UPDATE course SET title = :title, description = :description, serie = :serie, type = :type,
		file_key = :file_key, file_name = :file_name, file_content_type = :file_content_type, file_size = :file_size,
		updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, toCourseRow(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM course WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo *courseRepository) CountCourses(ctx context.Context) (int, error) {
	var cnt int
	err := repo.db.GetContext(ctx, &cnt, `SELECT COUNT(*) FROM course`)
	return cnt, errors.Wrap(err, "counting courses")
}

package course_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/user"
	inmemdb "github.com/trezcool/foundi/storage/database/inmem"
	testutil "github.com/trezcool/foundi/tests"
)

func TestService(t *testing.T) {
	ctx := context.Background()
	env, err := testutil.NewEnv(core.NewTestConfig())
	require.NoError(t, err)
	defer env.Close()

	admin := testutil.CreateUser(t, env.UserRepo, "Prof", "Mbuyi", "prof@test.cd", testutil.UserOpts{Role: user.RoleAdmin})
	awa := testutil.CreateUser(t, env.UserRepo, "Awa", "Diop", "awa@test.cd", testutil.UserOpts{Serie: "A1"})
	svc := env.CourseSvc

	_, err = svc.Create(ctx, awa, course.NewCourse{Title: "x", Serie: "A1", Type: "td"}, nil)
	assert.Equal(t, core.ErrForbidden, err)

	upload := &course.Upload{Name: "../../limites.pdf", ContentType: "application/pdf", Size: 7, Content: strings.NewReader("%PDF-1.")}
	limits, err := svc.Create(ctx, admin, course.NewCourse{Title: "Limites", Serie: "A1", Type: "cours"}, upload)
	require.NoError(t, err)
	require.NotNil(t, limits.File)
	assert.Equal(t, "limites.pdf", limits.File.Name)

	_, err = svc.Create(ctx, admin, course.NewCourse{Title: "Optique", Serie: "C", Type: "cours"}, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, course.NewCourse{Title: "Examen blanc", Serie: course.SerieAll, Type: "examen"}, nil)
	require.NoError(t, err)

	titles := func(cs []course.Course) []string {
		out := make([]string, 0, len(cs))
		for _, c := range cs {
			out = append(out, c.Title)
		}
		return out
	}

	mine, err := svc.Query(ctx, awa, course.QueryFilter{Serie: "C"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Limites", "Examen blanc"}, titles(mine))

	all, err := svc.Query(ctx, admin, course.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	onlyC, err := svc.Query(ctx, admin, course.QueryFilter{Serie: "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Optique"}, titles(onlyC))
	exams, err := svc.Query(ctx, awa, course.QueryFilter{Type: "EXAMEN"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Examen blanc"}, titles(exams))

	c, rc, err := svc.OpenFile(ctx, awa, limits.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.", string(body))
	assert.Equal(t, "application/pdf", c.File.ContentType)

	optique := onlyC[0]
	_, err = svc.Get(ctx, awa, optique.ID)
	assert.True(t, core.IsNotFound(err), "another serie's course is hidden")
	_, _, err = svc.OpenFile(ctx, admin, optique.ID)
	assert.Equal(t, course.ErrNoFile, err)

	newUpload := &course.Upload{Name: "limites-v2.pdf", Content: strings.NewReader("v2")}
	updated, err := svc.Update(ctx, admin, limits.ID, course.UpdateCourse{Title: "Limites et continuité"}, newUpload)
	require.NoError(t, err)
	assert.Equal(t, "Limites et continuité", updated.Title)
	assert.Equal(t, "application/octet-stream", updated.File.ContentType)
	_, err = env.Files.Open(ctx, limits.File.Key)
	assert.True(t, core.IsNotFound(err), "the replaced file is removed")

	require.NoError(t, svc.Delete(ctx, admin, limits.ID))
	_, err = env.Files.Open(ctx, updated.File.Key)
	assert.True(t, core.IsNotFound(err))
	cnt, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)
}

var errDBDown = errors.New("database is down")

// flakyRepo fails its writes once broken is set.
type flakyRepo struct {
	course.Repository
	broken bool
}

func (r *flakyRepo) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if r.broken {
		return course.Course{}, errDBDown
	}
	return r.Repository.CreateCourse(ctx, c)
}

func (r *flakyRepo) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if r.broken {
		return course.Course{}, errDBDown
	}
	return r.Repository.UpdateCourse(ctx, c)
}

// keyRecorder remembers every key written to the store.
type keyRecorder struct {
	core.FileStore
	keys []string
}

func (s *keyRecorder) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	s.keys = append(s.keys, key)
	return s.FileStore.Put(ctx, key, r, contentType)
}

func (s *keyRecorder) last() string {
	return s.keys[len(s.keys)-1]
}

func TestService_failedWriteRemovesUpload(t *testing.T) {
	ctx := context.Background()
	env, err := testutil.NewEnv(core.NewTestConfig())
	require.NoError(t, err)
	defer env.Close()

	admin := testutil.CreateUser(t, env.UserRepo, "Prof", "Mbuyi", "prof@test.cd", testutil.UserOpts{Role: user.RoleAdmin})
	repo := &flakyRepo{Repository: inmemdb.NewCourseRepository(env.DB)}
	files := &keyRecorder{FileStore: env.Files}
	svc := course.NewService(repo, files, access.MustNewPolicy(), env.Logger)

	limits, err := svc.Create(ctx, admin, course.NewCourse{Title: "Limites", Serie: "A1", Type: "cours"},
		&course.Upload{Name: "limites.pdf", Content: strings.NewReader("v1")})
	require.NoError(t, err)

	repo.broken = true
	_, err = svc.Create(ctx, admin, course.NewCourse{Title: "Optique", Serie: "C", Type: "cours"},
		&course.Upload{Name: "optique.pdf", Content: strings.NewReader("lumière")})
	assert.ErrorIs(t, err, errDBDown)
	_, err = env.Files.Open(ctx, files.last())
	assert.True(t, core.IsNotFound(err), "the upload of a course that was not created is removed")

	// same file name: the failed replacement leaves the current file alone
	_, err = svc.Update(ctx, admin, limits.ID, course.UpdateCourse{}, &course.Upload{Name: "limites.pdf", Content: strings.NewReader("v2")})
	require.Error(t, err)
	assert.NotEqual(t, limits.File.Key, files.last())
	_, err = env.Files.Open(ctx, files.last())
	assert.True(t, core.IsNotFound(err), "the rejected replacement is removed")

	_, rc, err := svc.OpenFile(ctx, admin, limits.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "v1", string(body))
}

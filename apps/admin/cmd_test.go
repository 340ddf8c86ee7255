package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/user"
	inmemdb "github.com/trezcool/foundi/storage/database/inmem"
	"github.com/trezcool/foundi/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) (*commandLine, *bytes.Buffer) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(conf)
	policy := access.MustNewPolicy()

	db := inmemdb.Open()
	usrRepo = inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, nil, conf, logger)

	var out bytes.Buffer
	return &commandLine{
		usrRepo:   usrRepo,
		usrSvc:    usrSvc,
		courseSvc: course.NewService(inmemdb.NewCourseRepository(db), nil, policy, logger),
		chatSvc:   chat.NewService(inmemdb.NewMessageRepository(db), usrSvc, policy, nil, logger, conf),
		out:       &out,
	}, &out
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func checkErr(t *testing.T, tt cliTest, err error) {
	t.Helper()
	switch {
	case err == nil:
		if tt.wantErr != nil || tt.wantErrStr != "" {
			t.Errorf("cli.run() error = nil, wantErr %v %s", tt.wantErr, tt.wantErrStr)
		}
	case tt.wantErr != nil:
		if err != tt.wantErr {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	case tt.wantErrStr != "":
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	default:
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli, _ := setup(t)

	migrateFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "course", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli, _ := setup(t)
	ctx := context.Background()

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "unknown flag", args: []string{"adduser", "-lol"}, wantErr: errHelp},
		{name: "missing names", args: []string{"adduser", "-email", "prof@test.cd"}, extra: extra{pwd: "lol"}, wantErr: errHelp},
		{name: "no password", args: []string{"adduser", "-email", "prof@test.cd", "-first", "Prof", "-last", "Mbuyi"}, wantErr: errHelp},
		{
			name: "invalid serie", args: []string{"adduser", "-email", "awa@test.cd", "-first", "Awa", "-last", "Diop", "-serie", "B"},
			extra: extra{pwd: "lol"}, wantErrStr: "serie must be one of [A1 C D]",
		},
		{name: "admin", args: []string{"adduser", "-email", "Prof@Test.cd", "-first", "Prof", "-last", "Mbuyi", "-admin"}, extra: extra{pwd: "lol"}},
		{name: "student", args: []string{"adduser", "-email", "awa@test.cd", "-first", "Awa", "-last", "Diop", "-serie", "C", "-group", "2"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			checkErr(t, tt, cli.run(args))
		})
	}

	prof, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "prof@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, prof.Role)
	assert.True(t, prof.IsActive())
	assert.NoError(t, prof.CheckPassword("lol"))

	awa, err := usrRepo.GetUser(ctx, user.GetFilter{Email: "awa@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleStudent, awa.Role)
	assert.Equal(t, "C", awa.Serie)
	assert.Equal(t, 2, awa.Group)

	// running it again updates the same account
	mockPassword("n3w")
	require.NoError(t, cli.run([]string{"admin", "adduser", "-email", "awa@test.cd", "-first", "Awa", "-last", "Ndiaye"}))
	cnt, err := usrRepo.CountUsers(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, cnt)
	awa, err = usrRepo.GetUser(ctx, user.GetFilter{Email: "awa@test.cd"})
	require.NoError(t, err)
	assert.Equal(t, "Ndiaye", awa.LastName)
	assert.NoError(t, awa.CheckPassword("n3w"))
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, _ := setup(t)

	usr := testutil.CreateUser(t, usrRepo, "User", "Awe", "awe@test.cd")

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@test.cd"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@test.cd"}, extra: extra{pwd: "lol"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: extra{pwd: "lol"}},
		{name: "reset with mixed case email", args: []string{"resetpassword", "-email", "AWE@test.cd"}, extra: extra{pwd: "lmao"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd := ""
		if e, ok := tt.extra.(extra); ok {
			pwd = e.pwd
		}
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			checkErr(t, tt, err)
			if err == nil {
				refreshedUsr, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
				require.NoError(t, err)
				assert.NoError(t, refreshedUsr.CheckPassword(pwd))
			}
		})
	}
}

func Test_commandLine_usage(t *testing.T) {
	cli, out := setup(t)
	ctx := context.Background()

	admin := testutil.CreateUser(t, usrRepo, "Prof", "Mbuyi", "prof@test.cd", testutil.UserOpts{Role: user.RoleAdmin})
	testutil.CreateUser(t, usrRepo, "Awa", "Diop", "awa@test.cd")
	_, err := cli.courseSvc.Create(ctx, admin, course.NewCourse{Title: "Limites", Serie: "A1", Type: "cours"}, nil)
	require.NoError(t, err)

	require.NoError(t, cli.run([]string{"admin", "usage"}))
	assert.Equal(t, "users: 2\ncourses: 1\nglobal messages: 0\nprivate messages: 0\nestimated storage: 7 KB\n", out.String())
}

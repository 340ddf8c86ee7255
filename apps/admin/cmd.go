package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/portal"
	"github.com/trezcool/foundi/core/user"
	"github.com/trezcool/foundi/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	migrateFunc      = database.Migrate  // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	usrRepo   user.Repository
	usrSvc    user.Service
	courseSvc *course.Service
	chatSvc   *chat.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -first FIRST_NAME -last LAST_NAME [-admin] [-serie SERIE] [-group GROUP] - create or update an active user")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...] - run a goose migration command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  usage - print document counts and estimated storage")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

// promptPassword reads a password without echo. An empty one means the command was misused.
func (cli *commandLine) promptPassword(fs *flag.FlagSet) (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "adduser":
		cmd := cli.newFlagSet("adduser")
		email := cmd.String("email", "", "The user's email.")
		first := cmd.String("first", "", "The user's first name.")
		last := cmd.String("last", "", "The user's last name.")
		isAdmin := cmd.Bool("admin", false, "Give the user the admin role.")
		serie := cmd.String("serie", "A1", "The student's serie.")
		group := cmd.Int("group", 1, "The student's group.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *email == "" || *first == "" || *last == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(cmd)
		if err != nil {
			return err
		}
		return cli.addUser(newUserArgs{
			email:     *email,
			firstName: *first,
			lastName:  *last,
			isAdmin:   *isAdmin,
			serie:     *serie,
			group:     *group,
			password:  pwd,
		})

	case "resetpassword":
		cmd := cli.newFlagSet("resetpassword")
		email := cmd.String("email", "", "The user's email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(cmd)
		if err != nil {
			return err
		}
		return cli.resetPassword(*email, pwd)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return migrateFunc(cli.db, args[2], args[3:]...)

	case "usage":
		return cli.usage()

	default:
		cli.printUsage()
		return errHelp
	}
}

type newUserArgs struct {
	email     string
	firstName string
	lastName  string
	isAdmin   bool
	serie     string
	group     int
	password  string
}

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(a newUserArgs) error {
	ctx := context.Background()
	email := core.CleanString(a.email, true /* lower */)

	now := user.NowFunc().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		usr = user.User{Email: email, Payments: map[string]bool{}, CreatedAt: now}
	}
	usr.FirstName = core.CleanString(a.firstName)
	usr.LastName = core.CleanString(a.lastName)
	usr.Status = user.StatusActive
	usr.UpdatedAt = now
	if a.isAdmin {
		usr.Role = user.RoleAdmin
		usr.Serie = ""
	} else {
		if !core.ContainsString(user.AllSeries, a.serie) {
			return fmt.Errorf("serie must be one of %v", user.AllSeries)
		}
		if a.group < 1 {
			return errors.New("group must be 1 or greater")
		}
		usr.Role = user.RoleStudent
		usr.Serie = a.serie
		usr.Group = a.group
	}
	if err = usr.SetPassword(a.password); err != nil {
		return err
	}
	if _, err = cli.usrRepo.UpdateOrCreateUser(ctx, usr); err != nil {
		return pkgerrors.Wrap(err, "saving user")
	}
	return nil
}

func (cli *commandLine) resetPassword(email, pwd string) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = user.NowFunc().UTC()
	if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}

func (cli *commandLine) usage() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	u, err := portal.MeasureUsage(ctx, cli.usrSvc, cli.courseSvc, cli.chatSvc)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "users: %d\n", u.Users)
	fmt.Fprintf(cli.out, "courses: %d\n", u.Courses)
	fmt.Fprintf(cli.out, "global messages: %d\n", u.GlobalMessages)
	fmt.Fprintf(cli.out, "private messages: %d\n", u.PrivateMessages)
	fmt.Fprintf(cli.out, "estimated storage: %d KB\n", u.EstimatedKB)
	return nil
}

// Package testutil wires the in-memory stack used by the test suites.
package testutil

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/payment"
	"github.com/trezcool/foundi/core/planning"
	"github.com/trezcool/foundi/core/user"
	emailsvc "github.com/trezcool/foundi/services/email"
	logsvc "github.com/trezcool/foundi/services/logger"
	"github.com/trezcool/foundi/services/pubsub"
	blobstore "github.com/trezcool/foundi/storage/blob"
	inmemdb "github.com/trezcool/foundi/storage/database/inmem"
)

// Env is a fully wired in-memory application.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Policy     *access.Policy

	DB       *inmemdb.DB
	UserRepo user.Repository
	Files    *blobstore.Store
	Broker   *pubsub.Hub

	UserSvc     user.Service
	PaymentSvc  *payment.Service
	CourseSvc   *course.Service
	PlanningSvc *planning.Service
	ChatSvc     *chat.Service
}

// NewLogger returns a logger that reports nowhere.
func NewLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	logger.Enable(false)
	return logger
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewEnv builds the in-memory stack. Close the broker and the file store when done.
func NewEnv(conf *core.Config) (*Env, error) {
	logger := NewLogger(conf)

	validate := validator.New()
	translator := NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(logger)

	files, err := blobstore.Open(context.Background(), conf.BucketURL)
	if err != nil {
		return nil, err
	}

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	policy := access.MustNewPolicy()
	broker := pubsub.NewHub()

	usrSvc := user.NewServiceMock(usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf, logger)
	return &Env{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		Policy:      policy,
		DB:          db,
		UserRepo:    usrRepo,
		Files:       files,
		Broker:      broker,
		UserSvc:     usrSvc,
		PaymentSvc:  payment.NewService(inmemdb.NewPaymentRepository(db), usrSvc, policy, conf),
		CourseSvc:   course.NewService(inmemdb.NewCourseRepository(db), files, policy, logger),
		PlanningSvc: planning.NewService(inmemdb.NewPlanningRepository(db), policy),
		ChatSvc:     chat.NewService(inmemdb.NewMessageRepository(db), usrSvc, policy, broker, logger, conf),
	}, nil
}

func (env *Env) Close() {
	_ = env.Broker.Close()
	_ = env.Files.Close()
}

// ResetDB empties every table and the sent mails.
func (env *Env) ResetDB() {
	env.DB.Flush()
	emailsvc.ResetSentMessages()
}

// UserOpts are the optional attributes of CreateUser.
type UserOpts struct {
	Password  string
	Role      string // student by default
	Status    string // active by default
	Serie     string // A1 by default
	Group     int    // 1 by default
	CreatedAt time.Time
}

func CreateUser(t *testing.T, repo user.Repository, firstName, lastName, email string, opts ...UserOpts) user.User {
	t.Helper()

	var o UserOpts
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Role == "" {
		o.Role = user.RoleStudent
	}
	if o.Status == "" {
		o.Status = user.StatusActive
	}
	if o.Serie == "" {
		o.Serie = "A1"
	}
	if o.Group == 0 {
		o.Group = 1
	}
	tstamp := time.Now().UTC()
	if !o.CreatedAt.IsZero() {
		tstamp = o.CreatedAt.UTC()
	}

	usr := user.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Role:      o.Role,
		Status:    o.Status,
		Serie:     o.Serie,
		Group:     o.Group,
		Payments:  map[string]bool{},
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if o.Password != "" {
		if err := usr.SetPassword(o.Password); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	echoapi "github.com/trezcool/foundi/apps/api/echo"
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
	"github.com/trezcool/foundi/storage/database"
	inmemdb "github.com/trezcool/foundi/storage/database/inmem"
	"github.com/trezcool/foundi/storage/database/sqlxrepos"
)

// repositories is the storage backend selected by database.engine.
type repositories struct {
	user     user.Repository
	payment  payment.Repository
	course   course.Repository
	planning planning.Repository
	message  chat.Repository
	close    func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	ctx := context.Background()

	// set up storage
	repos, err := setUpRepositories(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = repos.close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	files, err := blobstore.Open(ctx, conf.BucketURL)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}
	defer func() { _ = files.Close() }()

	broker, closeBroker, err := setUpBroker(ctx, conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up feed broker: %v", err), err)
	}
	defer func() {
		if err := closeBroker(); err != nil {
			logger.Error(fmt.Sprintf("closing feed broker: %v", err), err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	policy, err := access.NewPolicy()
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading access policy: %v", err), err)
	}
	usrSvc := user.NewService(repos.user, mailSvc, conf, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:        conf,
			Logger:      logger,
			Policy:      policy,
			UserSvc:     usrSvc,
			PaymentSvc:  payment.NewService(repos.payment, usrSvc, policy, conf),
			CourseSvc:   course.NewService(repos.course, files, policy, logger),
			PlanningSvc: planning.NewService(repos.planning, policy),
			ChatSvc:     chat.NewService(repos.message, usrSvc, policy, broker, logger, conf),
			Broker:      broker,
			Validate:    validate,
			Translator:  translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpRepositories(conf *core.Config) (*repositories, error) {
	if conf.Database.Engine == "memory" {
		db := inmemdb.Open()
		return &repositories{
			user:     inmemdb.NewUserRepository(db),
			payment:  inmemdb.NewPaymentRepository(db),
			course:   inmemdb.NewCourseRepository(db),
			planning: inmemdb.NewPlanningRepository(db),
			message:  inmemdb.NewMessageRepository(db),
			close:    func() error { return nil },
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return nil, err
	}
	return &repositories{
		user:     sqlxrepos.NewUserRepository(db),
		payment:  sqlxrepos.NewPaymentRepository(db),
		course:   sqlxrepos.NewCourseRepository(db),
		planning: sqlxrepos.NewPlanningRepository(db),
		message:  sqlxrepos.NewMessageRepository(db),
		close:    db.Close,
	}, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// setUpBroker shares the feed through Redis when configured, in process otherwise.
// The returned func stops the broker and releases its connections.
func setUpBroker(ctx context.Context, conf *core.Config, logger core.Logger) (pubsub.Broker, func() error, error) {
	if conf.RedisURL == "" {
		hub := pubsub.NewHub()
		return hub, hub.Close, nil
	}
	cli, err := pubsub.NewRedisClient(ctx, conf.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	broker, err := pubsub.NewRedisBroker(ctx, cli, logger)
	if err != nil {
		_ = cli.Close()
		return nil, nil, errors.Wrap(err, "starting redis broker")
	}
	return broker, brokerCloser(broker, cli), nil
}

// brokerCloser closes broker first so its relay stops before cli goes away.
func brokerCloser(broker pubsub.Broker, cli *redis.Client) func() error {
	return func() error {
		err := broker.Close()
		if cErr := cli.Close(); err == nil {
			err = errors.Wrap(cErr, "closing redis client")
		}
		return err
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/chat"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/user"
	logsvc "github.com/trezcool/foundi/services/logger"
	"github.com/trezcool/foundi/storage/database"
	"github.com/trezcool/foundi/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// start CLI
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, nil, conf, logger)
	policy := access.MustNewPolicy()
	cli := commandLine{
		db:        db.DB,
		usrRepo:   usrRepo,
		usrSvc:    usrSvc,
		courseSvc: course.NewService(sqlxrepos.NewCourseRepository(db), nil, policy, logger),
		chatSvc:   chat.NewService(sqlxrepos.NewMessageRepository(db), usrSvc, policy, nil, logger, conf),
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	if err != nil && err != errHelp {
		logger.Error(fmt.Sprintf("error: %v", err), err)
	}
	_ = db.Close()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

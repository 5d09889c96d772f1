package dig_container

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/proleap/backend/apps/api/echo"
	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
	logsvc "github.com/proleap/backend/services/logger"
	"github.com/proleap/backend/storage/database"
	inmemdb "github.com/proleap/backend/storage/database/inmem"
	sqlxrepos "github.com/proleap/backend/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// DBCloser releases the storage engine.
type DBCloser func() error

// Storage is every repository of the configured engine.
type Storage struct {
	dig.Out

	Users    user.Repository
	Content  course.Repositories
	Answers  core.Repository[answer.Answer]
	Progress progress.Repository
	Tx       core.TxRunner
	Close    DBCloser
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Engine == core.EngineMemory {
		loggerParam.Logger.Info("using the in-memory database")
		db := inmemdb.Open()
		return Storage{
			Users:    inmemdb.NewUserRepository(db),
			Content:  inmemdb.NewContentRepositories(db),
			Answers:  inmemdb.NewAnswerRepository(db),
			Progress: inmemdb.NewProgressRepository(db),
			Tx:       db,
			Close:    func() error { return nil },
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return Storage{
		Users:    sqlxrepos.NewUserRepository(db),
		Content:  sqlxrepos.NewContentRepositories(db),
		Answers:  sqlxrepos.NewAnswerRepository(db),
		Progress: sqlxrepos.NewProgressRepository(db),
		Tx:       database.NewTxRunner(db),
		Close:    db.Close,
	}
}

func newAnswerService(
	repo core.Repository[answer.Answer],
	content course.Repositories,
	users *user.Service,
	tx core.TxRunner,
) *answer.Service {
	return answer.NewService(repo, content.Questions, content.Options, users, tx)
}

func newProgressService(
	repo progress.Repository,
	users *user.Service,
	content *course.Service,
	answers *answer.Service,
) *progress.Service {
	return progress.NewService(repo, users, content, answers)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type serverParams struct {
	dig.In

	Conf        *core.Config
	Logger      core.Logger
	UserSvc     *user.Service
	ContentSvc  *course.Service
	AnswerSvc   *answer.Service
	ProgressSvc *progress.Service
	Validate    *validator.Validate
	Translator  ut.Translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		UserSvc:     p.UserSvc,
		ContentSvc:  p.ContentSvc,
		AnswerSvc:   p.AnswerSvc,
		ProgressSvc: p.ProgressSvc,
		Validate:    p.Validate,
		Translator:  p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(newAnswerService))
	must(c.Provide(newProgressService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

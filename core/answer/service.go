package answer

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/user"
)

var errNothingToAnswer = core.NewValidationError(nil, core.FieldError{
	Field: "answer",
	Error: "one of answer, option or options is required",
})

type UserGetter interface {
	GetByID(ctx context.Context, id int) (user.User, error)
}

type Service struct {
	*core.CRUDService[Answer]

	repo      core.Repository[Answer]
	questions core.Repository[course.Question]
	options   core.Repository[course.Option]
	users     UserGetter
	tx        core.TxRunner
}

func NewService(
	repo core.Repository[Answer],
	questions core.Repository[course.Question],
	options core.Repository[course.Option],
	users UserGetter,
	tx core.TxRunner,
) *Service {
	svc := &Service{
		repo:      repo,
		questions: questions,
		options:   options,
		users:     users,
		tx:        tx,
	}
	svc.CRUDService = core.NewCRUDService[Answer](repo, svc.checkOption)
	return svc
}

// checkOption guards updates: a chosen option must exist and belong to the answered question.
func (svc *Service) checkOption(ctx context.Context, a Answer) error {
	if !a.OptionID.Valid {
		return nil
	}
	opt, err := svc.options.Get(ctx, a.OptionID.Int)
	if err != nil {
		return errors.Wrap(err, "getting option")
	}
	return belongs(opt, a.QuestionID, "option")
}

func belongs(opt course.Option, questionID int, field string) error {
	if opt.QuestionID != questionID {
		return core.NewValidationError(nil, core.FieldError{
			Field: field,
			Error: fmt.Sprintf("option %d does not belong to question %d", opt.ID, questionID),
		})
	}
	return nil
}

// Submit stores a submission. Options fan out to one Answer each, all or none.
func (svc *Service) Submit(ctx context.Context, sub Submission) (Result, error) {
	if sub.Answer == nil && sub.Option == nil && len(sub.Options) == 0 {
		return Result{}, errNothingToAnswer
	}
	if _, err := svc.users.GetByID(ctx, sub.User); err != nil {
		return Result{}, errors.Wrap(err, "getting user")
	}

	var res Result
	err := svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		q, err := svc.questions.Get(ctx, sub.Question, exec)
		if err != nil {
			return errors.Wrap(err, "getting question")
		}

		now := core.NowUTC()
		base := Answer{
			Answer:     sub.text(),
			UserID:     sub.User,
			QuestionID: q.ID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if len(sub.Options) > 0 {
			opts, err := svc.options.Query(ctx, core.Where{"id": sub.Options}, nil, exec)
			if err != nil {
				return errors.Wrap(err, "querying options")
			}
			found := make(map[int]course.Option, len(opts))
			for _, o := range opts {
				found[o.ID] = o
			}

			rows := make([]Answer, 0, len(sub.Options))
			for _, id := range sub.Options {
				opt, ok := found[id]
				if !ok {
					return core.NewNotFoundError("option", fmt.Sprintf("option %d not found", id))
				}
				if err = belongs(opt, q.ID, "options"); err != nil {
					return err
				}
				row := base
				row.OptionID = null.IntFrom(opt.ID)
				rows = append(rows, row)
			}

			created, err := svc.repo.CreateMany(ctx, rows, exec)
			if err != nil {
				return errors.Wrap(err, "creating answers")
			}
			res = Many(created)
			return nil
		}

		if sub.Option != nil {
			opt, err := svc.options.Get(ctx, *sub.Option, exec)
			if err != nil {
				return errors.Wrap(err, "getting option")
			}
			if err = belongs(opt, q.ID, "option"); err != nil {
				return err
			}
			base.OptionID = null.IntFrom(opt.ID)
		}

		created, err := svc.repo.Create(ctx, base, exec)
		if err != nil {
			return errors.Wrap(err, "creating answer")
		}
		res = Single(created)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// AnswersOf returns the user's answers to the given questions, oldest first.
func (svc *Service) AnswersOf(ctx context.Context, userID int, questionIDs []int) ([]Answer, error) {
	return svc.repo.Query(ctx, core.Where{"user_id": userID, "question_id": questionIDs}, nil)
}

package progress

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
)

type (
	ActivityProgress struct {
		course.Activity
		Progress *Record `json:"user_activity_progress,omitempty"`
	}

	BatchReport struct {
		CurrentActivityID int                `json:"current_activity_id"`
		Activities        []ActivityProgress `json:"activities"`
	}

	QuestionProgress struct {
		course.Question
		Options []course.Option `json:"options,omitempty"`
		Answers []answer.Answer `json:"answers"`
	}

	CardProgress struct {
		course.Card
		Progress  *Record            `json:"user_card_progress,omitempty"`
		Questions []QuestionProgress `json:"questions"`
	}

	ActivityReport struct {
		RecentCardID int            `json:"recent_card_id"`
		Cards        []CardProgress `json:"cards"`
	}
)

// creationOrder returns ids sorted by (createdAt, id).
func creationOrder(ids []int, createdAt map[int]int64) []int {
	out := append([]int(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := createdAt[out[i]], createdAt[out[j]]
		if ci != cj {
			return ci < cj
		}
		return out[i] < out[j]
	})
	return out
}

func indexRecords(recs []Record) map[int]*Record {
	idx := make(map[int]*Record, len(recs))
	for i := range recs {
		idx[recs[i].ContainerID] = &recs[i]
	}
	return idx
}

// BatchReport returns the batch's activities in sequence order with the user's progress on each,
// and the activity the user should resume on.
func (svc *Service) BatchReport(ctx context.Context, userID, batchID int) (BatchReport, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return BatchReport{}, errors.Wrap(err, "getting user")
	}
	if _, err := svc.content.Batches.Get(ctx, batchID); err != nil {
		return BatchReport{}, errors.Wrap(err, "getting batch")
	}

	acts, err := svc.content.ActivitiesOf(ctx, batchID)
	if err != nil {
		return BatchReport{}, errors.Wrap(err, "querying activities")
	}
	if len(acts) == 0 {
		return BatchReport{}, core.NewNotFoundError("activity", "no activities found for this batch")
	}

	ids := make([]int, len(acts))
	createdAt := make(map[int]int64, len(acts))
	for i, a := range acts {
		ids[i] = a.ID
		createdAt[a.ID] = a.CreatedAt.UnixNano()
	}

	recs, err := svc.repo.Query(ctx, LevelActivity, Filter{UserID: userID, ContainerIDs: ids}, nil)
	if err != nil {
		return BatchReport{}, errors.Wrap(err, "querying activity progress")
	}
	byActivity := indexRecords(recs)

	current, _, err := svc.resumePoint(ctx, LevelActivity, userID, creationOrder(ids, createdAt))
	if err != nil {
		return BatchReport{}, err
	}

	report := BatchReport{CurrentActivityID: current, Activities: make([]ActivityProgress, len(acts))}
	for i, a := range acts {
		report.Activities[i] = ActivityProgress{Activity: a, Progress: byActivity[a.ID]}
	}
	return report, nil
}

// ActivityReport returns the activity's cards in sequence order with the user's progress on each, their questions,
// options & the user's answers, and the card the user should resume on.
func (svc *Service) ActivityReport(ctx context.Context, userID, activityID int) (ActivityReport, error) {
	if _, err := svc.users.GetByID(ctx, userID); err != nil {
		return ActivityReport{}, errors.Wrap(err, "getting user")
	}
	if _, err := svc.content.Activities.Get(ctx, activityID); err != nil {
		return ActivityReport{}, errors.Wrap(err, "getting activity")
	}

	cards, err := svc.content.CardsOf(ctx, activityID)
	if err != nil {
		return ActivityReport{}, errors.Wrap(err, "querying cards")
	}
	if len(cards) == 0 {
		return ActivityReport{}, core.NewNotFoundError("card", "no cards found for this activity")
	}

	cardIDs := make([]int, len(cards))
	createdAt := make(map[int]int64, len(cards))
	for i, c := range cards {
		cardIDs[i] = c.ID
		createdAt[c.ID] = c.CreatedAt.UnixNano()
	}

	recs, err := svc.repo.Query(ctx, LevelCard, Filter{UserID: userID, ContainerIDs: cardIDs}, nil)
	if err != nil {
		return ActivityReport{}, errors.Wrap(err, "querying card progress")
	}
	byCard := indexRecords(recs)

	questions, err := svc.content.QuestionsOf(ctx, cardIDs)
	if err != nil {
		return ActivityReport{}, errors.Wrap(err, "querying questions")
	}
	qIDs := make([]int, len(questions))
	for i, q := range questions {
		qIDs[i] = q.ID
	}

	optsByQuestion := make(map[int][]course.Option)
	ansByQuestion := make(map[int][]answer.Answer)
	if len(qIDs) > 0 {
		opts, err := svc.content.OptionsOf(ctx, qIDs)
		if err != nil {
			return ActivityReport{}, errors.Wrap(err, "querying options")
		}
		for _, o := range opts {
			optsByQuestion[o.QuestionID] = append(optsByQuestion[o.QuestionID], o)
		}

		answers, err := svc.answers.AnswersOf(ctx, userID, qIDs)
		if err != nil {
			return ActivityReport{}, errors.Wrap(err, "querying answers")
		}
		for _, a := range answers {
			ansByQuestion[a.QuestionID] = append(ansByQuestion[a.QuestionID], a)
		}
	}

	qsByCard := make(map[int][]QuestionProgress, len(cards))
	for _, q := range questions {
		ans := ansByQuestion[q.ID]
		if ans == nil {
			ans = []answer.Answer{}
		}
		qsByCard[q.CardID] = append(qsByCard[q.CardID], QuestionProgress{
			Question: q,
			Options:  optsByQuestion[q.ID],
			Answers:  ans,
		})
	}

	recent, _, err := svc.resumePoint(ctx, LevelCard, userID, creationOrder(cardIDs, createdAt))
	if err != nil {
		return ActivityReport{}, err
	}

	report := ActivityReport{RecentCardID: recent, Cards: make([]CardProgress, len(cards))}
	for i, c := range cards {
		qs := qsByCard[c.ID]
		if qs == nil {
			qs = []QuestionProgress{}
		}
		report.Cards[i] = CardProgress{Card: c, Progress: byCard[c.ID], Questions: qs}
	}
	return report, nil
}

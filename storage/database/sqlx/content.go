package sqlxrepos

import (
	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
)

func NewBatchRepository(db core.DB) core.Repository[course.Batch] {
	return newTable[course.Batch](db, "batches", "batch")
}

func NewActivityRepository(db core.DB) core.Repository[course.Activity] {
	return newTable[course.Activity](db, "activities", "activity")
}

func NewCardRepository(db core.DB) core.Repository[course.Card] {
	return newTable[course.Card](db, "cards", "card")
}

func NewQuestionRepository(db core.DB) core.Repository[course.Question] {
	return newTable[course.Question](db, "questions", "question")
}

func NewOptionRepository(db core.DB) core.Repository[course.Option] {
	return newTable[course.Option](db, "options", "option")
}

// NewContentRepositories wires the repositories of the whole content tree.
func NewContentRepositories(db core.DB) course.Repositories {
	return course.Repositories{
		Batches:    NewBatchRepository(db),
		Activities: NewActivityRepository(db),
		Cards:      NewCardRepository(db),
		Questions:  NewQuestionRepository(db),
		Options:    NewOptionRepository(db),
	}
}

func NewAnswerRepository(db core.DB) core.Repository[answer.Answer] {
	return newTable[answer.Answer](db, "answers", "answer")
}

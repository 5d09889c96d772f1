package inmemdb

import (
	"context"
	"sync"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/progress"
	"github.com/proleap/backend/core/user"
)

// DB is a process-local store used for development and tests.
// It enforces the unique constraints and delete cascades of the SQL schema, but not foreign keys on insert.
type DB struct {
	txMu sync.Mutex

	users      *table[user.User]
	batches    *table[course.Batch]
	activities *table[course.Activity]
	cards      *table[course.Card]
	questions  *table[course.Question]
	options    *table[course.Option]
	answers    *table[answer.Answer]
	progress   map[progress.Level]*progressTable
}

var _ core.TxRunner = (*DB)(nil)

func Open() *DB {
	db := &DB{
		users:      newTable[user.User]("user", []string{"email"}, []string{"username"}),
		batches:    newTable[course.Batch]("batch"),
		activities: newTable[course.Activity]("activity", []string{"batch_id", "sequence_no"}),
		cards:      newTable[course.Card]("card", []string{"activity_id", "sequence_no"}),
		questions:  newTable[course.Question]("question", []string{"card_id", "sequence_no"}),
		options:    newTable[course.Option]("option", []string{"question_id", "sequence_no"}),
		answers:    newTable[answer.Answer]("answer"),
		progress: map[progress.Level]*progressTable{
			progress.LevelBatch:    newProgressTable(progress.LevelBatch),
			progress.LevelActivity: newProgressTable(progress.LevelActivity),
			progress.LevelCard:     newProgressTable(progress.LevelCard),
		},
	}
	db.cascade()
	return db
}

// cascade mirrors the ON DELETE CASCADE clauses of the migrations.
func (db *DB) cascade() {
	dropProgress := func(level progress.Level, pred func(id int) func(progress.Record) bool) func(int) {
		return func(id int) { db.progress[level].deleteWhere(pred(id)) }
	}
	ofUser := func(id int) func(progress.Record) bool {
		return func(rec progress.Record) bool { return rec.UserID == id }
	}
	ofContainer := func(id int) func(progress.Record) bool {
		return func(rec progress.Record) bool { return rec.ContainerID == id }
	}

	db.users.onDelete(func(id int) { db.answers.deleteBy("user_id", id) })
	for _, level := range progress.Levels {
		db.users.onDelete(dropProgress(level, ofUser))
	}

	db.batches.onDelete(func(id int) { db.activities.deleteBy("batch_id", id) })
	db.batches.onDelete(dropProgress(progress.LevelBatch, ofContainer))

	db.activities.onDelete(func(id int) { db.cards.deleteBy("activity_id", id) })
	db.activities.onDelete(dropProgress(progress.LevelActivity, ofContainer))

	db.cards.onDelete(func(id int) { db.questions.deleteBy("card_id", id) })
	db.cards.onDelete(dropProgress(progress.LevelCard, ofContainer))

	db.questions.onDelete(func(id int) { db.options.deleteBy("question_id", id) })
	db.questions.onDelete(func(id int) { db.answers.deleteBy("question_id", id) })

	db.options.onDelete(func(id int) { db.answers.deleteBy("option_id", id) })
}

// RunInTx serializes transactions. Writes are not rolled back, so fn must validate before writing.
func (db *DB) RunInTx(_ context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	return fn(nil)
}

func NewContentRepositories(db *DB) course.Repositories {
	return course.Repositories{
		Batches:    db.batches,
		Activities: db.activities,
		Cards:      db.cards,
		Questions:  db.questions,
		Options:    db.options,
	}
}

func NewAnswerRepository(db *DB) core.Repository[answer.Answer] {
	return db.answers
}

package progress

import (
	"encoding/json"
	"time"
)

// Status of a user on a batch, activity or card.
type Status string

const (
	NotAttempted Status = "NOT_ATTEMPTED"
	InProgress   Status = "IN_PROGRESS"
	Completed    Status = "COMPLETED"
)

func (s Status) Valid() bool {
	switch s {
	case NotAttempted, InProgress, Completed:
		return true
	}
	return false
}

// Level is the kind of container a Record tracks.
type Level string

const (
	LevelBatch    Level = "batch"    // UserBatch
	LevelActivity Level = "activity" // UserActivity
	LevelCard     Level = "card"     // UserCard
)

var Levels = []Level{LevelBatch, LevelActivity, LevelCard}

// Key is the natural key of a Record.
type Key struct {
	UserID      int
	ContainerID int
}

// Record is the progress of a user on a container (UserBatch, UserActivity or UserCard).
// Completed counts the completed children: activities, cards or questions.
type Record struct {
	Level       Level     `db:"-"`
	ID          int       `db:"id"`
	UserID      int       `db:"user_id"`
	ContainerID int       `db:"container_id"`
	Completed   int       `db:"completed"`
	IsCompleted bool      `db:"is_completed"` // batches only
	Status      Status    `db:"status"`
	CreatedAt   time.Time `db:"created_at"` // UTC
	UpdatedAt   time.Time `db:"updated_at"` // UTC; bumped on every write
}

func (r Record) Key() Key {
	return Key{UserID: r.UserID, ContainerID: r.ContainerID}
}

type (
	userBatchJSON struct {
		ID                  int       `json:"id"`
		UserID              int       `json:"user_id"`
		BatchID             int       `json:"batch_id"`
		CompletedActivities int       `json:"completed_activities"`
		IsCompleted         bool      `json:"is_completed"`
		Status              Status    `json:"status"`
		CreatedAt           time.Time `json:"created_at"`
		UpdatedAt           time.Time `json:"updated_at"`
	}

	userActivityJSON struct {
		ID             int       `json:"id"`
		UserID         int       `json:"user_id"`
		ActivityID     int       `json:"activity_id"`
		CompletedCards int       `json:"completed_cards"`
		Status         Status    `json:"status"`
		CreatedAt      time.Time `json:"created_at"`
		UpdatedAt      time.Time `json:"updated_at"`
	}

	userCardJSON struct {
		ID                 int       `json:"id"`
		UserID             int       `json:"user_id"`
		CardID             int       `json:"card_id"`
		CompletedQuestions int       `json:"completed_questions"`
		Status             Status    `json:"status"`
		CreatedAt          time.Time `json:"created_at"`
		UpdatedAt          time.Time `json:"updated_at"`
	}
)

// MarshalJSON names the container and counter after the level.
func (r Record) MarshalJSON() ([]byte, error) {
	switch r.Level {
	case LevelActivity:
		return json.Marshal(userActivityJSON{
			ID: r.ID, UserID: r.UserID, ActivityID: r.ContainerID, CompletedCards: r.Completed,
			Status: r.Status, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	case LevelCard:
		return json.Marshal(userCardJSON{
			ID: r.ID, UserID: r.UserID, CardID: r.ContainerID, CompletedQuestions: r.Completed,
			Status: r.Status, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	default:
		return json.Marshal(userBatchJSON{
			ID: r.ID, UserID: r.UserID, BatchID: r.ContainerID, CompletedActivities: r.Completed,
			IsCompleted: r.IsCompleted, Status: r.Status, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
		})
	}
}

// Patch holds the mutable fields of a Record; nil fields are left untouched.
type Patch struct {
	Completed   *int
	IsCompleted *bool
	Status      *Status
}

// ApplyTo returns rec with the patch applied.
func (p Patch) ApplyTo(rec Record) Record {
	if p.Completed != nil {
		rec.Completed = *p.Completed
	}
	if p.IsCompleted != nil && rec.Level == LevelBatch {
		rec.IsCompleted = *p.IsCompleted
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	return rec
}

// Filter selects records; zero fields do not filter.
type Filter struct {
	UserID       int
	ContainerID  int
	ContainerIDs []int // nil: no filter, empty: nothing
}

package progress

// Input is the payload of a UserBatch, UserActivity or UserCard write.
type Input interface {
	// Key returns the user and container ids carried by the payload, nil when absent.
	Key() (userID, containerID *int)
	Patch() Patch
}

// NewInput returns an empty payload for the level, ready to be bound.
func NewInput(level Level) Input {
	switch level {
	case LevelActivity:
		return new(UserActivityInput)
	case LevelCard:
		return new(UserCardInput)
	default:
		return new(UserBatchInput)
	}
}

type UserBatchInput struct {
	UserID              *int    `json:"user_id" validate:"omitempty,gt=0"`
	BatchID             *int    `json:"batch_id" validate:"omitempty,gt=0"`
	CompletedActivities *int    `json:"completed_activities" validate:"omitempty,min=0"`
	IsCompleted         *bool   `json:"is_completed"`
	Status              *Status `json:"status" validate:"omitempty,oneof=NOT_ATTEMPTED IN_PROGRESS COMPLETED"`
}

func (in *UserBatchInput) Key() (*int, *int) { return in.UserID, in.BatchID }

func (in *UserBatchInput) Patch() Patch {
	return Patch{Completed: in.CompletedActivities, IsCompleted: in.IsCompleted, Status: in.Status}
}

type UserActivityInput struct {
	UserID         *int    `json:"user_id" validate:"omitempty,gt=0"`
	ActivityID     *int    `json:"activity_id" validate:"omitempty,gt=0"`
	CompletedCards *int    `json:"completed_cards" validate:"omitempty,min=0"`
	Status         *Status `json:"status" validate:"omitempty,oneof=NOT_ATTEMPTED IN_PROGRESS COMPLETED"`
}

func (in *UserActivityInput) Key() (*int, *int) { return in.UserID, in.ActivityID }

func (in *UserActivityInput) Patch() Patch {
	return Patch{Completed: in.CompletedCards, Status: in.Status}
}

type UserCardInput struct {
	UserID             *int    `json:"user_id" validate:"omitempty,gt=0"`
	CardID             *int    `json:"card_id" validate:"omitempty,gt=0"`
	CompletedQuestions *int    `json:"completed_questions" validate:"omitempty,min=0"`
	Status             *Status `json:"status" validate:"omitempty,oneof=NOT_ATTEMPTED IN_PROGRESS COMPLETED"`
}

func (in *UserCardInput) Key() (*int, *int) { return in.UserID, in.CardID }

func (in *UserCardInput) Patch() Patch {
	return Patch{Completed: in.CompletedQuestions, Status: in.Status}
}

// containerField is the JSON name of the container id of a level.
func containerField(level Level) string {
	switch level {
	case LevelActivity:
		return "activity_id"
	case LevelCard:
		return "card_id"
	default:
		return "batch_id"
	}
}

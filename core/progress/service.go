package progress

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/proleap/backend/core"
	"github.com/proleap/backend/core/answer"
	"github.com/proleap/backend/core/course"
	"github.com/proleap/backend/core/user"
)

var ByLatestUpdate = []core.DBOrdering{{Field: "updated_at"}, {Field: "id", Ascending: true}}

type Repository interface {
	// Upsert atomically creates the record of key (NOT_ATTEMPTED, nothing completed) unless it exists,
	// then applies patch and stamps updated_at with now.
	Upsert(ctx context.Context, level Level, key Key, patch Patch, now time.Time) (Record, error)
	Get(ctx context.Context, level Level, id int) (Record, error)
	// Query accepts the orderings id, user_id, container_id, completed, status, created_at & updated_at.
	Query(ctx context.Context, level Level, filter Filter, ordering []core.DBOrdering) ([]Record, error)
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, level Level, id int) error
	// LatestTouched returns the user's most recently updated record among containerIDs;
	// ties go to the lowest container id.
	LatestTouched(ctx context.Context, level Level, userID int, containerIDs []int) (Record, bool, error)
}

type UserGetter interface {
	GetByID(ctx context.Context, id int) (user.User, error)
}

type Service struct {
	repo    Repository
	users   UserGetter
	content *course.Service
	answers *answer.Service
}

func NewService(repo Repository, users UserGetter, content *course.Service, answers *answer.Service) *Service {
	return &Service{repo: repo, users: users, content: content, answers: answers}
}

func (svc *Service) containerExists(ctx context.Context, level Level, id int) error {
	var err error
	switch level {
	case LevelBatch:
		_, err = svc.content.Batches.Get(ctx, id)
	case LevelActivity:
		_, err = svc.content.Activities.Get(ctx, id)
	case LevelCard:
		_, err = svc.content.Cards.Get(ctx, id)
	default:
		return errors.Errorf("unknown level %q", level)
	}
	return err
}

func validatePatch(level Level, patch Patch) error {
	var flds []core.FieldError
	if patch.Completed != nil && *patch.Completed < 0 {
		flds = append(flds, core.FieldError{Field: "completed", Error: "must be 0 or greater"})
	}
	if patch.Status != nil && !patch.Status.Valid() {
		flds = append(flds, core.FieldError{Field: "status", Error: "invalid status"})
	}
	if patch.IsCompleted != nil && level != LevelBatch {
		flds = append(flds, core.FieldError{Field: "is_completed", Error: "only batches can be flagged completed"})
	}
	if flds != nil {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// Upsert records the user's progress on a container, creating the record on first write.
// Repeating the same call leaves a single record.
func (svc *Service) Upsert(ctx context.Context, level Level, key Key, patch Patch) (Record, error) {
	if err := validatePatch(level, patch); err != nil {
		return Record{}, err
	}
	if _, err := svc.users.GetByID(ctx, key.UserID); err != nil {
		return Record{}, errors.Wrap(err, "getting user")
	}
	if err := svc.containerExists(ctx, level, key.ContainerID); err != nil {
		return Record{}, errors.Wrapf(err, "getting %s", level)
	}
	rec, err := svc.repo.Upsert(ctx, level, key, patch, core.NowUTC())
	return rec, errors.Wrapf(err, "upserting %s progress", level)
}

// UpsertInput is Upsert for a bound payload; the user and container ids are required.
func (svc *Service) UpsertInput(ctx context.Context, level Level, in Input) (Record, error) {
	userID, containerID := in.Key()
	var flds []core.FieldError
	if userID == nil {
		flds = append(flds, core.FieldError{Field: "user_id", Error: "this field is required"})
	}
	if containerID == nil {
		flds = append(flds, core.FieldError{Field: containerField(level), Error: "this field is required"})
	}
	if flds != nil {
		return Record{}, core.NewValidationError(nil, flds...)
	}
	return svc.Upsert(ctx, level, Key{UserID: *userID, ContainerID: *containerID}, in.Patch())
}

func (svc *Service) Get(ctx context.Context, level Level, id int) (Record, error) {
	return svc.repo.Get(ctx, level, id)
}

func (svc *Service) Query(ctx context.Context, level Level, filter Filter, ordering []core.DBOrdering) ([]Record, error) {
	return svc.repo.Query(ctx, level, filter, ordering)
}

// Update applies the payload to the record id. The user and container of a record never change.
func (svc *Service) Update(ctx context.Context, level Level, id int, in Input) (Record, error) {
	rec, err := svc.repo.Get(ctx, level, id)
	if err != nil {
		return Record{}, errors.Wrapf(err, "getting %s progress", level)
	}

	userID, containerID := in.Key()
	if userID != nil && *userID != rec.UserID {
		return Record{}, core.NewConflictError("user_id", "the user of a progress record cannot be changed")
	}
	if containerID != nil && *containerID != rec.ContainerID {
		return Record{}, core.NewConflictError(
			containerField(level), "the "+string(level)+" of a progress record cannot be changed",
		)
	}

	patch := in.Patch()
	if err = validatePatch(level, patch); err != nil {
		return Record{}, err
	}
	rec = patch.ApplyTo(rec)
	rec.UpdatedAt = core.NowUTC()
	return svc.repo.Update(ctx, rec)
}

func (svc *Service) Delete(ctx context.Context, level Level, id int) error {
	return svc.repo.Delete(ctx, level, id)
}

// LatestBatch returns the user's most recently updated batch membership.
func (svc *Service) LatestBatch(ctx context.Context, userID int) (Record, bool, error) {
	recs, err := svc.repo.Query(ctx, LevelBatch, Filter{UserID: userID}, ByLatestUpdate)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "querying batch memberships")
	}
	if len(recs) == 0 {
		return Record{}, false, nil
	}
	return recs[0], true, nil
}

// Resolve returns the child of the container the user should resume on:
// the activity of a batch (LevelActivity) or the card of an activity (LevelCard).
// found is false when the container has no children.
func (svc *Service) Resolve(ctx context.Context, level Level, userID, containerID int) (childID int, found bool, err error) {
	var children []int
	switch level {
	case LevelActivity:
		acts, err := svc.content.Activities.Query(ctx, core.Where{"batch_id": containerID}, course.ByCreation)
		if err != nil {
			return 0, false, errors.Wrap(err, "querying activities")
		}
		for _, a := range acts {
			children = append(children, a.ID)
		}
	case LevelCard:
		cards, err := svc.content.Cards.Query(ctx, core.Where{"activity_id": containerID}, course.ByCreation)
		if err != nil {
			return 0, false, errors.Wrap(err, "querying cards")
		}
		for _, c := range cards {
			children = append(children, c.ID)
		}
	default:
		return 0, false, errors.Errorf("cannot resolve a resume point at level %q", level)
	}
	return svc.resumePoint(ctx, level, userID, children)
}

// resumePoint picks among children, given in creation order: the last touched one, else the first created.
func (svc *Service) resumePoint(ctx context.Context, level Level, userID int, children []int) (int, bool, error) {
	if len(children) == 0 {
		return 0, false, nil
	}
	rec, ok, err := svc.repo.LatestTouched(ctx, level, userID, children)
	if err != nil {
		return 0, false, errors.Wrapf(err, "finding latest %s progress", level)
	}
	if ok {
		return rec.ContainerID, true, nil
	}
	return children[0], true, nil
}

// Package planning stores the weekly tutoring schedule, one row per (day, slot).
package planning

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/user"
)

// Slots
const (
	SlotEvening  = "18h30"
	SlotSaturday = "15h00" // saturday only
)

// SerieAll makes an entry visible to every serie.
const SerieAll = "all"

var (
	NowFunc = time.Now // mockable

	Days     = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}
	Slots    = []string{SlotSaturday, SlotEvening}
	Subjects = []string{"math", "physics", "chemistry"}

	ErrNotFound = core.NewNotFoundError("no session planned in this slot")

	errSaturdayOnly = "the 15h00 slot only exists on saturday"
)

// Entry is one planned session.
type Entry struct {
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Group     int       `json:"group"`
	Serie     string    `json:"serie"`
	CourseID  string    `json:"course_id,omitempty"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SlotEntry is an Entry with its position in the week, the unit of storage.
type SlotEntry struct {
	Day  string `json:"day"`
	Slot string `json:"slot"`
	Entry
}

// Schedule maps day -> slot -> Entry. An absent day has no session.
type Schedule map[string]map[string]Entry

// ForStudent keeps the entries of the student's group and serie. Days left empty are dropped.
func (s Schedule) ForStudent(group int, serie string) Schedule {
	out := make(Schedule)
	for day, slots := range s {
		for slot, e := range slots {
			if e.Group != group {
				continue
			}
			if e.Serie != "" && e.Serie != SerieAll && e.Serie != serie {
				continue
			}
			if out[day] == nil {
				out[day] = make(map[string]Entry)
			}
			out[day][slot] = e
		}
	}
	return out
}

// DefaultGroup is the cohort a slot is for when none is given.
func DefaultGroup(slot string) int {
	if slot == SlotSaturday {
		return 2
	}
	return 1
}

// SetSlot is a partial update of one slot. Unset fields keep their stored value.
// Version, when set, must equal the stored version (0 for a slot not planned yet).
type SetSlot struct {
	Subject  string  `json:"subject" validate:"omitempty,oneof=math physics chemistry"`
	Message  *string `json:"message" validate:"omitempty,max=500"`
	Group    *int    `json:"group" validate:"omitempty,min=1,max=9"`
	Serie    string  `json:"serie" validate:"omitempty,oneof=A1 C D all"`
	CourseID *string `json:"course_id" validate:"omitempty"`
	Version  *int    `json:"version" validate:"omitempty,min=0"`
}

func (ss *SetSlot) Validate(validate *validator.Validate) error {
	ss.Subject = core.CleanString(ss.Subject, true /* lower */)
	ss.Serie = core.CleanString(ss.Serie)
	if ss.Message != nil {
		msg := core.CleanString(*ss.Message)
		ss.Message = &msg
	}
	return validate.Struct(ss)
}

// ValidateSlot checks the (day, slot) pair.
func ValidateSlot(day, slot string) error {
	if !core.ContainsString(Days, day) {
		return core.NewValidationError(nil, core.FieldError{Field: "day", Error: "unknown day"})
	}
	if !core.ContainsString(Slots, slot) {
		return core.NewValidationError(nil, core.FieldError{Field: "slot", Error: "unknown slot"})
	}
	if slot == SlotSaturday && day != "saturday" {
		return core.NewValidationError(nil, core.FieldError{Field: "slot", Error: errSaturdayOnly})
	}
	return nil
}

type Repository interface {
	QuerySlots(ctx context.Context) ([]SlotEntry, error)
	GetSlot(ctx context.Context, day, slot string) (SlotEntry, error)
	// UpsertSlot writes one slot. With expectedVersion set, the write only happens if the stored
	// version matches (0: slot absent) and core.ErrConflict is returned otherwise.
	// The stored version is incremented on every write.
	UpsertSlot(ctx context.Context, s SlotEntry, expectedVersion *int) (SlotEntry, error)
	DeleteSlot(ctx context.Context, day, slot string) error
}

type Service struct {
	repo   Repository
	policy *access.Policy
}

func NewService(repo Repository, policy *access.Policy) *Service {
	return &Service{repo: repo, policy: policy}
}

func build(entries []SlotEntry) Schedule {
	s := make(Schedule)
	for _, e := range entries {
		if s[e.Day] == nil {
			s[e.Day] = make(map[string]Entry)
		}
		s[e.Day][e.Slot] = e.Entry
	}
	return s
}

// Get returns the whole schedule for an admin, the student's own sessions otherwise.
func (svc *Service) Get(ctx context.Context, viewer user.User) (Schedule, error) {
	if err := svc.policy.Authorize(viewer, access.ObjPlanning, access.ActRead); err != nil {
		return nil, err
	}
	entries, err := svc.repo.QuerySlots(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying slots")
	}
	s := build(entries)
	if viewer.IsStudent() {
		return s.ForStudent(viewer.Group, viewer.Serie), nil
	}
	return s, nil
}

// SetSlot merges data into the (day, slot) entry, creating it if needed. A new entry needs a subject.
func (svc *Service) SetSlot(ctx context.Context, actor user.User, day, slot string, data SetSlot) (SlotEntry, error) {
	if err := svc.policy.Authorize(actor, access.ObjPlanning, access.ActWrite); err != nil {
		return SlotEntry{}, err
	}
	if err := ValidateSlot(day, slot); err != nil {
		return SlotEntry{}, err
	}

	current, err := svc.repo.GetSlot(ctx, day, slot)
	exists := err == nil
	if err != nil && !core.IsNotFound(err) {
		return SlotEntry{}, errors.Wrap(err, "getting slot")
	}
	if !exists {
		if data.Subject == "" {
			return SlotEntry{}, core.NewValidationError(nil, core.FieldError{Field: "subject", Error: "this field is required"})
		}
		current = SlotEntry{Day: day, Slot: slot, Entry: Entry{Group: DefaultGroup(slot), Serie: SerieAll}}
	}
	// the version read above must still be the stored one when we write
	expected := data.Version
	if expected == nil {
		v := 0
		if exists {
			v = current.Version
		}
		expected = &v
	}

	if data.Subject != "" {
		current.Subject = data.Subject
	}
	if data.Message != nil {
		current.Message = *data.Message
	}
	if data.Group != nil {
		current.Group = *data.Group
	}
	if data.Serie != "" {
		current.Serie = data.Serie
	}
	if data.CourseID != nil {
		current.CourseID = *data.CourseID
	}
	current.UpdatedAt = NowFunc().UTC()

	saved, err := svc.repo.UpsertSlot(ctx, current, expected)
	if err != nil {
		if errors.Cause(err) == core.ErrConflict {
			return SlotEntry{}, core.ErrConflict
		}
		return SlotEntry{}, errors.Wrap(err, "saving slot")
	}
	return saved, nil
}

func (svc *Service) RemoveSlot(ctx context.Context, actor user.User, day, slot string) error {
	if err := svc.policy.Authorize(actor, access.ObjPlanning, access.ActWrite); err != nil {
		return err
	}
	if err := ValidateSlot(day, slot); err != nil {
		return err
	}
	return svc.repo.DeleteSlot(ctx, day, slot)
}

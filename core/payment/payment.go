// Package payment keeps the monthly tuition ledger of students.
// Months are keyed "YYYY-MM" in storage and parsed whenever they are compared.
package payment

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/access"
	"github.com/trezcool/foundi/core/user"
)

var (
	NowFunc = time.Now // mockable

	errInvalidMonth = "invalid month, expected YYYY-MM"
	errNotAStudent  = "payments are only tracked for students"
)

type (
	Repository interface {
		// TogglePayment flips the paid flag of (userID, month) in a single write and returns the new value.
		// A month never recorded toggles to paid.
		TogglePayment(ctx context.Context, userID, month string) (bool, error)
		SetPayment(ctx context.Context, userID, month string, paid bool) error
	}

	Entry struct {
		Month string `json:"month"`
		Paid  bool   `json:"paid"`
	}

	Summary struct {
		Month        string   `json:"month"`
		Paid         bool     `json:"paid"`
		MonthlyFee   int      `json:"monthly_fee"`
		Currency     string   `json:"currency"`
		History      []Entry  `json:"history"`       // newest first
		UnpaidMonths []string `json:"unpaid_months"` // oldest first
		TotalDue     int      `json:"total_due"`
	}

	Stats struct {
		Month         string `json:"month"`
		Students      int    `json:"students"`
		PaidStudents  int    `json:"paid_students"`
		MonthlyFee    int    `json:"monthly_fee"`
		Currency      string `json:"currency"`
		TotalDue      int    `json:"total_due"`
		TotalReceived int    `json:"total_received"`
		TotalArrears  int    `json:"total_arrears"`
	}

	Service struct {
		repo     Repository
		usrSvc   user.Service
		policy   *access.Policy
		fee      int
		currency string
	}
)

func NewService(repo Repository, usrSvc user.Service, policy *access.Policy, conf *core.Config) *Service {
	return &Service{
		repo:     repo,
		usrSvc:   usrSvc,
		policy:   policy,
		fee:      conf.MonthlyFee,
		currency: conf.Currency,
	}
}

// ParseMonth parses a "YYYY-MM" key.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(core.MonthLayout, core.CleanString(month))
	if err != nil {
		return time.Time{}, core.NewValidationError(err, core.FieldError{Field: "month", Error: errInvalidMonth})
	}
	return t, nil
}

// MonthKey formats t as a ledger key.
func MonthKey(t time.Time) string {
	return t.Format(core.MonthLayout)
}

// MonthKeyOf normalizes month to its ledger key, or returns it cleaned when it does not parse.
func MonthKeyOf(month string) string {
	t, err := ParseMonth(month)
	if err != nil {
		return core.CleanString(month)
	}
	return MonthKey(t)
}

// CurrentMonth is the ledger key of the current month.
func CurrentMonth() string {
	return MonthKey(NowFunc())
}

func (svc *Service) target(ctx context.Context, actor user.User, userID, month string) (user.User, string, error) {
	if err := svc.policy.Authorize(actor, access.ObjPayment, access.ActWrite); err != nil {
		return user.User{}, "", err
	}
	m, err := ParseMonth(month)
	if err != nil {
		return user.User{}, "", err
	}
	usr, err := svc.usrSvc.GetByID(ctx, userID)
	if err != nil {
		return user.User{}, "", err
	}
	if !usr.IsStudent() {
		return user.User{}, "", core.NewValidationError(nil, core.FieldError{Field: "user", Error: errNotAStudent})
	}
	return usr, MonthKey(m), nil
}

// Toggle flips the paid flag of a student for month. Toggling twice restores the original value.
func (svc *Service) Toggle(ctx context.Context, actor user.User, userID, month string) (bool, error) {
	usr, key, err := svc.target(ctx, actor, userID, month)
	if err != nil {
		return false, err
	}
	paid, err := svc.repo.TogglePayment(ctx, usr.ID, key)
	return paid, errors.Wrap(err, "toggling payment")
}

func (svc *Service) Set(ctx context.Context, actor user.User, userID, month string, paid bool) error {
	usr, key, err := svc.target(ctx, actor, userID, month)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.repo.SetPayment(ctx, usr.ID, key, paid), "setting payment")
}

// SummaryFor returns the ledger of usr as seen by viewer (the student themself or an admin).
func (svc *Service) SummaryFor(viewer, usr user.User) (Summary, error) {
	if err := svc.policy.Authorize(viewer, access.ObjPayment, access.ActRead, usr.ID); err != nil {
		return Summary{}, err
	}
	return Summarize(usr, NowFunc(), svc.fee, svc.currency), nil
}

// Summarize computes the ledger summary of usr at now.
// Only recorded months count as unpaid; keys that do not parse are ignored.
func Summarize(usr user.User, now time.Time, fee int, currency string) Summary {
	type parsed struct {
		t    time.Time
		key  string
		paid bool
	}
	months := make([]parsed, 0, len(usr.Payments))
	for key, paid := range usr.Payments {
		t, err := time.Parse(core.MonthLayout, key)
		if err != nil {
			continue
		}
		months = append(months, parsed{t: t, key: MonthKey(t), paid: paid})
	}
	sort.Slice(months, func(i, j int) bool { return months[i].t.After(months[j].t) })

	current := MonthKey(now)
	sum := Summary{
		Month:        current,
		Paid:         usr.Payments[current],
		MonthlyFee:   fee,
		Currency:     currency,
		History:      make([]Entry, 0, len(months)),
		UnpaidMonths: make([]string, 0),
	}
	for _, m := range months {
		sum.History = append(sum.History, Entry{Month: m.key, Paid: m.paid})
	}
	for i := len(months) - 1; i >= 0; i-- {
		if !months[i].paid {
			sum.UnpaidMonths = append(sum.UnpaidMonths, months[i].key)
		}
	}
	sum.TotalDue = len(sum.UnpaidMonths) * fee
	return sum
}

// Stats returns the collection figures of the current month.
func (svc *Service) Stats(ctx context.Context, actor user.User) (Stats, error) {
	if err := svc.policy.Authorize(actor, access.ObjPayment, access.ActRead); err != nil {
		return Stats{}, err
	}
	students, err := svc.usrSvc.QueryStudents(ctx)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(students, NowFunc(), svc.fee, svc.currency), nil
}

func ComputeStats(students []user.User, now time.Time, fee int, currency string) Stats {
	month := MonthKey(now)
	st := Stats{Month: month, MonthlyFee: fee, Currency: currency}
	for _, s := range students {
		if !s.IsStudent() {
			continue
		}
		st.Students++
		if s.Payments[month] {
			st.PaidStudents++
		}
	}
	st.TotalDue = st.Students * fee
	st.TotalReceived = st.PaidStudents * fee
	st.TotalArrears = st.TotalDue - st.TotalReceived
	return st
}

package planning_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/planning"
	"github.com/trezcool/foundi/core/user"
	testutil "github.com/trezcool/foundi/tests"
)

func intPtr(i int) *int       { return &i }
func strPtr(s string) *string { return &s }

func TestSchedule_ForStudent(t *testing.T) {
	s := planning.Schedule{
		"tuesday": {
			planning.SlotEvening: {Subject: "math", Group: 1, Serie: planning.SerieAll},
		},
		"thursday": {
			planning.SlotEvening: {Subject: "physics", Group: 1, Serie: "C"},
		},
		"saturday": {
			planning.SlotSaturday: {Subject: "chemistry", Group: 2, Serie: "A1"},
			planning.SlotEvening:  {Subject: "math", Group: 1, Serie: planning.SerieAll},
		},
	}

	got := s.ForStudent(2, "A1")
	assert.Equal(t, planning.Schedule{
		"saturday": {planning.SlotSaturday: {Subject: "chemistry", Group: 2, Serie: "A1"}},
	}, got)

	got = s.ForStudent(1, "D")
	assert.Len(t, got, 2)
	assert.Contains(t, got, "tuesday")
	assert.NotContains(t, got, "thursday")
	assert.NotContains(t, got["saturday"], planning.SlotSaturday)
}

func TestValidateSlot(t *testing.T) {
	assert.NoError(t, planning.ValidateSlot("saturday", planning.SlotSaturday))
	assert.NoError(t, planning.ValidateSlot("monday", planning.SlotEvening))
	for _, tt := range [][2]string{{"monday", planning.SlotSaturday}, {"lundi", planning.SlotEvening}, {"monday", "9h00"}} {
		var vErr *core.ValidationError
		assert.True(t, errors.As(planning.ValidateSlot(tt[0], tt[1]), &vErr), tt)
	}
}

func TestService_SetSlot(t *testing.T) {
	ctx := context.Background()
	env, err := testutil.NewEnv(core.NewTestConfig())
	require.NoError(t, err)
	defer env.Close()

	admin := testutil.CreateUser(t, env.UserRepo, "Prof", "Mbuyi", "prof@test.cd", testutil.UserOpts{Role: user.RoleAdmin})
	awa := testutil.CreateUser(t, env.UserRepo, "Awa", "Diop", "awa@test.cd", testutil.UserOpts{Group: 2, Serie: "A1"})
	svc := env.PlanningSvc

	_, err = svc.SetSlot(ctx, awa, "monday", planning.SlotEvening, planning.SetSlot{Subject: "math"})
	assert.Equal(t, core.ErrForbidden, err)

	var vErr *core.ValidationError
	_, err = svc.SetSlot(ctx, admin, "monday", planning.SlotEvening, planning.SetSlot{})
	assert.True(t, errors.As(err, &vErr), "a new slot needs a subject")

	mon, err := svc.SetSlot(ctx, admin, "monday", planning.SlotEvening, planning.SetSlot{Subject: "math", Message: strPtr("chapitre 3")})
	require.NoError(t, err)
	assert.Equal(t, 1, mon.Version)
	assert.Equal(t, 1, mon.Group)
	assert.Equal(t, planning.SerieAll, mon.Serie)

	sat, err := svc.SetSlot(ctx, admin, "saturday", planning.SlotSaturday, planning.SetSlot{Subject: "physics", Serie: "A1"})
	require.NoError(t, err)
	assert.Equal(t, 2, sat.Group)

	before, err := svc.Get(ctx, admin)
	require.NoError(t, err)

	// a partial update leaves the other fields and slots alone
	mon, err = svc.SetSlot(ctx, admin, "monday", planning.SlotEvening, planning.SetSlot{Subject: "chemistry", Version: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, mon.Version)
	assert.Equal(t, "chapitre 3", mon.Message)

	after, err := svc.Get(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, before["saturday"], after["saturday"])
	assert.Equal(t, "chemistry", after["monday"][planning.SlotEvening].Subject)

	// stale version
	_, err = svc.SetSlot(ctx, admin, "monday", planning.SlotEvening, planning.SetSlot{Subject: "math", Version: intPtr(1)})
	assert.Equal(t, core.ErrConflict, err)
	_, err = svc.SetSlot(ctx, admin, "friday", planning.SlotEvening, planning.SetSlot{Subject: "math", Version: intPtr(3)})
	assert.Equal(t, core.ErrConflict, err)

	// the student only sees the saturday session of group 2
	mine, err := svc.Get(ctx, awa)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, "physics", mine["saturday"][planning.SlotSaturday].Subject)

	require.NoError(t, svc.RemoveSlot(ctx, admin, "monday", planning.SlotEvening))
	assert.True(t, core.IsNotFound(svc.RemoveSlot(ctx, admin, "monday", planning.SlotEvening)))
	after, err = svc.Get(ctx, admin)
	require.NoError(t, err)
	assert.NotContains(t, after, "monday")
}

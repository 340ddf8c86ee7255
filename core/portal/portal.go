// Package portal describes what each role sees: the client routes it may open and the
// panels of its dashboard, with an explicit transition between panels.
package portal

import (
	"github.com/pkg/errors"

	"github.com/trezcool/foundi/core"
	"github.com/trezcool/foundi/core/user"
)

type Panel string

// Student panels
const (
	PanelCourses  Panel = "courses"
	PanelPlanning Panel = "planning"
	PanelPayments Panel = "payments"
	PanelChat     Panel = "chat"
	PanelMessages Panel = "messages"
	PanelProfile  Panel = "profile"
)

// Admin panels
const (
	PanelStudents        Panel = "students"
	PanelCourseManager   Panel = "course-manager"
	PanelPlanningManager Panel = "planning-manager"
	PanelPaymentStats    Panel = "payment-stats"
	PanelUsage           Panel = "usage"
)

var (
	ErrUnknownPanel = errors.New("unknown panel")

	panels = map[string][]Panel{
		user.RoleStudent: {PanelCourses, PanelPlanning, PanelPayments, PanelChat, PanelMessages, PanelProfile},
		user.RoleAdmin: {
			PanelStudents, PanelCourseManager, PanelPlanningManager, PanelPaymentStats,
			PanelChat, PanelMessages, PanelUsage, PanelProfile,
		},
	}
)

// Dashboard is the role-scoped view state; Active is always one of Panels.
type Dashboard struct {
	Role   string  `json:"role"`
	Panels []Panel `json:"panels"`
	Active Panel   `json:"active"`
}

// DashboardFor returns the initial dashboard of role.
func DashboardFor(role string) (Dashboard, error) {
	ps, ok := panels[role]
	if !ok {
		return Dashboard{}, errors.Wrapf(core.ErrForbidden, "no dashboard for role %q", role)
	}
	return Dashboard{Role: role, Panels: append([]Panel(nil), ps...), Active: ps[0]}, nil
}

// Navigate moves to panel p. Panels of another role are unknown here.
func (d Dashboard) Navigate(p Panel) (Dashboard, error) {
	for _, panel := range d.Panels {
		if panel == p {
			d.Active = p
			return d, nil
		}
	}
	return d, core.NewValidationError(ErrUnknownPanel, core.FieldError{Field: "panel", Error: ErrUnknownPanel.Error()})
}

package portal

import "github.com/trezcool/foundi/core/user"

const (
	LoginPath        = "/LoginForm"
	RegisterPath     = "/RegisterForm"
	ForgotPwdPath    = "/forgot-password"
	StudentHomePath  = "/Dashboard"
	AdminHomePath    = "/admin"
	SessionCookieKey = "session"
)

// Route is a client page served by the SPA shell.
// Guarded routes need a session; Role, when set, restricts the page to that role.
type Route struct {
	Path    string
	Guarded bool
	Role    string
}

var Routes = []Route{
	{Path: "/"},
	{Path: LoginPath},
	{Path: RegisterPath},
	{Path: ForgotPwdPath},
	{Path: ForgotPwdPath + "/:uid/:token"},
	{Path: StudentHomePath, Guarded: true, Role: user.RoleStudent},
	{Path: AdminHomePath, Guarded: true, Role: user.RoleAdmin},
	{Path: "/cours", Guarded: true, Role: user.RoleStudent},
	{Path: "/notes", Guarded: true, Role: user.RoleStudent},
	{Path: "/planning", Guarded: true, Role: user.RoleStudent},
	{Path: "/Paiement", Guarded: true, Role: user.RoleStudent},
	{Path: "/profile", Guarded: true},
}

// HomeFor is where a user of role lands after login.
func HomeFor(role string) string {
	if role == user.RoleAdmin {
		return AdminHomePath
	}
	return StudentHomePath
}

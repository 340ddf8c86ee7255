package tests

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/foundi/apps/api/echo"
	"github.com/trezcool/foundi/core/course"
	"github.com/trezcool/foundi/core/payment"
	"github.com/trezcool/foundi/core/planning"
	"github.com/trezcool/foundi/core/portal"
	"github.com/trezcool/foundi/core/user"
	"github.com/trezcool/foundi/tests"
)

func Test_paymentApi(t *testing.T) {
	env.ResetDB()
	admin := createAdmin(t)
	awa := testutil.CreateUser(t, env.UserRepo, "Awa", "Diop", "awa@test.cd")
	moussa := testutil.CreateUser(t, env.UserRepo, "Moussa", "Kalala", "moussa@test.cd")
	adminToken := getToken(t, admin)
	awaToken := getToken(t, awa)

	toggle := "/api/users/" + awa.ID + "/payments/2024-03/toggle"
	runHTTPTests(t, []httpTest{
		{name: "student cannot toggle", method: http.MethodPost, path: toggle, token: awaToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "invalid month", method: http.MethodPost, path: "/api/users/" + awa.ID + "/payments/2024-3x/toggle", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"month": "invalid month, expected YYYY-MM"}),
		},
		{name: "unknown student", method: http.MethodPost, path: "/api/users/lol/payments/2024-03/toggle", token: adminToken, wantCode: http.StatusNotFound},
		{name: "toggle on", method: http.MethodPost, path: toggle, token: adminToken, wantData: marchallObj(t, PaymentResponse{Month: "2024-03", Paid: true})},
		{name: "toggle off", method: http.MethodPost, path: toggle, token: adminToken, wantData: marchallObj(t, PaymentResponse{Month: "2024-03", Paid: false})},
		{
			name: "set", method: http.MethodPut, path: "/api/users/" + awa.ID + "/payments/2024-02", token: adminToken,
			body: marchallObj(t, SetPaymentRequest{Paid: true}), wantData: marchallObj(t, PaymentResponse{Month: "2024-02", Paid: true}),
		},
		{name: "student cannot read others", path: "/api/users/" + moussa.ID + "/payments", token: awaToken, wantCode: http.StatusNotFound},
		{name: "student cannot read stats", path: "/api/admin/stats", token: awaToken, wantCode: http.StatusForbidden},
	})

	usr, err := env.UserSvc.GetByID(context.Background(), awa.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2024-03": false, "2024-02": true}, usr.Payments)

	for _, tt := range []struct {
		path  string
		token string
	}{
		{path: "/api/me/payments", token: awaToken},
		{path: "/api/users/" + awa.ID + "/payments", token: awaToken},
		{path: "/api/users/" + awa.ID + "/payments", token: adminToken},
	} {
		req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum payment.Summary
		unmarshal(t, rec, &sum)
		assert.Equal(t, []string{"2024-03"}, sum.UnpaidMonths)
		assert.Equal(t, env.Conf.MonthlyFee, sum.TotalDue)
		require.Len(t, sum.History, 2)
		assert.Equal(t, "2024-03", sum.History[0].Month)
	}

	req, rec := newAuthRequest(http.MethodGet, "/api/admin/stats", adminToken)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st payment.Stats
	unmarshal(t, rec, &st)
	assert.Equal(t, 2, st.Students)
	assert.Equal(t, 2*env.Conf.MonthlyFee, st.TotalDue)
}

func newMultipartRequest(t *testing.T, method, path, token string, fields map[string]string, fileName, content string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func Test_courseApi(t *testing.T) {
	env.ResetDB()
	admin := createAdmin(t)
	awa := testutil.CreateUser(t, env.UserRepo, "Awa", "Diop", "awa@test.cd", testutil.UserOpts{Serie: "A1"})
	moussa := testutil.CreateUser(t, env.UserRepo, "Moussa", "Kalala", "moussa@test.cd", testutil.UserOpts{Serie: "D"})
	adminToken := getToken(t, admin)

	// students cannot publish
	req, rec := newMultipartRequest(t, http.MethodPost, "/api/courses", getToken(t, awa),
		map[string]string{"title": "x", "serie": "A1", "type": "cours"}, "", "")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, rec = newMultipartRequest(t, http.MethodPost, "/api/courses", adminToken,
		map[string]string{"title": "Limites", "serie": "lol", "type": "cours"}, "", "")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req, rec = newMultipartRequest(t, http.MethodPost, "/api/courses", adminToken,
		map[string]string{"title": "Limites", "description": "chapitre 1", "serie": "A1", "type": "Cours"}, "limites.txt", "lim x->0")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var limits course.Course
	unmarshal(t, rec, &limits)
	assert.Equal(t, "cours", limits.Type)
	require.NotNil(t, limits.File)
	assert.Equal(t, "limites.txt", limits.File.Name)

	req, rec = newAuthRequest(http.MethodPost, "/api/courses", adminToken,
		marchallObj(t, course.NewCourse{Title: "Examen blanc", Serie: course.SerieAll, Type: "examen"}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var exam course.Course
	unmarshal(t, rec, &exam)
	assert.Nil(t, exam.File)

	list := func(token, query string) []string {
		req, rec := newAuthRequest(http.MethodGet, "/api/courses"+query, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var cs []course.Course
		unmarshal(t, rec, &cs)
		titles := make([]string, 0, len(cs))
		for _, c := range cs {
			titles = append(titles, c.Title)
		}
		return titles
	}
	assert.ElementsMatch(t, []string{"Limites", "Examen blanc"}, list(getToken(t, awa), ""))
	assert.Equal(t, []string{"Examen blanc"}, list(getToken(t, moussa), ""))
	assert.Equal(t, []string{"Limites"}, list(adminToken, "?serie=A1"))
	assert.Equal(t, []string{"Examen blanc"}, list(getToken(t, awa), "?type=examen"))

	runHTTPTests(t, []httpTest{
		{name: "hidden from other series", path: "/api/courses/" + limits.ID, token: getToken(t, moussa), wantCode: http.StatusNotFound},
		{name: "file hidden from other series", path: "/api/courses/" + limits.ID + "/file", token: getToken(t, moussa), wantCode: http.StatusNotFound},
		{name: "no file", path: "/api/courses/" + exam.ID + "/file", token: adminToken, wantCode: http.StatusNotFound},
		{name: "unknown course", path: "/api/courses/lol", token: adminToken, wantCode: http.StatusNotFound},
	})

	req, rec = newAuthRequest(http.MethodGet, "/api/courses/"+limits.ID+"/file", getToken(t, awa))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "lim x->0", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=limites.txt`)

	req, rec = newMultipartRequest(t, http.MethodPut, "/api/courses/"+limits.ID, adminToken,
		map[string]string{"description": ""}, "", "")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated course.Course
	unmarshal(t, rec, &updated)
	assert.Equal(t, "Limites", updated.Title)
	assert.Empty(t, updated.Description)
	assert.Equal(t, limits.File.Name, updated.File.Name)

	req, rec = newAuthRequest(http.MethodDelete, "/api/courses/"+limits.ID, adminToken)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"Examen blanc"}, list(adminToken, ""))
}

func Test_planningApi(t *testing.T) {
	env.ResetDB()
	admin := createAdmin(t)
	awa := testutil.CreateUser(t, env.UserRepo, "Awa", "Diop", "awa@test.cd", testutil.UserOpts{Group: 2, Serie: "A1"})
	adminToken := getToken(t, admin)

	setSlot := func(day, slot, body string) *httptest.ResponseRecorder {
		req, rec := newAuthRequest(http.MethodPut, "/api/planning/"+day+"/"+slot, adminToken, []byte(body))
		app.ServeHTTP(rec, req)
		return rec
	}

	rec := setSlot("tuesday", planning.SlotEvening, `{"subject": "math", "message": "chapitre 2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tue planning.SlotEntry
	unmarshal(t, rec, &tue)
	assert.Equal(t, 1, tue.Version)
	assert.Equal(t, 1, tue.Group)

	rec = setSlot("saturday", planning.SlotSaturday, `{"subject": "physics", "serie": "A1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	runHTTPTests(t, []httpTest{
		{name: "student cannot plan", method: http.MethodPut, path: "/api/planning/monday/18h30", token: getToken(t, awa), body: []byte(`{"subject": "math"}`), wantCode: http.StatusForbidden},
		{name: "15h00 is saturday only", method: http.MethodPut, path: "/api/planning/monday/15h00", token: adminToken, body: []byte(`{"subject": "math"}`), wantCode: http.StatusBadRequest},
		{name: "unknown subject", method: http.MethodPut, path: "/api/planning/monday/18h30", token: adminToken, body: []byte(`{"subject": "history"}`), wantCode: http.StatusBadRequest},
		{
			name: "stale version", method: http.MethodPut, path: "/api/planning/tuesday/18h30", token: adminToken,
			body: []byte(`{"subject": "chemistry", "version": 0}`), wantCode: http.StatusConflict,
		},
		{name: "remove unplanned slot", method: http.MethodDelete, path: "/api/planning/friday/18h30", token: adminToken, wantCode: http.StatusNotFound},
	})

	rec = setSlot("tuesday", planning.SlotEvening, `{"group": 3, "version": 1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &tue)
	assert.Equal(t, 2, tue.Version)
	assert.Equal(t, "math", tue.Subject)
	assert.Equal(t, "chapitre 2", tue.Message)

	get := func(token string) planning.Schedule {
		req, rec := newAuthRequest(http.MethodGet, "/api/planning", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var s planning.Schedule
		unmarshal(t, rec, &s)
		return s
	}
	all := get(adminToken)
	assert.Len(t, all, 2)
	mine := get(getToken(t, awa))
	require.Len(t, mine, 1)
	assert.Equal(t, "physics", mine["saturday"][planning.SlotSaturday].Subject)

	req, rec := newAuthRequest(http.MethodDelete, "/api/planning/tuesday/18h30", adminToken)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, get(adminToken), "tuesday")
}

func Test_dashboardApi(t *testing.T) {
	env.ResetDB()
	admin := createAdmin(t)
	awa := testutil.CreateUser(t, env.UserRepo, "Awa", "Diop", "awa@test.cd")
	adminToken := getToken(t, admin)

	studentDash, err := portal.DashboardFor(user.RoleStudent)
	require.NoError(t, err)
	toChat, err := studentDash.Navigate(portal.PanelChat)
	require.NoError(t, err)

	_, err = env.ChatSvc.SendGlobal(context.Background(), awa, "bonjour")
	require.NoError(t, err)
	_, err = env.ChatSvc.SendPrivate(context.Background(), awa, "", "bonjour prof")
	require.NoError(t, err)

	runHTTPTests(t, []httpTest{
		{name: "student dashboard", path: "/api/dashboard", token: getToken(t, awa), wantData: marchallObj(t, studentDash)},
		{
			name: "navigate", method: http.MethodPost, path: "/api/dashboard/panel", token: getToken(t, awa),
			body: marchallObj(t, NavigateRequest{Panel: portal.PanelChat}), wantData: marchallObj(t, toChat),
		},
		{
			name: "foreign panel", method: http.MethodPost, path: "/api/dashboard/panel", token: getToken(t, awa),
			body: marchallObj(t, NavigateRequest{Panel: portal.PanelUsage}), wantCode: http.StatusBadRequest,
		},
		{name: "usage is admin only", path: "/api/admin/usage", token: getToken(t, awa), wantCode: http.StatusForbidden},
		{
			name: "usage", path: "/api/admin/usage", token: adminToken,
			wantData: marchallObj(t, portal.Usage{Users: 2, GlobalMessages: 1, PrivateMessages: 1, EstimatedKB: 2*portal.KBPerMessage + 2*portal.KBPerUser}),
		},
	})
}

func Test_pages(t *testing.T) {
	env.ResetDB()
	admin := createAdmin(t)
	awa := testutil.CreateUser(t, env.UserRepo, "Awa", "Diop", "awa@test.cd")
	pending := testutil.CreateUser(t, env.UserRepo, "New", "Comer", "new@test.cd", testutil.UserOpts{Status: user.StatusPending})
	ghost := user.User{ID: "ghost", Role: user.RoleStudent, Status: user.StatusActive}

	expired := GetUserClaims(awa, env.Conf)
	expired.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	expiredToken, err := GenerateToken(expired, env.Conf.SecretKey)
	require.NoError(t, err)

	tests := []struct {
		name         string
		path         string
		cookie       string
		wantCode     int
		wantLocation string
		wantCleared  bool
	}{
		{name: "public page", path: portal.LoginPath, wantCode: http.StatusOK},
		{name: "reset link", path: portal.ForgotPwdPath + "/abc/def", wantCode: http.StatusOK},
		{name: "no session", path: portal.StudentHomePath, wantCode: http.StatusFound, wantLocation: portal.LoginPath},
		{name: "garbage session", path: "/cours", cookie: "lol", wantCode: http.StatusFound, wantLocation: portal.LoginPath, wantCleared: true},
		{name: "expired session", path: "/planning", cookie: expiredToken, wantCode: http.StatusFound, wantLocation: portal.LoginPath, wantCleared: true},
		{name: "pending account", path: "/profile", cookie: getToken(t, pending), wantCode: http.StatusFound, wantLocation: portal.LoginPath, wantCleared: true},
		{name: "missing profile", path: "/notes", cookie: getToken(t, ghost), wantCode: http.StatusFound, wantLocation: portal.LoginPath, wantCleared: true},
		{name: "student home", path: portal.StudentHomePath, cookie: getToken(t, awa), wantCode: http.StatusOK},
		{name: "student on admin page", path: portal.AdminHomePath, cookie: getToken(t, awa), wantCode: http.StatusFound, wantLocation: portal.StudentHomePath},
		{name: "admin on student page", path: "/Paiement", cookie: getToken(t, admin), wantCode: http.StatusFound, wantLocation: portal.AdminHomePath},
		{name: "admin home", path: portal.AdminHomePath, cookie: getToken(t, admin), wantCode: http.StatusOK},
		{name: "shared page", path: "/profile", cookie: getToken(t, admin), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodGet, tt.path)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: portal.SessionCookieKey, Value: tt.cookie})
			}
			app.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantLocation, rec.Header().Get("Location"))
			if tt.wantCode == http.StatusOK {
				assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
			}
			cleared := false
			for _, c := range rec.Result().Cookies() {
				if c.Name == portal.SessionCookieKey && c.Value == "" {
					cleared = true
				}
			}
			assert.Equal(t, tt.wantCleared, cleared)
		})
	}
}

type countingUserService struct {
	user.Service
	reads int
}

func (svc *countingUserService) GetByID(ctx context.Context, id string) (user.User, error) {
	svc.reads++
	return svc.Service.GetByID(ctx, id)
}

func (svc *countingUserService) GetByEmail(ctx context.Context, email string) (user.User, error) {
	svc.reads++
	return svc.Service.GetByEmail(ctx, email)
}

func Test_pages_gateSkipsStorageWithoutSession(t *testing.T) {
	env.ResetDB()
	awa := testutil.CreateUser(t, env.UserRepo, "Awa", "Diop", "awa@test.cd")

	svc := &countingUserService{Service: env.UserSvc}
	gated := NewServer(ServerDeps{
		Conf:           env.Conf,
		Logger:         env.Logger,
		Policy:         env.Policy,
		UserSvc:        svc,
		PaymentSvc:     env.PaymentSvc,
		CourseSvc:      env.CourseSvc,
		PlanningSvc:    env.PlanningSvc,
		ChatSvc:        env.ChatSvc,
		Broker:         env.Broker,
		Validate:       env.Validate,
		Translator:     env.Translator,
		DisableReqLogs: true,
	})

	for _, cookie := range []string{"", "lol"} {
		req, rec := newRequest(http.MethodGet, portal.StudentHomePath)
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: portal.SessionCookieKey, Value: cookie})
		}
		gated.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, portal.LoginPath, rec.Header().Get("Location"))
	}
	assert.Zero(t, svc.reads)

	req, rec := newRequest(http.MethodGet, portal.StudentHomePath)
	req.AddCookie(&http.Cookie{Name: portal.SessionCookieKey, Value: getToken(t, awa)})
	gated.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.reads)
}

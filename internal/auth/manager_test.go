package auth

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/course-market/internal/config"
	"github.com/yourusername/course-market/internal/mail"
	"github.com/yourusername/course-market/internal/model"
	"github.com/yourusername/course-market/internal/store"
)

// stubUsers is an in-memory credential store recording every mutation.
type stubUsers struct {
	users    map[string]*model.User
	events   *[]string
	tokenSet []tokenCall
	consumed []consumeCall
}

type tokenCall struct {
	id    primitive.ObjectID
	token string
	exp   time.Time
}

type consumeCall struct {
	id    primitive.ObjectID
	token string
	hash  string
}

func newStubUsers(events *[]string) *stubUsers {
	return &stubUsers{users: map[string]*model.User{}, events: events}
}

func (s *stubUsers) add(user *model.User) *model.User {
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	s.users[user.Email] = user
	return user
}

func (s *stubUsers) Create(_ context.Context, user *model.User) error {
	if _, ok := s.users[user.Email]; ok {
		return store.ErrDuplicateEmail
	}
	*s.events = append(*s.events, "create")
	s.add(user)
	return nil
}

func (s *stubUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	user, ok := s.users[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return user, nil
}

func (s *stubUsers) FindByID(_ context.Context, id primitive.ObjectID) (*model.User, error) {
	for _, user := range s.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *stubUsers) FindByResetToken(_ context.Context, token string, now time.Time) (*model.User, error) {
	for _, user := range s.users {
		if user.ResetToken == token && user.ResetToken != "" && user.ResetTokenExp.After(now) {
			return user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *stubUsers) SetResetToken(_ context.Context, id primitive.ObjectID, token string, exp time.Time) error {
	s.tokenSet = append(s.tokenSet, tokenCall{id: id, token: token, exp: exp})
	for _, user := range s.users {
		if user.ID == id {
			user.ResetToken = token
			user.ResetTokenExp = exp
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *stubUsers) ConsumeResetToken(_ context.Context, id primitive.ObjectID, token, passwordHash string, now time.Time) error {
	for _, user := range s.users {
		if user.ID == id && user.ResetToken == token && user.ResetToken != "" && user.ResetTokenExp.After(now) {
			s.consumed = append(s.consumed, consumeCall{id: id, token: token, hash: passwordHash})
			user.Password = passwordHash
			user.ResetToken = ""
			user.ResetTokenExp = time.Time{}
			return nil
		}
	}
	return store.ErrNotFound
}

// stubSender records outgoing mail and can be told to fail.
type stubSender struct {
	events   *[]string
	messages []mail.Message
	err      error
}

func (s *stubSender) Send(_ context.Context, msg mail.Message) error {
	if s.err != nil {
		return s.err
	}
	*s.events = append(*s.events, "mail")
	s.messages = append(s.messages, msg)
	return nil
}

// stubLimiter never locks unless told to.
type stubLimiter struct {
	locked   time.Duration
	failures int
	resets   int
}

func (l *stubLimiter) CheckLock(context.Context, string) (time.Duration, error) {
	return l.locked, nil
}

func (l *stubLimiter) RecordFailure(context.Context, string) (int, error) {
	l.failures++
	return 5 - l.failures, nil
}

func (l *stubLimiter) Reset(context.Context, string) error {
	l.resets++
	return nil
}

type fixture struct {
	router  *gin.Engine
	manager *Manager
	users   *stubUsers
	sender  *stubSender
	limiter *stubLimiter
	events  []string
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func testTemplates() *template.Template {
	return template.Must(template.New("t").Parse(`
{{define "login.tmpl"}}login:{{.loginError}}|{{.registerError}}|{{.data.email}}|csrf={{.csrf}}{{end}}
{{define "reset.tmpl"}}reset:{{.error}}|{{.data.email}}{{end}}
{{define "password.tmpl"}}password:{{.userId}}:{{.token}}{{end}}
{{define "error.tmpl"}}error:{{.message}}{{end}}`))
}

func newFixture(t *testing.T, withCSRF bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{}
	f.users = newStubUsers(&f.events)
	f.sender = &stubSender{events: &f.events}
	f.limiter = &stubLimiter{}

	cfg := &config.Config{
		BaseURL:       "http://shop.test",
		BcryptCost:    bcrypt.MinCost,
		ResetTokenTTL: time.Hour,
	}
	f.manager = NewManager(cfg, f.users, f.sender, f.limiter, testLogger())

	router := gin.New()
	router.SetHTMLTemplate(testTemplates())
	router.Use(sessions.Sessions(SessionCookieName, cookie.NewStore([]byte("test-secret"))))
	router.Use(EnsureCSRF())
	if withCSRF {
		router.Use(VerifyCSRF())
	}
	router.Use(f.manager.LoadUser())

	router.GET("/auth/login", f.manager.LoginPage)
	router.POST("/auth/login", f.manager.Login)
	router.POST("/auth/register", f.manager.Register)
	router.GET("/auth/logout", f.manager.Logout)
	router.GET("/auth/reset", f.manager.ResetPage)
	router.POST("/auth/reset", f.manager.Reset)
	router.GET("/auth/password/:token", f.manager.PasswordPage)
	router.POST("/auth/password", f.manager.Password)

	// Probe for the session state a following request would observe.
	router.GET("/probe", func(c *gin.Context) {
		if id, ok := CurrentUserID(c); ok {
			c.String(http.StatusOK, "auth:%s", id.Hex())
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	f.router = router
	return f
}

func (f *fixture) submit(t *testing.T, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) get(t *testing.T, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

// mergeCookies models a browser cookie jar: one cookie per name, the
// most recent Set-Cookie wins.
func mergeCookies(responses ...*httptest.ResponseRecorder) []*http.Cookie {
	jar := map[string]*http.Cookie{}
	var order []string
	for _, rec := range responses {
		for _, c := range rec.Result().Cookies() {
			if _, seen := jar[c.Name]; !seen {
				order = append(order, c.Name)
			}
			jar[c.Name] = c
		}
	}
	out := make([]*http.Cookie, 0, len(order))
	for _, name := range order {
		out = append(out, jar[name])
	}
	return out
}

func seedUser(f *fixture, email, password, name string) *model.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return f.users.add(&model.User{
		Email:    email,
		Name:     name,
		Password: string(hash),
	})
}

func TestRegisterCreatesUser(t *testing.T) {
	f := newFixture(t, false)

	rec := f.submit(t, "/auth/register", url.Values{
		"remail":    {"a@b.com"},
		"rpassword": {"abc123"},
		"rconfirm":  {"abc123"},
		"rname":     {"Al"},
	}, nil)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("unexpected redirect: %s", loc)
	}

	user, ok := f.users.users["a@b.com"]
	if !ok {
		t.Fatal("user was not created")
	}
	if user.Password == "abc123" {
		t.Fatal("password stored in plaintext")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("abc123")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
	if user.Cart.Items == nil || len(user.Cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %#v", user.Cart)
	}

	// Welcome mail goes out before the record is persisted.
	if len(f.events) != 2 || f.events[0] != "mail" || f.events[1] != "create" {
		t.Fatalf("unexpected event order: %v", f.events)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t, false)
	seedUser(f, "a@b.com", "abc123", "Al")

	rec := f.submit(t, "/auth/register", url.Values{
		"remail":    {"a@b.com"},
		"rpassword": {"abc123"},
		"rconfirm":  {"abc123"},
		"rname":     {"Al"},
	}, nil)

	if loc := rec.Header().Get("Location"); loc != "/auth/login#register" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if len(f.sender.messages) != 0 {
		t.Fatal("no mail should be sent for a duplicate email")
	}

	view := f.get(t, "/auth/login", mergeCookies(rec))
	if !strings.Contains(view.Body.String(), msgEmailTaken) {
		t.Fatalf("expected duplicate-email flash, got: %s", view.Body.String())
	}
	// Submitted email is flashed back for the re-render.
	if !strings.Contains(view.Body.String(), "a@b.com") {
		t.Fatalf("expected form data flash, got: %s", view.Body.String())
	}
}

func TestRegisterMailFailureAbortsRegistration(t *testing.T) {
	f := newFixture(t, false)
	f.sender.err = fmt.Errorf("provider down")

	rec := f.submit(t, "/auth/register", url.Values{
		"remail":    {"a@b.com"},
		"rpassword": {"abc123"},
		"rconfirm":  {"abc123"},
		"rname":     {"Al"},
	}, nil)

	if loc := rec.Header().Get("Location"); loc != "/auth/login#register" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if _, ok := f.users.users["a@b.com"]; ok {
		t.Fatal("record must not be persisted when the mail fails")
	}

	view := f.get(t, "/auth/login", mergeCookies(rec))
	if !strings.Contains(view.Body.String(), msgGenericFailure) {
		t.Fatalf("expected generic failure flash, got: %s", view.Body.String())
	}
}

func TestRejectionEmitsSingleSessionCookie(t *testing.T) {
	f := newFixture(t, false)
	seedUser(f, "a@b.com", "abc123", "Al")

	// Establish the session first so the CSRF mint does not save too.
	view := f.get(t, "/auth/login", nil)

	rec := f.submit(t, "/auth/register", url.Values{
		"remail":    {"a@b.com"},
		"rpassword": {"abc123"},
		"rconfirm":  {"abc123"},
		"rname":     {"Al"},
	}, mergeCookies(view))

	// Error message and form data go out in one session write.
	var count int
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected one session cookie, got %d", count)
	}

	next := f.get(t, "/auth/login", mergeCookies(view, rec))
	if !strings.Contains(next.Body.String(), msgEmailTaken) {
		t.Fatalf("expected duplicate-email flash, got: %s", next.Body.String())
	}
}

func TestRegisterValidationMessages(t *testing.T) {
	cases := []struct {
		name string
		form url.Values
		want string
	}{
		{"bad email", url.Values{"remail": {"nope"}, "rpassword": {"abc123"}, "rconfirm": {"abc123"}, "rname": {"Al"}}, msgInvalidEmail},
		{"short password", url.Values{"remail": {"a@b.com"}, "rpassword": {"abc"}, "rconfirm": {"abc"}, "rname": {"Al"}}, msgPasswordMin},
		{"non-alnum password", url.Values{"remail": {"a@b.com"}, "rpassword": {"abc 12345"}, "rconfirm": {"abc 12345"}, "rname": {"Al"}}, msgPasswordCharset},
		{"mismatch", url.Values{"remail": {"a@b.com"}, "rpassword": {"abc123"}, "rconfirm": {"abc124"}, "rname": {"Al"}}, msgPasswordsMismatch},
		{"short name", url.Values{"remail": {"a@b.com"}, "rpassword": {"abc123"}, "rconfirm": {"abc123"}, "rname": {"A"}}, msgNameMin},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, false)
			rec := f.submit(t, "/auth/register", tc.form, nil)
			view := f.get(t, "/auth/login", mergeCookies(rec))
			if !strings.Contains(view.Body.String(), tc.want) {
				t.Fatalf("expected %q, got: %s", tc.want, view.Body.String())
			}
		})
	}
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t, false)
	user := seedUser(f, "a@b.com", "abc123", "Al")

	rec := f.submit(t, "/auth/login", url.Values{
		"lemail":    {"a@b.com"},
		"lpassword": {"abc123"},
	}, nil)

	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if f.limiter.resets != 1 {
		t.Fatalf("limiter reset count = %d", f.limiter.resets)
	}

	// The very next request must observe the authenticated session.
	probe := f.get(t, "/probe", mergeCookies(rec))
	if probe.Body.String() != "auth:"+user.ID.Hex() {
		t.Fatalf("unexpected probe: %s", probe.Body.String())
	}
}

func TestLoginNormalizesEmail(t *testing.T) {
	f := newFixture(t, false)
	seedUser(f, "a@b.com", "abc123", "Al")

	rec := f.submit(t, "/auth/login", url.Values{
		"lemail":    {"  A@B.com "},
		"lpassword": {"abc123"},
	}, nil)
	if loc := rec.Header().Get("Location"); loc != "/" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t, false)
	seedUser(f, "a@b.com", "abc123", "Al")

	rec := f.submit(t, "/auth/login", url.Values{
		"lemail":    {"a@b.com"},
		"lpassword": {"wrong1"},
	}, nil)

	if loc := rec.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if f.limiter.failures != 1 {
		t.Fatalf("limiter failures = %d", f.limiter.failures)
	}

	cookies := mergeCookies(rec)
	probe := f.get(t, "/probe", cookies)
	if probe.Body.String() != "anonymous" {
		t.Fatalf("session must stay unauthenticated, got: %s", probe.Body.String())
	}
	view := f.get(t, "/auth/login", cookies)
	if !strings.Contains(view.Body.String(), msgWrongPassword) {
		t.Fatalf("expected wrong-password flash, got: %s", view.Body.String())
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t, false)

	rec := f.submit(t, "/auth/login", url.Values{
		"lemail":    {"ghost@b.com"},
		"lpassword": {"abc123"},
	}, nil)

	view := f.get(t, "/auth/login", mergeCookies(rec))
	if !strings.Contains(view.Body.String(), msgNoSuchUser) {
		t.Fatalf("expected no-such-user flash, got: %s", view.Body.String())
	}
}

func TestLoginLockoutCountsOnlyWrongPasswords(t *testing.T) {
	f := newFixture(t, false)
	seedUser(f, "a@b.com", "abc123", "Al")

	// A typo in the email is not a credential failure.
	f.submit(t, "/auth/login", url.Values{
		"lemail":    {"not-an-email"},
		"lpassword": {"abc123"},
	}, nil)
	f.submit(t, "/auth/login", url.Values{
		"lemail":    {"ghost@b.com"},
		"lpassword": {"abc123"},
	}, nil)
	if f.limiter.failures != 0 {
		t.Fatalf("validation failures must not count, got %d", f.limiter.failures)
	}

	f.submit(t, "/auth/login", url.Values{
		"lemail":    {"a@b.com"},
		"lpassword": {"wrong1"},
	}, nil)
	if f.limiter.failures != 1 {
		t.Fatalf("wrong password must count, got %d", f.limiter.failures)
	}
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t, false)
	f.limiter.locked = 3 * time.Minute

	rec := f.submit(t, "/auth/login", url.Values{
		"lemail":    {"a@b.com"},
		"lpassword": {"abc123"},
	}, nil)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newFixture(t, false)
	seedUser(f, "a@b.com", "abc123", "Al")

	login := f.submit(t, "/auth/login", url.Values{
		"lemail":    {"a@b.com"},
		"lpassword": {"abc123"},
	}, nil)

	logout := f.get(t, "/auth/logout", mergeCookies(login))
	if loc := logout.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("unexpected redirect: %s", loc)
	}

	probe := f.get(t, "/probe", mergeCookies(login, logout))
	if probe.Body.String() != "anonymous" {
		t.Fatalf("session not destroyed: %s", probe.Body.String())
	}
}

func TestResetRequestSetsTokenAndMailsLink(t *testing.T) {
	f := newFixture(t, false)
	user := seedUser(f, "a@b.com", "abc123", "Al")

	before := time.Now()
	rec := f.submit(t, "/auth/reset", url.Values{"email": {"a@b.com"}}, nil)
	if loc := rec.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("unexpected redirect: %s", loc)
	}

	if len(f.users.tokenSet) != 1 {
		t.Fatalf("expected one token write, got %d", len(f.users.tokenSet))
	}
	call := f.users.tokenSet[0]
	if call.id != user.ID {
		t.Fatal("token set on the wrong user")
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(call.token) {
		t.Fatalf("token is not 32 hex-encoded bytes: %q", call.token)
	}
	if exp := call.exp.Sub(before); exp < 59*time.Minute || exp > 61*time.Minute {
		t.Fatalf("expiry not ~1h out: %v", exp)
	}

	if len(f.sender.messages) != 1 {
		t.Fatalf("expected one mail, got %d", len(f.sender.messages))
	}
	msg := f.sender.messages[0]
	if msg.To != "a@b.com" || !strings.Contains(msg.HTML, "http://shop.test/auth/password/"+call.token) {
		t.Fatalf("reset mail missing the token link: %#v", msg)
	}
}

func TestResetRequestUnknownEmail(t *testing.T) {
	f := newFixture(t, false)

	rec := f.submit(t, "/auth/reset", url.Values{"email": {"ghost@b.com"}}, nil)
	if loc := rec.Header().Get("Location"); loc != "/auth/reset" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if len(f.users.tokenSet) != 0 {
		t.Fatal("no token may be generated for an unknown email")
	}
	if len(f.sender.messages) != 0 {
		t.Fatal("no mail may be sent for an unknown email")
	}

	view := f.get(t, "/auth/reset", mergeCookies(rec))
	if !strings.Contains(view.Body.String(), msgNoSuchUser) {
		t.Fatalf("expected no-such-user flash, got: %s", view.Body.String())
	}
	if !strings.Contains(view.Body.String(), "ghost@b.com") {
		t.Fatalf("expected email preserved in form data, got: %s", view.Body.String())
	}
}

func TestResetMailFailureDiscardsToken(t *testing.T) {
	f := newFixture(t, false)
	seedUser(f, "a@b.com", "abc123", "Al")
	f.sender.err = fmt.Errorf("provider down")

	rec := f.submit(t, "/auth/reset", url.Values{"email": {"a@b.com"}}, nil)
	if loc := rec.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if len(f.users.tokenSet) != 0 {
		t.Fatal("token mutation must be discarded when the mail fails")
	}

	view := f.get(t, "/auth/login", mergeCookies(rec))
	if !strings.Contains(view.Body.String(), msgGenericFailure) {
		t.Fatalf("expected generic flash under the login key, got: %s", view.Body.String())
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	f := newFixture(t, false)
	user := seedUser(f, "a@b.com", "oldpass1", "Al")
	user.ResetToken = strings.Repeat("ab", 32)
	user.ResetTokenExp = time.Now().Add(time.Hour)

	// Read path: a live token renders the form with the hidden pair.
	page := f.get(t, "/auth/password/"+user.ResetToken, nil)
	if page.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", page.Code)
	}
	want := "password:" + user.ID.Hex() + ":" + user.ResetToken
	if !strings.Contains(page.Body.String(), want) {
		t.Fatalf("form is missing the hidden fields: %s", page.Body.String())
	}

	// Write path: the new password is hashed and the token consumed.
	rec := f.submit(t, "/auth/password", url.Values{
		"userId":   {user.ID.Hex()},
		"token":    {user.ResetToken},
		"password": {"newpass1"},
	}, nil)
	if loc := rec.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if len(f.users.consumed) != 1 {
		t.Fatalf("expected one consume call, got %d", len(f.users.consumed))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("newpass1")); err != nil {
		t.Fatalf("new password does not verify: %v", err)
	}
	if user.ResetToken != "" || !user.ResetTokenExp.IsZero() {
		t.Fatal("token must be cleared after consumption")
	}

	// Revisiting the same link now redirects silently.
	again := f.get(t, "/auth/password/"+strings.Repeat("ab", 32), nil)
	if loc := again.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("consumed token must redirect, got %d %s", again.Code, loc)
	}
}

func TestPasswordPageExpiredToken(t *testing.T) {
	f := newFixture(t, false)
	user := seedUser(f, "a@b.com", "abc123", "Al")
	user.ResetToken = strings.Repeat("cd", 32)
	user.ResetTokenExp = time.Now().Add(-time.Minute)

	rec := f.get(t, "/auth/password/"+user.ResetToken, nil)
	if loc := rec.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("expired token must behave like an unknown one, got %d %s", rec.Code, loc)
	}
}

func TestPasswordChangeRejectsTamperedUserID(t *testing.T) {
	f := newFixture(t, false)
	user := seedUser(f, "a@b.com", "abc123", "Al")
	user.ResetToken = strings.Repeat("ef", 32)
	user.ResetTokenExp = time.Now().Add(time.Hour)
	other := seedUser(f, "c@d.com", "abc123", "Bob")

	rec := f.submit(t, "/auth/password", url.Values{
		"userId":   {other.ID.Hex()},
		"token":    {user.ResetToken},
		"password": {"newpass1"},
	}, nil)

	if loc := rec.Header().Get("Location"); loc != "/auth/login#login" {
		t.Fatalf("unexpected redirect: %s", loc)
	}
	if len(f.users.consumed) != 0 {
		t.Fatal("tampered userId must not consume the token")
	}
	view := f.get(t, "/auth/login", mergeCookies(rec))
	if !strings.Contains(view.Body.String(), msgTokenExpired) {
		t.Fatalf("expected invalid-token flash, got: %s", view.Body.String())
	}
}

func TestPasswordChangeWeakPassword(t *testing.T) {
	f := newFixture(t, false)
	user := seedUser(f, "a@b.com", "abc123", "Al")
	user.ResetToken = strings.Repeat("aa", 32)
	user.ResetTokenExp = time.Now().Add(time.Hour)

	rec := f.submit(t, "/auth/password", url.Values{
		"userId":   {user.ID.Hex()},
		"token":    {user.ResetToken},
		"password": {"abc"},
	}, nil)

	if len(f.users.consumed) != 0 {
		t.Fatal("weak password must not consume the token")
	}
	view := f.get(t, "/auth/login", mergeCookies(rec))
	if !strings.Contains(view.Body.String(), msgPasswordMin) {
		t.Fatalf("expected password-length flash, got: %s", view.Body.String())
	}
}

func TestCSRFGuard(t *testing.T) {
	f := newFixture(t, true)
	seedUser(f, "a@b.com", "abc123", "Al")

	// Without a token the POST is rejected before the controller.
	rec := f.submit(t, "/auth/login", url.Values{
		"lemail":    {"a@b.com"},
		"lpassword": {"abc123"},
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	// A rendered page carries the session token; submitting it passes.
	view := f.get(t, "/auth/login", nil)
	match := regexp.MustCompile(`csrf=([0-9a-f]{64})`).FindStringSubmatch(view.Body.String())
	if match == nil {
		t.Fatalf("login page is missing the csrf token: %s", view.Body.String())
	}

	ok := f.submit(t, "/auth/login", url.Values{
		"lemail":    {"a@b.com"},
		"lpassword": {"abc123"},
		CSRFFormField: {match[1]},
	}, mergeCookies(view))
	if ok.Code != http.StatusSeeOther || ok.Header().Get("Location") != "/" {
		t.Fatalf("expected successful login, got %d %s", ok.Code, ok.Header().Get("Location"))
	}
}

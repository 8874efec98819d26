package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/course-market/internal/config"
	"github.com/yourusername/course-market/internal/flash"
	"github.com/yourusername/course-market/internal/mail"
	"github.com/yourusername/course-market/internal/model"
	"github.com/yourusername/course-market/internal/store"
	"github.com/yourusername/course-market/internal/validate"
)

// UserStore is the credential-store contract the flow controller needs.
// Implemented by *store.UserStore.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)
	FindByResetToken(ctx context.Context, token string, now time.Time) (*model.User, error)
	SetResetToken(ctx context.Context, id primitive.ObjectID, token string, exp time.Time) error
	ConsumeResetToken(ctx context.Context, id primitive.ObjectID, token, passwordHash string, now time.Time) error
}

// Manager orchestrates login, registration, logout and the
// password-reset flow. All collaborators are passed in, never global.
type Manager struct {
	cfg     *config.Config
	users   UserStore
	mailer  mail.Sender
	limiter Limiter
	logger  *log.Logger
	now     func() time.Time
}

// NewManager wires the flow controller.
func NewManager(cfg *config.Config, users UserStore, mailer mail.Sender, limiter Limiter, logger *log.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		users:   users,
		mailer:  mailer,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// LoginPage renders the combined login/register view, consuming any
// flashed errors and prior form data.
func (m *Manager) LoginPage(c *gin.Context) {
	data := ViewData(c, gin.H{
		"title":         "Sign in",
		"isLogin":       true,
		"loginError":    flash.Get(c, flash.KeyLoginError),
		"registerError": flash.Get(c, flash.KeyRegisterError),
		"data":          flash.GetData(c),
	})
	if err := flash.Save(c); err != nil {
		m.logger.Printf("login page: session save failed: %v", err)
	}
	c.HTML(http.StatusOK, "login.tmpl", data)
}

// Login handles POST /auth/login.
func (m *Manager) Login(c *gin.Context) {
	ctx := c.Request.Context()
	ip := c.ClientIP()

	if retryAfter := m.checkLock(ctx, ip); retryAfter > 0 {
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds())+1, 10))
		RenderError(c, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	values, err := m.loginChain().Validate(ctx, postForm(c))
	if err != nil {
		// Only credential mismatches count against the lockout; a typo
		// in the email must not lock the client out.
		if errors.Is(err, errWrongPassword) {
			m.recordFailure(ctx, ip)
		}
		m.rejectWith(c, flash.KeyLoginError, err.Error(),
			map[string]string{"email": values["lemail"]},
			"/auth/login#login")
		return
	}

	user, lookupErr := m.users.FindByEmail(ctx, values["lemail"])
	if lookupErr != nil {
		m.logger.Printf("login: user lookup failed: %v", lookupErr)
		m.rejectWith(c, flash.KeyLoginError, msgGenericFailure,
			map[string]string{"email": values["lemail"]},
			"/auth/login#login")
		return
	}

	if err := m.limiter.Reset(ctx, ip); err != nil {
		m.logger.Printf("login: limiter reset failed: %v", err)
	}

	// The session save must complete before the redirect; a client
	// following it immediately must observe the authenticated session.
	if err := signIn(c, user); err != nil {
		m.logger.Printf("login: session save failed: %v", err)
		RenderError(c, http.StatusInternalServerError, msgGenericFailure)
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

// Register handles POST /auth/register.
func (m *Manager) Register(c *gin.Context) {
	ctx := c.Request.Context()

	values, err := m.registerChain().Validate(ctx, postForm(c))
	if err != nil {
		m.rejectWith(c, flash.KeyRegisterError, err.Error(),
			map[string]string{"name": values["rname"], "email": values["remail"]},
			"/auth/login#register")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(values["rpassword"]), m.cfg.BcryptCost)
	if err != nil {
		m.logger.Printf("register: password hash failed: %v", err)
		RenderError(c, http.StatusInternalServerError, msgGenericFailure)
		return
	}

	user := &model.User{
		Email:    values["remail"],
		Name:     values["rname"],
		Password: string(hash),
		Cart:     model.Cart{Items: []model.CartItem{}},
	}

	// The welcome mail is sent before the record is persisted: a mail
	// failure aborts the registration so no account exists that never
	// received its confirmation.
	if err := m.mailer.Send(ctx, mail.Registration(user.Email)); err != nil {
		m.logger.Printf("register: mail send failed: %v", err)
		m.rejectWith(c, flash.KeyRegisterError, msgGenericFailure,
			map[string]string{"name": values["rname"], "email": values["remail"]},
			"/auth/login#register")
		return
	}

	if err := m.users.Create(ctx, user); err != nil {
		// The unique index is the backstop for two concurrent
		// registrations passing the availability rule.
		message := msgGenericFailure
		if errors.Is(err, store.ErrDuplicateEmail) {
			message = msgEmailTaken
		} else {
			m.logger.Printf("register: user insert failed: %v", err)
		}
		m.rejectWith(c, flash.KeyRegisterError, message,
			map[string]string{"name": values["rname"], "email": values["remail"]},
			"/auth/login#register")
		return
	}

	c.Redirect(http.StatusSeeOther, "/auth/login#login")
}

// Logout destroys the session entirely and redirects to the login view.
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		m.logger.Printf("logout: session destroy failed: %v", err)
	}
	c.Redirect(http.StatusSeeOther, "/auth/login#login")
}

// ResetPage renders the password-reset request view.
func (m *Manager) ResetPage(c *gin.Context) {
	data := ViewData(c, gin.H{
		"title": "Forgot your password?",
		"error": flash.Get(c, flash.KeyError),
		"data":  flash.GetData(c),
	})
	if err := flash.Save(c); err != nil {
		m.logger.Printf("reset page: session save failed: %v", err)
	}
	c.HTML(http.StatusOK, "reset.tmpl", data)
}

// Reset handles POST /auth/reset: it issues a time-bounded reset token
// and mails the link. The token is persisted only after the mail went
// out, so a mail failure leaves the account untouched.
func (m *Manager) Reset(c *gin.Context) {
	ctx := c.Request.Context()

	values, err := m.resetChain().Validate(ctx, postForm(c))
	if err != nil {
		m.rejectWith(c, flash.KeyError, err.Error(),
			map[string]string{"email": values["email"]},
			"/auth/reset")
		return
	}

	token, err := generateToken()
	if err != nil {
		m.logger.Printf("reset: token generation failed: %v", err)
		m.rejectWith(c, flash.KeyError, msgGenericFailure, nil, "/auth/reset")
		return
	}

	user, err := m.users.FindByEmail(ctx, values["email"])
	if err != nil {
		m.logger.Printf("reset: user lookup failed: %v", err)
		m.rejectWith(c, flash.KeyLoginError, msgGenericFailure, nil, "/auth/login#login")
		return
	}

	link := m.cfg.BaseURL + "/auth/password/" + token
	if err := m.mailer.Send(ctx, mail.Reset(user.Email, link)); err != nil {
		m.logger.Printf("reset: mail send failed: %v", err)
		m.rejectWith(c, flash.KeyLoginError, msgGenericFailure, nil, "/auth/login#login")
		return
	}

	exp := m.now().Add(m.cfg.ResetTokenTTL)
	if err := m.users.SetResetToken(ctx, user.ID, token, exp); err != nil {
		m.logger.Printf("reset: token persist failed: %v", err)
		m.rejectWith(c, flash.KeyLoginError, msgGenericFailure, nil, "/auth/login#login")
		return
	}

	c.Redirect(http.StatusSeeOther, "/auth/login#login")
}

// PasswordPage handles GET /auth/password/:token. Unknown, consumed and
// expired tokens are indistinguishable to the caller: all redirect
// silently to the login view.
func (m *Manager) PasswordPage(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	user, err := m.users.FindByResetToken(c.Request.Context(), token, m.now())
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.logger.Printf("password page: token lookup failed: %v", err)
		}
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	data := ViewData(c, gin.H{
		"title":  "Set a new password",
		"error":  flash.Get(c, flash.KeyError),
		"userId": user.ID.Hex(),
		"token":  token,
	})
	if err := flash.Save(c); err != nil {
		m.logger.Printf("password page: session save failed: %v", err)
	}
	c.HTML(http.StatusOK, "password.tmpl", data)
}

// Password handles POST /auth/password: the write path of the reset
// completion.
func (m *Manager) Password(c *gin.Context) {
	ctx := c.Request.Context()

	values, err := m.passwordChain().Validate(ctx, postForm(c))
	if err != nil {
		m.rejectWith(c, flash.KeyLoginError, err.Error(), nil, "/auth/login#login")
		return
	}

	id, err := primitive.ObjectIDFromHex(c.PostForm("userId"))
	if err != nil {
		m.rejectWith(c, flash.KeyLoginError, msgTokenExpired, nil, "/auth/login#login")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(values["password"]), m.cfg.BcryptCost)
	if err != nil {
		m.logger.Printf("password: hash failed: %v", err)
		RenderError(c, http.StatusInternalServerError, msgGenericFailure)
		return
	}

	// Atomic compare-and-clear: of two concurrent submissions with the
	// same token only one can match the filter, the other lands on the
	// invalid-token path.
	err = m.users.ConsumeResetToken(ctx, id, c.PostForm("token"), string(hash), m.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.rejectWith(c, flash.KeyLoginError, msgTokenExpired, nil, "/auth/login#login")
			return
		}
		m.logger.Printf("password: token consume failed: %v", err)
		m.rejectWith(c, flash.KeyLoginError, msgGenericFailure, nil, "/auth/login#login")
		return
	}

	c.Redirect(http.StatusSeeOther, "/auth/login#login")
}

// rejectWith implements the validation-failure pattern: first error
// message flashed under the flow's key, submitted non-secret values
// flashed for the re-render, then a redirect back to the view. Both
// writes go out in one session save so the response carries a single
// session cookie.
func (m *Manager) rejectWith(c *gin.Context, key, message string, data map[string]string, target string) {
	flash.Set(c, key, message)
	if len(data) > 0 {
		flash.SetData(c, data)
	}
	if err := flash.Save(c); err != nil {
		m.logger.Printf("flash write failed: %v", err)
		RenderError(c, http.StatusInternalServerError, msgGenericFailure)
		return
	}
	c.Redirect(http.StatusSeeOther, target)
}

// checkLock asks the limiter for the lockout state. A limiter outage
// must not take logins down, so errors log and report unlocked.
func (m *Manager) checkLock(ctx context.Context, ip string) time.Duration {
	retryAfter, err := m.limiter.CheckLock(ctx, ip)
	if err != nil {
		m.logger.Printf("login: limiter check failed: %v", err)
		return 0
	}
	return retryAfter
}

func (m *Manager) recordFailure(ctx context.Context, ip string) {
	if _, err := m.limiter.RecordFailure(ctx, ip); err != nil {
		m.logger.Printf("login: limiter record failed: %v", err)
	}
}

// postForm adapts the request's POST form to the validate.Form contract.
func postForm(c *gin.Context) validate.Form {
	return validate.FormFunc(c.PostForm)
}

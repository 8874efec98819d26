// Package auth implements the authentication flow: login, registration,
// logout and the password-reset round trip, plus the session and CSRF
// middleware the rest of the app hangs off.
package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yourusername/course-market/internal/model"
)

const (
	// SessionCookieName names the session cookie.
	SessionCookieName = "cm_session"

	sessionKeyUserID = "userID"
	sessionKeyAuth   = "isAuthenticated"
	sessionKeyCSRF   = "csrfToken"
)

// ContextUserKey is where the middleware stores the loaded user.
const ContextUserKey = "auth.user"

// signIn populates the session for the user and persists it. The save
// completes before the caller redirects, so the client's next request
// cannot observe an unauthenticated session.
func signIn(c *gin.Context, user *model.User) error {
	token, err := generateToken()
	if err != nil {
		return err
	}

	session := sessions.Default(c)
	session.Set(sessionKeyUserID, user.ID.Hex())
	session.Set(sessionKeyAuth, true)
	// Fresh CSRF token per authenticated session.
	session.Set(sessionKeyCSRF, token)
	return session.Save()
}

// IsAuthenticated reports whether the session belongs to a logged-in user.
func IsAuthenticated(c *gin.Context) bool {
	session := sessions.Default(c)
	flag, ok := session.Get(sessionKeyAuth).(bool)
	return ok && flag
}

// CurrentUserID returns the authenticated user's id, if any.
func CurrentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	if !IsAuthenticated(c) {
		return primitive.ObjectID{}, false
	}
	session := sessions.Default(c)
	hex, ok := session.Get(sessionKeyUserID).(string)
	if !ok {
		return primitive.ObjectID{}, false
	}
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.ObjectID{}, false
	}
	return id, true
}

// CurrentUser returns the user loaded by the LoadUser middleware.
func CurrentUser(c *gin.Context) (*model.User, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok
}

// LoadUser resolves the session's user reference into a full record for
// downstream handlers. A dangling reference (account deleted since
// login) drops the session.
func (m *Manager) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentUserID(c)
		if !ok {
			c.Next()
			return
		}

		user, err := m.users.FindByID(c.Request.Context(), id)
		if err != nil {
			session := sessions.Default(c)
			session.Clear()
			_ = session.Save()
			c.Next()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// RequireLogin redirects anonymous requests to the login view.
func RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			c.Redirect(http.StatusSeeOther, "/auth/login#login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ViewData merges the common template fields (auth flag, CSRF token,
// current user) into the handler's own.
func ViewData(c *gin.Context, data gin.H) gin.H {
	data["isAuth"] = IsAuthenticated(c)
	data["csrf"] = csrfToken(c)
	if user, ok := CurrentUser(c); ok {
		data["currentUser"] = user
	}
	return data
}

// RenderError renders the generic error page. Used by middleware and by
// the recovery boundary so every failed request still gets a response.
func RenderError(c *gin.Context, status int, message string) {
	c.HTML(status, "error.tmpl", gin.H{
		"title":   "Error",
		"message": message,
		"isAuth":  IsAuthenticated(c),
	})
	c.Abort()
}

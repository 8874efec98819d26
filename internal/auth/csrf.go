package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// CSRFFormField is the hidden input carrying the token in every form.
const CSRFFormField = "_csrf"

// EnsureCSRF issues a per-session token on the first request that lacks
// one, so even anonymous views can render protected forms.
func EnsureCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if token, ok := session.Get(sessionKeyCSRF).(string); ok && token != "" {
			c.Next()
			return
		}

		token, err := generateToken()
		if err != nil {
			RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
			return
		}
		session.Set(sessionKeyCSRF, token)
		if err := session.Save(); err != nil {
			RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
			return
		}
		c.Next()
	}
}

// VerifyCSRF rejects any state-changing request whose form token does
// not match the session token. Runs before the flow controllers.
func VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			RenderError(c, http.StatusForbidden, "Invalid form token, reload the page and try again")
			return
		}

		received := c.PostForm(CSRFFormField)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			RenderError(c, http.StatusForbidden, "Invalid form token, reload the page and try again")
			return
		}

		c.Next()
	}
}

// csrfToken returns the current session's token for embedding in forms.
func csrfToken(c *gin.Context) string {
	session := sessions.Default(c)
	token, _ := session.Get(sessionKeyCSRF).(string)
	return token
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}

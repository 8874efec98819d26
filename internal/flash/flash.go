// Package flash implements one-shot messages carried in the session
// across a redirect. Writes and read-clears are staged on the request
// and persisted by a single Save call before the response goes out, so
// each response carries at most one session cookie.
package flash

import (
	"encoding/json"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Flash keys shared between handlers and views.
const (
	KeyLoginError    = "loginError"
	KeyRegisterError = "registerError"
	KeyError         = "error"
	KeyData          = "data"
)

// dirtyKey marks a request whose session holds unsaved flash changes.
const dirtyKey = "flash.dirty"

// Set stages a one-shot message under the key. The caller persists it
// with Save before redirecting.
func Set(c *gin.Context, key, message string) {
	sessions.Default(c).Set(flashKey(key), message)
	c.Set(dirtyKey, true)
}

// Get returns the message under the key and stages its removal. Missing
// keys yield the empty string.
func Get(c *gin.Context, key string) string {
	session := sessions.Default(c)
	value, ok := session.Get(flashKey(key)).(string)
	if !ok {
		return ""
	}
	session.Delete(flashKey(key))
	c.Set(dirtyKey, true)
	return value
}

// SetData stages submitted form values so the next render can refill
// the form. Values are JSON-encoded to stay store-agnostic.
func SetData(c *gin.Context, data map[string]string) {
	encoded, _ := json.Marshal(data)
	Set(c, KeyData, string(encoded))
}

// GetData returns the stashed form values, staging their removal. An
// absent or unreadable stash yields an empty map.
func GetData(c *gin.Context) map[string]string {
	raw := Get(c, KeyData)
	if raw == "" {
		return map[string]string{}
	}
	var data map[string]string
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return map[string]string{}
	}
	return data
}

// Save persists every staged write and removal in one session save.
// A request that staged nothing saves nothing, so plain renders emit no
// session cookie. Must run before the response body is written.
func Save(c *gin.Context) error {
	if !c.GetBool(dirtyKey) {
		return nil
	}
	c.Set(dirtyKey, false)
	return sessions.Default(c).Save()
}

// flashKey namespaces flash values inside the shared session record.
func flashKey(key string) string {
	return "flash." + key
}

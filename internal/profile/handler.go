// Package profile serves the account profile page: display name and
// avatar upload.
package profile

import (
	"context"
	"errors"
	"log"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yourusername/course-market/internal/auth"
	"github.com/yourusername/course-market/internal/flash"
	"github.com/yourusername/course-market/internal/storage"
	"github.com/yourusername/course-market/internal/validate"
)

const (
	msgNameMin     = "Name must be at least 2 characters"
	msgNameMax     = "Name must be at most 20 characters"
	msgBadImage    = "Avatar must be a png or jpeg image"
	msgImageTooBig = "Avatar image is too large"
)

// ProfileWriter persists profile changes.
type ProfileWriter interface {
	UpdateProfile(ctx context.Context, id primitive.ObjectID, name, avatarURL string) error
}

// ImageSaver stores the uploaded avatar and returns its URL path.
type ImageSaver interface {
	SaveImage(file *multipart.FileHeader) (string, error)
}

// Handler serves the profile routes.
type Handler struct {
	users  ProfileWriter
	images ImageSaver
	logger *log.Logger
}

// NewHandler wires the profile handler.
func NewHandler(users ProfileWriter, images ImageSaver, logger *log.Logger) *Handler {
	return &Handler{users: users, images: images, logger: logger}
}

func nameChain() validate.Chain {
	return validate.Chain{
		{
			Name:      "name",
			Transform: strings.TrimSpace,
			Rules: []validate.Rule{
				validate.MinLength(2, msgNameMin),
				validate.MaxLength(20, msgNameMax),
			},
		},
	}
}

// Page renders the profile view.
func (h *Handler) Page(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	data := auth.ViewData(c, gin.H{
		"title":     "Profile",
		"isProfile": true,
		"user":      user,
		"error":     flash.Get(c, flash.KeyError),
	})
	if err := flash.Save(c); err != nil {
		h.logger.Printf("profile: session save failed: %v", err)
	}
	c.HTML(http.StatusOK, "profile.tmpl", data)
}

// Update handles POST /profile: display name change plus an optional
// avatar upload.
func (h *Handler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	values, err := nameChain().Validate(ctx, validate.FormFunc(c.PostForm))
	if err != nil {
		h.reject(c, err.Error())
		return
	}

	var avatarURL string
	if file, err := c.FormFile("avatar"); err == nil && file != nil {
		avatarURL, err = h.images.SaveImage(file)
		if err != nil {
			switch {
			case errors.Is(err, storage.ErrUnsupportedType):
				h.reject(c, msgBadImage)
			case errors.Is(err, storage.ErrTooLarge):
				h.reject(c, msgImageTooBig)
			default:
				h.logger.Printf("profile: avatar save failed: %v", err)
				auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
			}
			return
		}
	}

	if err := h.users.UpdateProfile(ctx, user.ID, values["name"], avatarURL); err != nil {
		h.logger.Printf("profile: update failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	c.Redirect(http.StatusSeeOther, "/profile")
}

func (h *Handler) reject(c *gin.Context, message string) {
	flash.Set(c, flash.KeyError, message)
	if err := flash.Save(c); err != nil {
		h.logger.Printf("profile: flash write failed: %v", err)
	}
	c.Redirect(http.StatusSeeOther, "/profile")
}

// Package courses serves the course catalog: listing, detail pages and
// the owner-only add/edit/remove flows.
package courses

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yourusername/course-market/internal/auth"
	"github.com/yourusername/course-market/internal/flash"
	"github.com/yourusername/course-market/internal/model"
	"github.com/yourusername/course-market/internal/store"
	"github.com/yourusername/course-market/internal/validate"
)

const (
	msgTitleMin     = "Title must be at least 2 characters"
	msgPriceInvalid = "Enter a valid price"
	msgImgURL       = "Enter a valid image URL"
)

// CourseStore is the persistence contract for listings.
type CourseStore interface {
	Create(ctx context.Context, course *model.Course) error
	FindAll(ctx context.Context) ([]model.Course, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*model.Course, error)
	Update(ctx context.Context, course *model.Course) error
	Delete(ctx context.Context, id, userID primitive.ObjectID) error
}

// Handler serves the catalog routes.
type Handler struct {
	courses CourseStore
	logger  *log.Logger
}

// NewHandler wires the catalog handler.
func NewHandler(courses CourseStore, logger *log.Logger) *Handler {
	return &Handler{courses: courses, logger: logger}
}

func courseChain() validate.Chain {
	return validate.Chain{
		{
			Name:      "title",
			Transform: strings.TrimSpace,
			Rules:     []validate.Rule{validate.MinLength(2, msgTitleMin)},
		},
		{
			Name:  "price",
			Rules: []validate.Rule{validate.Numeric(msgPriceInvalid)},
		},
		{
			Name:      "img",
			Transform: strings.TrimSpace,
			Rules:     []validate.Rule{validate.URL(msgImgURL)},
		},
	}
}

// List renders the catalog.
func (h *Handler) List(c *gin.Context) {
	courses, err := h.courses.FindAll(c.Request.Context())
	if err != nil {
		h.logger.Printf("courses: list failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	var viewerID string
	if id, ok := auth.CurrentUserID(c); ok {
		viewerID = id.Hex()
	}

	c.HTML(http.StatusOK, "courses.tmpl", auth.ViewData(c, gin.H{
		"title":     "Courses",
		"isCourses": true,
		"userId":    viewerID,
		"courses":   courses,
	}))
}

// Detail renders one listing.
func (h *Handler) Detail(c *gin.Context) {
	course, ok := h.findCourse(c)
	if !ok {
		return
	}

	c.HTML(http.StatusOK, "course.tmpl", auth.ViewData(c, gin.H{
		"title":  "Course " + course.Title,
		"course": course,
	}))
}

// EditPage renders the edit form. The allow query parameter guards
// accidental navigation; non-owners are sent back to the catalog.
func (h *Handler) EditPage(c *gin.Context) {
	if c.Query("allow") == "" {
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	course, ok := h.findCourse(c)
	if !ok {
		return
	}

	userID, _ := auth.CurrentUserID(c)
	if !course.OwnedBy(userID) {
		c.Redirect(http.StatusSeeOther, "/courses")
		return
	}

	data := auth.ViewData(c, gin.H{
		"title":  "Edit " + course.Title,
		"course": course,
		"error":  flash.Get(c, flash.KeyError),
	})
	if err := flash.Save(c); err != nil {
		h.logger.Printf("courses: session save failed: %v", err)
	}
	c.HTML(http.StatusOK, "course-edit.tmpl", data)
}

// Edit handles POST /courses/edit. Ownership is re-checked inside the
// store update filter.
func (h *Handler) Edit(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := primitive.ObjectIDFromHex(c.PostForm("id"))
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/courses")
		return
	}

	values, err := courseChain().Validate(ctx, validate.FormFunc(c.PostForm))
	if err != nil {
		flash.Set(c, flash.KeyError, err.Error())
		if ferr := flash.Save(c); ferr != nil {
			h.logger.Printf("courses: flash write failed: %v", ferr)
		}
		c.Redirect(http.StatusSeeOther, "/courses/"+id.Hex()+"/edit?allow=true")
		return
	}

	userID, _ := auth.CurrentUserID(c)
	price, _ := strconv.ParseInt(strings.TrimSpace(values["price"]), 10, 64)
	course := &model.Course{
		ID:     id,
		Title:  values["title"],
		Price:  price,
		Img:    values["img"],
		UserID: userID,
	}

	if err := h.courses.Update(ctx, course); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Printf("courses: update failed: %v", err)
		}
		// Not found here means not the owner or a deleted listing.
		c.Redirect(http.StatusSeeOther, "/courses")
		return
	}

	c.Redirect(http.StatusSeeOther, "/courses")
}

// Remove handles POST /courses/remove. The delete filter includes the
// owner id, so foreign listings are untouched.
func (h *Handler) Remove(c *gin.Context) {
	id, err := primitive.ObjectIDFromHex(c.PostForm("id"))
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/courses")
		return
	}

	userID, _ := auth.CurrentUserID(c)
	if err := h.courses.Delete(c.Request.Context(), id, userID); err != nil {
		h.logger.Printf("courses: delete failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	c.Redirect(http.StatusSeeOther, "/courses")
}

// AddPage renders the new-course form.
func (h *Handler) AddPage(c *gin.Context) {
	c.HTML(http.StatusOK, "add.tmpl", auth.ViewData(c, gin.H{
		"title": "Add a new course",
		"isAdd": true,
	}))
}

// Add handles POST /add. Validation failures re-render the form with
// the submitted values instead of redirecting.
func (h *Handler) Add(c *gin.Context) {
	ctx := c.Request.Context()

	values, err := courseChain().Validate(ctx, validate.FormFunc(c.PostForm))
	if err != nil {
		c.HTML(http.StatusUnprocessableEntity, "add.tmpl", auth.ViewData(c, gin.H{
			"title": "Add a new course",
			"isAdd": true,
			"error": err.Error(),
			"data": map[string]string{
				"title": values["title"],
				"price": values["price"],
				"img":   values["img"],
			},
		}))
		return
	}

	userID, _ := auth.CurrentUserID(c)
	price, _ := strconv.ParseInt(strings.TrimSpace(values["price"]), 10, 64)
	course := &model.Course{
		Title:  values["title"],
		Price:  price,
		Img:    values["img"],
		UserID: userID,
	}

	if err := h.courses.Create(ctx, course); err != nil {
		h.logger.Printf("courses: create failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	c.Redirect(http.StatusSeeOther, "/courses")
}

func (h *Handler) findCourse(c *gin.Context) (*model.Course, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		auth.RenderError(c, http.StatusNotFound, "Course not found")
		return nil, false
	}

	course, err := h.courses.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			auth.RenderError(c, http.StatusNotFound, "Course not found")
			return nil, false
		}
		h.logger.Printf("courses: lookup failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return nil, false
	}
	return course, true
}

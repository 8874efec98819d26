// Package cart serves the per-user shopping cart.
package cart

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yourusername/course-market/internal/auth"
	"github.com/yourusername/course-market/internal/model"
)

// CourseFinder resolves cart item references to course listings.
type CourseFinder interface {
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]model.Course, error)
}

// CartWriter persists cart mutations on the owning user.
type CartWriter interface {
	UpdateCart(ctx context.Context, id primitive.ObjectID, cart model.Cart) error
}

// Handler serves the cart routes. All of them require a login.
type Handler struct {
	courses CourseFinder
	users   CartWriter
	logger  *log.Logger
}

// NewHandler wires the cart handler.
func NewHandler(courses CourseFinder, users CartWriter, logger *log.Logger) *Handler {
	return &Handler{courses: courses, users: users, logger: logger}
}

// Item is one resolved cart row for the view.
type Item struct {
	Course model.Course
	Count  int
}

// Resolve maps cart references to live courses. References to deleted
// listings are dropped rather than surfaced.
func Resolve(ctx context.Context, courses CourseFinder, cart model.Cart) ([]Item, int64, error) {
	ids := make([]primitive.ObjectID, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.CourseID)
	}

	found, err := courses.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	var items []Item
	var total int64
	for _, ref := range cart.Items {
		course, ok := found[ref.CourseID]
		if !ok {
			continue
		}
		items = append(items, Item{Course: course, Count: ref.Count})
		total += course.Price * int64(ref.Count)
	}
	return items, total, nil
}

// View renders the cart.
func (h *Handler) View(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	items, total, err := Resolve(c.Request.Context(), h.courses, user.Cart)
	if err != nil {
		h.logger.Printf("cart: resolve failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	c.HTML(http.StatusOK, "cart.tmpl", auth.ViewData(c, gin.H{
		"title":  "Cart",
		"isCart": true,
		"items":  items,
		"total":  total,
	}))
}

// Add handles POST /cart/add.
func (h *Handler) Add(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	id, err := primitive.ObjectIDFromHex(c.PostForm("id"))
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/courses")
		return
	}

	user.AddToCart(id)
	if err := h.users.UpdateCart(c.Request.Context(), user.ID, user.Cart); err != nil {
		h.logger.Printf("cart: update failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	c.Redirect(http.StatusSeeOther, "/cart")
}

// Remove handles POST /cart/remove/:id.
func (h *Handler) Remove(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.Redirect(http.StatusSeeOther, "/cart")
		return
	}

	user.RemoveFromCart(id)
	if err := h.users.UpdateCart(c.Request.Context(), user.ID, user.Cart); err != nil {
		h.logger.Printf("cart: update failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	c.Redirect(http.StatusSeeOther, "/cart")
}

// Package orders turns carts into order records and lists purchase
// history.
package orders

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yourusername/course-market/internal/auth"
	"github.com/yourusername/course-market/internal/cart"
	"github.com/yourusername/course-market/internal/model"
)

// OrderStore is the persistence contract for orders.
type OrderStore interface {
	Create(ctx context.Context, order *model.Order) error
	FindByUser(ctx context.Context, userID primitive.ObjectID) ([]model.Order, error)
}

// MailEnqueuer queues the confirmation message for background delivery.
// Checkout does not wait for the provider.
type MailEnqueuer interface {
	EnqueueOrderMail(ctx context.Context, to, orderID string, total int64) error
}

// Handler serves the order routes. All of them require a login.
type Handler struct {
	orders  OrderStore
	courses cart.CourseFinder
	users   cart.CartWriter
	queue   MailEnqueuer
	logger  *log.Logger
}

// timeNow is swapped out in tests.
var timeNow = time.Now

// NewHandler wires the orders handler.
func NewHandler(orders OrderStore, courses cart.CourseFinder, users cart.CartWriter, queue MailEnqueuer, logger *log.Logger) *Handler {
	return &Handler{
		orders:  orders,
		courses: courses,
		users:   users,
		queue:   queue,
		logger:  logger,
	}
}

// List renders the user's purchase history.
func (h *Handler) List(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	orders, err := h.orders.FindByUser(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Printf("orders: list failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	c.HTML(http.StatusOK, "orders.tmpl", auth.ViewData(c, gin.H{
		"title":   "Orders",
		"isOrder": true,
		"orders":  orders,
	}))
}

// Create handles POST /orders: it snapshots the cart into an order,
// clears the cart and queues the confirmation mail.
func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.Redirect(http.StatusSeeOther, "/auth/login#login")
		return
	}

	items, _, err := cart.Resolve(ctx, h.courses, user.Cart)
	if err != nil {
		h.logger.Printf("orders: cart resolve failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}
	if len(items) == 0 {
		c.Redirect(http.StatusSeeOther, "/cart")
		return
	}

	order := &model.Order{
		User: model.OrderUser{
			UserID: user.ID,
			Name:   user.Name,
			Email:  user.Email,
		},
		Date: timeNow(),
	}
	for _, item := range items {
		order.Items = append(order.Items, model.OrderItem{
			Course: item.Course,
			Count:  item.Count,
		})
	}

	if err := h.orders.Create(ctx, order); err != nil {
		h.logger.Printf("orders: create failed: %v", err)
		auth.RenderError(c, http.StatusInternalServerError, "Something went wrong, try again later")
		return
	}

	user.ClearCart()
	if err := h.users.UpdateCart(ctx, user.ID, user.Cart); err != nil {
		// The order exists; a stale cart is recoverable and not worth
		// failing the checkout for.
		h.logger.Printf("orders: cart clear failed: %v", err)
	}

	if err := h.queue.EnqueueOrderMail(ctx, user.Email, order.ID.Hex(), order.Total()); err != nil {
		h.logger.Printf("orders: mail enqueue failed: %v", err)
	}

	c.Redirect(http.StatusSeeOther, "/orders")
}

// Package jobs runs background work over an asynq queue. The only task
// today is the order-confirmation mail, which checkout must not wait
// for.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/yourusername/course-market/internal/mail"
)

const (
	taskTypeOrderMail = "mail:order"
	queueMail         = "mail"
)

// OrderMailPayload is the task payload for a confirmation message.
type OrderMailPayload struct {
	To      string `json:"to"`
	OrderID string `json:"orderId"`
	Total   int64  `json:"total"`
}

// Manager owns the asynq client and worker server.
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	mailer mail.Sender
	logger *log.Logger
}

// NewManager builds the queue client and worker from the redis URL.
func NewManager(redisURL string, mailer mail.Sender, logger *log.Logger) (*Manager, error) {
	if mailer == nil {
		return nil, errors.New("mailer is nil")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				queueMail: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client: client,
		server: server,
		mux:    mux,
		mailer: mailer,
		logger: logger,
	}
	mux.HandleFunc(taskTypeOrderMail, manager.handleOrderMail)
	return manager, nil
}

// EnqueueOrderMail queues one confirmation message.
func (m *Manager) EnqueueOrderMail(ctx context.Context, to, orderID string, total int64) error {
	payload, err := json.Marshal(OrderMailPayload{To: to, OrderID: orderID, Total: total})
	if err != nil {
		return fmt.Errorf("failed to marshal mail payload: %w", err)
	}
	task := asynq.NewTask(taskTypeOrderMail, payload)
	if _, err := m.client.EnqueueContext(ctx, task, asynq.Queue(queueMail)); err != nil {
		return fmt.Errorf("failed to enqueue mail task: %w", err)
	}
	return nil
}

// StartWorkers runs the asynq server in the background.
func (m *Manager) StartWorkers() error {
	if err := m.server.Start(m.mux); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	return nil
}

// Shutdown stops the workers and closes the client.
func (m *Manager) Shutdown() {
	m.server.Shutdown()
	if err := m.client.Close(); err != nil {
		m.logger.Printf("jobs: client close failed: %v", err)
	}
}

func (m *Manager) handleOrderMail(ctx context.Context, task *asynq.Task) error {
	var payload OrderMailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal mail payload: %w", err)
	}

	if err := m.mailer.Send(ctx, mail.OrderConfirmation(payload.To, payload.OrderID, payload.Total)); err != nil {
		// Returning the error lets asynq retry with backoff.
		return err
	}

	m.logger.Printf("order confirmation sent for %s", payload.OrderID)
	return nil
}

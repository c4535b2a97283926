// Package dispatch implements the ticket lifecycle: generating tickets and
// the staff call/complete/no-show actions, plus the push events each action
// fans out to the owning user, the staff board, and the public display.
package dispatch

import (
	"context"
	"time"

	"github.com/lg12346/FilaVirtual/internal/hub"
	"github.com/lg12346/FilaVirtual/internal/models"
	"github.com/lg12346/FilaVirtual/internal/store"
)

// DefaultCounter labels calls when staff do not name a counter.
const DefaultCounter = "Atendimento"

// Notifier is the push-channel capability the engine publishes through.
// Publishing happens only after the state change committed; a lost message
// never fails the request.
type Notifier interface {
	Publish(topic, eventType string, payload interface{})
}

type Engine struct {
	store    store.TicketStore
	notifier Notifier
}

func New(st store.TicketStore, notifier Notifier) *Engine {
	return &Engine{store: st, notifier: notifier}
}

type NewTicketEvent struct {
	TicketID     string    `json:"id"`
	TicketNumber int       `json:"ticket_number"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

type CalledEvent struct {
	TicketNumber int    `json:"ticket_number"`
	Counter      string `json:"counter"`
}

type CompletedEvent struct {
	TicketNumber int `json:"ticket_number"`
}

type UpdateEvent struct {
	Type         string `json:"type"`
	TicketNumber int    `json:"ticket_number"`
}

func (e *Engine) Generate(ctx context.Context, userID string) (models.Ticket, error) {
	ticket, err := e.store.CreateTicket(ctx, store.CreateTicketInput{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return models.Ticket{}, err
	}

	e.notifier.Publish(hub.TopicStaff, "new_ticket", NewTicketEvent{
		TicketID:     ticket.TicketID,
		TicketNumber: ticket.TicketNumber,
		Status:       ticket.Status,
		CreatedAt:    ticket.CreatedAt,
	})
	e.notifier.Publish(hub.TopicPublicDisplay, "ticket_update", UpdateEvent{
		Type:         "new_ticket",
		TicketNumber: ticket.TicketNumber,
	})
	return ticket, nil
}

func (e *Engine) CallNext(ctx context.Context, adminID, counter string) (models.Ticket, error) {
	ticket, err := e.store.CallNext(ctx, store.CallInput{
		AdminID:  adminID,
		Counter:  counterOrDefault(counter),
		CalledAt: time.Now().UTC(),
	})
	if err != nil {
		return models.Ticket{}, err
	}
	e.notifyCalled(ticket)
	return ticket, nil
}

func (e *Engine) CallSpecific(ctx context.Context, adminID, ticketID, counter string) (models.Ticket, error) {
	ticket, err := e.store.CallTicket(ctx, store.CallInput{
		AdminID:  adminID,
		TicketID: ticketID,
		Counter:  counterOrDefault(counter),
		CalledAt: time.Now().UTC(),
	})
	if err != nil {
		return models.Ticket{}, err
	}
	e.notifyCalled(ticket)
	return ticket, nil
}

func (e *Engine) Complete(ctx context.Context, adminID, ticketID string) (models.Ticket, error) {
	ticket, err := e.store.CompleteTicket(ctx, store.TicketActionInput{
		AdminID:    adminID,
		TicketID:   ticketID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return models.Ticket{}, err
	}

	if ticket.UserID != nil {
		e.notifier.Publish(hub.UserTopic(*ticket.UserID), "ticket_completed", CompletedEvent{
			TicketNumber: ticket.TicketNumber,
		})
	}
	e.notifier.Publish(hub.TopicPublicDisplay, "ticket_update", UpdateEvent{
		Type:         "completed",
		TicketNumber: ticket.TicketNumber,
	})
	return ticket, nil
}

// MarkNoShow pings the public display only; the absent owner is not notified.
func (e *Engine) MarkNoShow(ctx context.Context, adminID, ticketID string) (models.Ticket, error) {
	ticket, err := e.store.NoShowTicket(ctx, store.TicketActionInput{
		AdminID:    adminID,
		TicketID:   ticketID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		return models.Ticket{}, err
	}

	e.notifier.Publish(hub.TopicPublicDisplay, "ticket_update", UpdateEvent{
		Type:         "no_show",
		TicketNumber: ticket.TicketNumber,
	})
	return ticket, nil
}

func (e *Engine) notifyCalled(ticket models.Ticket) {
	event := CalledEvent{TicketNumber: ticket.TicketNumber, Counter: ticket.Counter}
	if ticket.UserID != nil {
		e.notifier.Publish(hub.UserTopic(*ticket.UserID), "ticket_called", event)
	}
	e.notifier.Publish(hub.TopicPublicDisplay, "ticket_called", event)
}

func counterOrDefault(counter string) string {
	if counter == "" {
		return DefaultCounter
	}
	return counter
}

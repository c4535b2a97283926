package store

import (
	"context"
	"time"

	"github.com/lg12346/FilaVirtual/internal/models"
)

type CreateTicketInput struct {
	UserID    string
	CreatedAt time.Time
}

type CallInput struct {
	AdminID  string
	TicketID string
	Counter  string
	CalledAt time.Time
}

type TicketActionInput struct {
	AdminID    string
	TicketID   string
	OccurredAt time.Time
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	CurrentTicket(ctx context.Context, userID string) (models.Ticket, error)
	ListUserTickets(ctx context.Context, userID string, limit int) ([]models.Ticket, error)
	ListAdminTickets(ctx context.Context) ([]models.AdminTicket, error)
	CallNext(ctx context.Context, input CallInput) (models.Ticket, error)
	CallTicket(ctx context.Context, input CallInput) (models.Ticket, error)
	CompleteTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	NoShowTicket(ctx context.Context, input TicketActionInput) (models.Ticket, error)
	StatsToday(ctx context.Context) (models.Stats, error)
	PublicSnapshot(ctx context.Context, limit int) (models.PublicSnapshot, error)
	ListAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error)
}

type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
	Role     string
}

type LoginInput struct {
	Email    string
	Phone    string
	Password string
}

type AccountStore interface {
	Register(ctx context.Context, input RegisterInput) (models.User, error)
	Login(ctx context.Context, input LoginInput) (models.Session, models.User, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
}

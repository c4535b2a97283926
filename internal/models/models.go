package models

import "time"

type User struct {
	UserID    string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Ticket struct {
	TicketID     string     `json:"id"`
	UserID       *string    `json:"user_id,omitempty"`
	TicketNumber int        `json:"ticket_number"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	CalledAt     *time.Time `json:"called_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	AdminID      *string    `json:"admin_id,omitempty"`
	Counter      string     `json:"counter,omitempty"`
}

// AdminTicket is a Ticket joined with its owner for the staff board.
type AdminTicket struct {
	Ticket
	UserName  string `json:"user_name,omitempty"`
	UserPhone string `json:"user_phone,omitempty"`
}

type AuditEntry struct {
	AuditID   string    `json:"id"`
	AdminID   *string   `json:"admin_id,omitempty"`
	Action    string    `json:"action"`
	TicketID  *string   `json:"ticket_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Stats struct {
	Open      int `json:"open"`
	Called    int `json:"called"`
	Completed int `json:"completed"`
	NoShow    int `json:"no_show"`
	Total     int `json:"total"`
}

type PublicSnapshot struct {
	Stats
	Tickets []Ticket `json:"tickets"`
}

const (
	StatusOpen      = "open"
	StatusCalled    = "called"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

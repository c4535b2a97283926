package store

import "errors"

var (
	ErrTicketNotFound     = errors.New("ticket not found")
	ErrNoOpenTicket       = errors.New("no open ticket available")
	ErrInvalidState       = errors.New("invalid ticket state")
	ErrSequenceConflict   = errors.New("ticket number conflict")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
)

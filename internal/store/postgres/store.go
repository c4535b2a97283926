package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lg12346/FilaVirtual/internal/models"
	"github.com/lg12346/FilaVirtual/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation  = "23505"
	sequenceAttempts = 3
	defaultListLimit = 100
	ticketColumns    = "ticket_id, user_id, ticket_number, status, counter, created_at, called_at, completed_at, admin_id"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// CreateTicket allocates the next per-day sequence number and inserts the
// ticket in one transaction. The sequence upsert serializes concurrent
// allocations; the unique index on (ticket_day, ticket_number) backstops it,
// and a violation retries the whole allocation a bounded number of times.
func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, error) {
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var lastErr error
	for attempt := 0; attempt < sequenceAttempts; attempt++ {
		ticket, err := s.insertTicket(ctx, input.UserID, createdAt)
		if err == nil {
			return ticket, nil
		}
		if !isUniqueViolation(err) {
			return models.Ticket{}, err
		}
		lastErr = store.ErrSequenceConflict
	}
	return models.Ticket{}, lastErr
}

func (s *Store) insertTicket(ctx context.Context, userID string, createdAt time.Time) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	day := createdAt.Format("2006-01-02")

	var number int64
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (ticket_day, next_number)
		VALUES ($1, 1)
		ON CONFLICT (ticket_day)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, day)
	if err = row.Scan(&number); err != nil {
		return models.Ticket{}, err
	}

	ticketID := uuid.NewString()
	var ticket models.Ticket
	row = tx.QueryRow(ctx, `
		INSERT INTO tickets (ticket_id, user_id, ticket_day, ticket_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+ticketColumns+`
	`, ticketID, nullIfEmpty(userID), day, number, models.StatusOpen, createdAt)
	if err = scanTicket(row, &ticket); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	var ticket models.Ticket
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE ticket_id = $1
	`, ticketID)
	if err := scanTicket(row, &ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CurrentTicket(ctx context.Context, userID string) (models.Ticket, error) {
	var ticket models.Ticket
	row := s.pool.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE user_id = $1
		ORDER BY created_at DESC, ticket_id DESC
		LIMIT 1
	`, userID)
	if err := scanTicket(row, &ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) ListUserTickets(ctx context.Context, userID string, limit int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		WHERE user_id = $1
		ORDER BY created_at DESC, ticket_id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *Store) ListAdminTickets(ctx context.Context) ([]models.AdminTicket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.ticket_id, t.user_id, t.ticket_number, t.status, t.counter,
		       t.created_at, t.called_at, t.completed_at, t.admin_id,
		       COALESCE(u.name, ''), COALESCE(u.phone, '')
		FROM tickets t
		LEFT JOIN users u ON u.user_id = t.user_id
		ORDER BY
			CASE t.status
				WHEN 'called' THEN 1
				WHEN 'open' THEN 2
				WHEN 'completed' THEN 3
				WHEN 'no_show' THEN 4
				ELSE 5
			END,
			t.created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.AdminTicket
	for rows.Next() {
		var ticket models.AdminTicket
		var userIDNull, adminIDNull sql.NullString
		var calledAtNull, completedAtNull sql.NullTime
		if err := rows.Scan(&ticket.TicketID, &userIDNull, &ticket.TicketNumber, &ticket.Status, &ticket.Counter,
			&ticket.CreatedAt, &calledAtNull, &completedAtNull, &adminIDNull,
			&ticket.UserName, &ticket.UserPhone); err != nil {
			return nil, err
		}
		ticket.UserID = nullStringPtr(userIDNull)
		ticket.CalledAt = nullTimePtr(calledAtNull)
		ticket.CompletedAt = nullTimePtr(completedAtNull)
		ticket.AdminID = nullStringPtr(adminIDNull)
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

// CallNext moves the oldest open ticket to called. FOR UPDATE SKIP LOCKED
// keeps two concurrent staff calls from grabbing the same ticket.
func (s *Store) CallNext(ctx context.Context, input store.CallInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}

	var ticket models.Ticket
	row := tx.QueryRow(ctx, `
		WITH next_ticket AS (
			SELECT ticket_id
			FROM tickets
			WHERE status = 'open'
			ORDER BY created_at ASC, ticket_id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE tickets
		SET status = 'called',
			called_at = $1,
			admin_id = $2,
			counter = $3
		FROM next_ticket
		WHERE tickets.ticket_id = next_ticket.ticket_id
		RETURNING tickets.ticket_id, tickets.user_id, tickets.ticket_number, tickets.status, tickets.counter,
			tickets.created_at, tickets.called_at, tickets.completed_at, tickets.admin_id
	`, calledAt, input.AdminID, input.Counter)
	if err = scanTicket(row, &ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = nil
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return models.Ticket{}, commitErr
			}
			return models.Ticket{}, store.ErrNoOpenTicket
		}
		return models.Ticket{}, err
	}

	if err = insertAuditEntry(ctx, tx, input.AdminID, "call_ticket", ticket.TicketID, "Balcão "+input.Counter, calledAt); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) CallTicket(ctx context.Context, input store.CallInput) (models.Ticket, error) {
	calledAt := input.CalledAt
	if calledAt.IsZero() {
		calledAt = time.Now().UTC()
	}
	return s.transitionTicket(ctx, transition{
		action:   "call_specific",
		from:     models.StatusOpen,
		adminID:  input.AdminID,
		ticketID: input.TicketID,
		details:  "Balcão " + input.Counter,
		at:       calledAt,
		update: `
			UPDATE tickets
			SET status = 'called',
				called_at = $2,
				admin_id = $3,
				counter = $4
			WHERE ticket_id = $1 AND status = 'open'
			RETURNING ` + ticketColumns,
		args: []interface{}{input.TicketID, calledAt, input.AdminID, input.Counter},
	})
}

func (s *Store) CompleteTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return s.transitionTicket(ctx, transition{
		action:   "complete_ticket",
		from:     models.StatusCalled,
		adminID:  input.AdminID,
		ticketID: input.TicketID,
		at:       occurredAt,
		update: `
			UPDATE tickets
			SET status = 'completed',
				completed_at = $2
			WHERE ticket_id = $1 AND status = 'called'
			RETURNING ` + ticketColumns,
		args: []interface{}{input.TicketID, occurredAt},
	})
}

func (s *Store) NoShowTicket(ctx context.Context, input store.TicketActionInput) (models.Ticket, error) {
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return s.transitionTicket(ctx, transition{
		action:   "no_show",
		from:     models.StatusCalled,
		adminID:  input.AdminID,
		ticketID: input.TicketID,
		at:       occurredAt,
		update: `
			UPDATE tickets
			SET status = 'no_show',
				completed_at = $2
			WHERE ticket_id = $1 AND status = 'called'
			RETURNING ` + ticketColumns,
		args: []interface{}{input.TicketID, occurredAt},
	})
}

type transition struct {
	action   string
	from     string
	adminID  string
	ticketID string
	details  string
	at       time.Time
	update   string
	args     []interface{}
}

// transitionTicket runs a guarded status update plus the audit insert in one
// transaction. Zero updated rows means either an unknown ticket or a state
// the action does not allow; the row is reloaded to tell the two apart.
func (s *Store) transitionTicket(ctx context.Context, tr transition) (models.Ticket, error) {
	if !store.ValidTransition(tr.action, tr.from) {
		return models.Ticket{}, store.ErrInvalidState
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ticket models.Ticket
	row := tx.QueryRow(ctx, tr.update, tr.args...)
	if err = scanTicket(row, &ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var status string
			statusRow := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE ticket_id = $1`, tr.ticketID)
			if scanErr := statusRow.Scan(&status); scanErr != nil {
				if errors.Is(scanErr, pgx.ErrNoRows) {
					err = nil
					_ = tx.Rollback(ctx)
					return models.Ticket{}, store.ErrTicketNotFound
				}
				err = scanErr
				return models.Ticket{}, err
			}
			err = nil
			_ = tx.Rollback(ctx)
			return models.Ticket{}, store.ErrInvalidState
		}
		return models.Ticket{}, err
	}

	if err = insertAuditEntry(ctx, tx, tr.adminID, tr.action, ticket.TicketID, tr.details, tr.at); err != nil {
		return models.Ticket{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) StatsToday(ctx context.Context) (models.Stats, error) {
	from, to := dayBounds(time.Now().UTC())
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM tickets
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status
	`, from, to)
	if err != nil {
		return models.Stats{}, err
	}
	defer rows.Close()

	var stats models.Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.Stats{}, err
		}
		switch status {
		case models.StatusOpen:
			stats.Open = count
		case models.StatusCalled:
			stats.Called = count
		case models.StatusCompleted:
			stats.Completed = count
		case models.StatusNoShow:
			stats.NoShow = count
		}
	}
	if err := rows.Err(); err != nil {
		return models.Stats{}, err
	}
	stats.Total = stats.Open + stats.Called + stats.Completed + stats.NoShow
	return stats, nil
}

// PublicSnapshot counts over the same rows it returns, so total always equals
// the sum of the per-status counts regardless of database state.
func (s *Store) PublicSnapshot(ctx context.Context, limit int) (models.PublicSnapshot, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+`
		FROM tickets
		ORDER BY created_at DESC, ticket_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return models.PublicSnapshot{}, err
	}
	defer rows.Close()

	tickets, err := collectTickets(rows)
	if err != nil {
		return models.PublicSnapshot{}, err
	}

	var snapshot models.PublicSnapshot
	snapshot.Tickets = tickets
	for _, ticket := range tickets {
		switch ticket.Status {
		case models.StatusOpen:
			snapshot.Open++
		case models.StatusCalled:
			snapshot.Called++
		case models.StatusCompleted:
			snapshot.Completed++
		case models.StatusNoShow:
			snapshot.NoShow++
		}
	}
	snapshot.Total = len(tickets)
	return snapshot, nil
}

func (s *Store) ListAuditEntries(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT audit_id, admin_id, action, ticket_id, details, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var entry models.AuditEntry
		var adminIDNull, ticketIDNull sql.NullString
		if err := rows.Scan(&entry.AuditID, &adminIDNull, &entry.Action, &ticketIDNull, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.AdminID = nullStringPtr(adminIDNull)
		entry.TicketID = nullStringPtr(ticketIDNull)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func insertAuditEntry(ctx context.Context, tx pgx.Tx, adminID, action, ticketID, details string, at time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO audit_logs (audit_id, admin_id, action, ticket_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), nullIfEmpty(adminID), action, nullIfEmpty(ticketID), details, at)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner, ticket *models.Ticket) error {
	var userIDNull, adminIDNull sql.NullString
	var calledAtNull, completedAtNull sql.NullTime
	if err := row.Scan(&ticket.TicketID, &userIDNull, &ticket.TicketNumber, &ticket.Status, &ticket.Counter,
		&ticket.CreatedAt, &calledAtNull, &completedAtNull, &adminIDNull); err != nil {
		return err
	}
	ticket.UserID = nullStringPtr(userIDNull)
	ticket.CalledAt = nullTimePtr(calledAtNull)
	ticket.CompletedAt = nullTimePtr(completedAtNull)
	ticket.AdminID = nullStringPtr(adminIDNull)
	return nil
}

func collectTickets(rows pgx.Rows) ([]models.Ticket, error) {
	var tickets []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func dayBounds(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return from, from.Add(24 * time.Hour)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	v := value.Time
	return &v
}

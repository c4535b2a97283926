package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lg12346/FilaVirtual/internal/models"
	"github.com/lg12346/FilaVirtual/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests run against a real database when TEST_DB_DSN (or DB_DSN)
// is set. Each test run works in its own schema and drops it afterwards.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	schema := "qtest_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
		pool.Close()
	})

	if _, err := pool.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	applyMigrations(t, pool)
	return NewStore(pool)
}

func applyMigrations(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	files, err := filepath.Glob(filepath.Join("..", "..", "..", "migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no migration files found")
	}
	sort.Strings(files)
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		if _, err := pool.Exec(context.Background(), string(data)); err != nil {
			t.Fatalf("apply %s: %v", file, err)
		}
	}
}

func registerUser(t *testing.T, st *Store, role string) models.User {
	t.Helper()
	user, err := st.Register(context.Background(), store.RegisterInput{
		Name:     "Pessoa " + uuid.NewString()[:8],
		Email:    uuid.NewString() + "@example.com",
		Password: "s3cret",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return user
}

func createTicket(t *testing.T, st *Store, userID string) models.Ticket {
	t.Helper()
	ticket, err := st.CreateTicket(context.Background(), store.CreateTicketInput{UserID: userID})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return ticket
}

func TestCreateTicketSequential(t *testing.T) {
	st := newTestStore(t)
	user := registerUser(t, st, models.RoleUser)

	first := createTicket(t, st, user.UserID)
	second := createTicket(t, st, user.UserID)

	if first.TicketNumber != 1 || second.TicketNumber != 2 {
		t.Fatalf("numbers = %d, %d; want 1, 2", first.TicketNumber, second.TicketNumber)
	}
	if first.Status != models.StatusOpen {
		t.Fatalf("status = %q, want open", first.Status)
	}
	if first.UserID == nil || *first.UserID != user.UserID {
		t.Fatalf("user id = %v, want %s", first.UserID, user.UserID)
	}
}

func TestConcurrentCreateContiguousNumbers(t *testing.T) {
	st := newTestStore(t)
	user := registerUser(t, st, models.RoleUser)

	const n = 20
	var wg sync.WaitGroup
	numbers := make(chan int, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := st.CreateTicket(context.Background(), store.CreateTicketInput{UserID: user.UserID})
			if err != nil {
				errs <- err
				return
			}
			numbers <- ticket.TicketNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("create ticket: %v", err)
	}
	seen := make(map[int]bool, n)
	for number := range numbers {
		if seen[number] {
			t.Fatalf("number %d allocated twice", number)
		}
		seen[number] = true
	}
	for i := 1; i <= n; i++ {
		if !seen[i] {
			t.Fatalf("number %d missing; allocation left a gap", i)
		}
	}
}

func TestCallNextIsFIFO(t *testing.T) {
	st := newTestStore(t)
	admin := registerUser(t, st, models.RoleAdmin)
	user := registerUser(t, st, models.RoleUser)

	first := createTicket(t, st, user.UserID)
	createTicket(t, st, user.UserID)

	called, err := st.CallNext(context.Background(), store.CallInput{AdminID: admin.UserID, Counter: "2"})
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if called.TicketID != first.TicketID {
		t.Fatalf("called %s, want oldest %s", called.TicketID, first.TicketID)
	}
	if called.Status != models.StatusCalled || called.Counter != "2" {
		t.Fatalf("unexpected ticket %+v", called)
	}
	if called.CalledAt == nil || called.AdminID == nil || *called.AdminID != admin.UserID {
		t.Fatalf("call metadata missing on %+v", called)
	}

	entries, err := st.ListAuditEntries(context.Background(), 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	var found bool
	for _, entry := range entries {
		if entry.Action == "call_ticket" && entry.TicketID != nil && *entry.TicketID == called.TicketID {
			found = true
		}
	}
	if !found {
		t.Fatal("call_ticket audit entry missing")
	}
}

func TestCallNextSkipsAlreadyCalled(t *testing.T) {
	st := newTestStore(t)
	admin := registerUser(t, st, models.RoleAdmin)
	user := registerUser(t, st, models.RoleUser)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	first, err := st.CreateTicket(ctx, store.CreateTicketInput{UserID: user.UserID, CreatedAt: base})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := st.CreateTicket(ctx, store.CreateTicketInput{UserID: user.UserID, CreatedAt: base.Add(time.Second)})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	called, err := st.CallNext(ctx, store.CallInput{AdminID: admin.UserID, Counter: "1"})
	if err != nil {
		t.Fatalf("first call next: %v", err)
	}
	if called.TicketID != first.TicketID {
		t.Fatalf("first call returned %s, want %s", called.TicketID, first.TicketID)
	}

	called, err = st.CallNext(ctx, store.CallInput{AdminID: admin.UserID, Counter: "1"})
	if err != nil {
		t.Fatalf("second call next: %v", err)
	}
	if called.TicketID != second.TicketID {
		t.Fatalf("second call returned %s, want %s; the called ticket was selected again", called.TicketID, second.TicketID)
	}

	if _, err := st.CallNext(ctx, store.CallInput{AdminID: admin.UserID, Counter: "1"}); !errors.Is(err, store.ErrNoOpenTicket) {
		t.Fatalf("third call next: err = %v, want ErrNoOpenTicket", err)
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	st := newTestStore(t)
	admin := registerUser(t, st, models.RoleAdmin)

	_, err := st.CallNext(context.Background(), store.CallInput{AdminID: admin.UserID, Counter: "1"})
	if !errors.Is(err, store.ErrNoOpenTicket) {
		t.Fatalf("err = %v, want ErrNoOpenTicket", err)
	}
}

func TestTicketLifecycle(t *testing.T) {
	st := newTestStore(t)
	admin := registerUser(t, st, models.RoleAdmin)
	user := registerUser(t, st, models.RoleUser)
	ctx := context.Background()

	ticket := createTicket(t, st, user.UserID)

	// complete before call is rejected
	_, err := st.CompleteTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: ticket.TicketID})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("complete open ticket: err = %v, want ErrInvalidState", err)
	}

	called, err := st.CallTicket(ctx, store.CallInput{AdminID: admin.UserID, TicketID: ticket.TicketID, Counter: "1"})
	if err != nil {
		t.Fatalf("call specific: %v", err)
	}
	if called.Status != models.StatusCalled {
		t.Fatalf("status = %q, want called", called.Status)
	}

	// calling an already-called ticket is rejected
	_, err = st.CallTicket(ctx, store.CallInput{AdminID: admin.UserID, TicketID: ticket.TicketID, Counter: "1"})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("second call: err = %v, want ErrInvalidState", err)
	}

	completed, err := st.CompleteTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: ticket.TicketID})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != models.StatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("unexpected ticket %+v", completed)
	}

	// completed is terminal
	_, err = st.CompleteTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: ticket.TicketID})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("double complete: err = %v, want ErrInvalidState", err)
	}
	_, err = st.NoShowTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: ticket.TicketID})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("no-show after complete: err = %v, want ErrInvalidState", err)
	}

	_, err = st.CompleteTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: uuid.NewString()})
	if !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("unknown ticket: err = %v, want ErrTicketNotFound", err)
	}
}

func TestNoShow(t *testing.T) {
	st := newTestStore(t)
	admin := registerUser(t, st, models.RoleAdmin)
	user := registerUser(t, st, models.RoleUser)
	ctx := context.Background()

	ticket := createTicket(t, st, user.UserID)

	_, err := st.NoShowTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: ticket.TicketID})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("no-show open ticket: err = %v, want ErrInvalidState", err)
	}

	if _, err := st.CallTicket(ctx, store.CallInput{AdminID: admin.UserID, TicketID: ticket.TicketID, Counter: "1"}); err != nil {
		t.Fatalf("call: %v", err)
	}
	marked, err := st.NoShowTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: ticket.TicketID})
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if marked.Status != models.StatusNoShow {
		t.Fatalf("status = %q, want no_show", marked.Status)
	}
}

func TestCurrentAndHistory(t *testing.T) {
	st := newTestStore(t)
	user := registerUser(t, st, models.RoleUser)
	ctx := context.Background()

	if _, err := st.CurrentTicket(ctx, user.UserID); !errors.Is(err, store.ErrTicketNotFound) {
		t.Fatalf("current without tickets: err = %v, want ErrTicketNotFound", err)
	}

	createTicket(t, st, user.UserID)
	time.Sleep(10 * time.Millisecond)
	second := createTicket(t, st, user.UserID)

	current, err := st.CurrentTicket(ctx, user.UserID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.TicketID != second.TicketID {
		t.Fatalf("current = %s, want latest %s", current.TicketID, second.TicketID)
	}

	history, err := st.ListUserTickets(ctx, user.UserID, 20)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[0].TicketID != second.TicketID {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestStatsAndSnapshot(t *testing.T) {
	st := newTestStore(t)
	admin := registerUser(t, st, models.RoleAdmin)
	user := registerUser(t, st, models.RoleUser)
	ctx := context.Background()

	first := createTicket(t, st, user.UserID)
	createTicket(t, st, user.UserID)
	if _, err := st.CallTicket(ctx, store.CallInput{AdminID: admin.UserID, TicketID: first.TicketID, Counter: "1"}); err != nil {
		t.Fatalf("call: %v", err)
	}

	stats, err := st.StatsToday(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Open != 1 || stats.Called != 1 || stats.Total != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	snapshot, err := st.PublicSnapshot(ctx, 50)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snapshot.Total != len(snapshot.Tickets) {
		t.Fatalf("total %d != %d tickets returned", snapshot.Total, len(snapshot.Tickets))
	}
	if snapshot.Open+snapshot.Called+snapshot.Completed+snapshot.NoShow != snapshot.Total {
		t.Fatalf("per-status counts do not add up in %+v", snapshot.Stats)
	}
}

func TestAdminBoardJoinsOwner(t *testing.T) {
	st := newTestStore(t)
	user := registerUser(t, st, models.RoleUser)
	createTicket(t, st, user.UserID)

	tickets, err := st.ListAdminTickets(context.Background())
	if err != nil {
		t.Fatalf("admin tickets: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("got %d tickets, want 1", len(tickets))
	}
	if tickets[0].UserName != user.Name {
		t.Fatalf("user name = %q, want %q", tickets[0].UserName, user.Name)
	}
}

// The staff board shows called tickets first, then the waiting queue, then the
// finished ones; within a status, oldest first.
func TestAdminBoardOrdering(t *testing.T) {
	st := newTestStore(t)
	admin := registerUser(t, st, models.RoleAdmin)
	user := registerUser(t, st, models.RoleUser)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	created := make([]models.Ticket, 5)
	for i := range created {
		ticket, err := st.CreateTicket(ctx, store.CreateTicketInput{
			UserID:    user.UserID,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("create ticket %d: %v", i, err)
		}
		created[i] = ticket
	}

	call := func(id string) {
		t.Helper()
		if _, err := st.CallTicket(ctx, store.CallInput{AdminID: admin.UserID, TicketID: id, Counter: "1"}); err != nil {
			t.Fatalf("call %s: %v", id, err)
		}
	}

	// oldest ticket completed, second no-show, third left called,
	// fourth and fifth still open
	call(created[0].TicketID)
	if _, err := st.CompleteTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: created[0].TicketID}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	call(created[1].TicketID)
	if _, err := st.NoShowTicket(ctx, store.TicketActionInput{AdminID: admin.UserID, TicketID: created[1].TicketID}); err != nil {
		t.Fatalf("no-show: %v", err)
	}
	call(created[2].TicketID)

	board, err := st.ListAdminTickets(ctx)
	if err != nil {
		t.Fatalf("admin tickets: %v", err)
	}
	want := []string{
		created[2].TicketID, // called
		created[3].TicketID, // open, older
		created[4].TicketID, // open, newer
		created[0].TicketID, // completed
		created[1].TicketID, // no_show
	}
	if len(board) != len(want) {
		t.Fatalf("got %d tickets, want %d", len(board), len(want))
	}
	for i, id := range want {
		if board[i].TicketID != id {
			t.Fatalf("position %d: got %s (%s), want %s", i, board[i].TicketID, board[i].Status, id)
		}
	}
}

func TestAccounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	email := uuid.NewString() + "@example.com"
	user, err := st.Register(ctx, store.RegisterInput{Name: "Maria", Email: email, Password: "s3cret"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != models.RoleUser {
		t.Fatalf("role = %q, want user", user.Role)
	}

	if _, err := st.Register(ctx, store.RegisterInput{Name: "Other", Email: email, Password: "x"}); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("duplicate register: err = %v, want ErrUserExists", err)
	}

	if _, _, err := st.Login(ctx, store.LoginInput{Email: email, Password: "wrong"}); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("bad password: err = %v, want ErrInvalidCredentials", err)
	}

	session, logged, err := st.Login(ctx, store.LoginInput{Email: email, Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.UserID != user.UserID {
		t.Fatalf("logged in as %s, want %s", logged.UserID, user.UserID)
	}
	if !session.ExpiresAt.After(time.Now()) {
		t.Fatalf("session already expired at %v", session.ExpiresAt)
	}

	_, resolved, err := st.GetSession(ctx, session.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if resolved.UserID != user.UserID {
		t.Fatalf("session resolves to %s, want %s", resolved.UserID, user.UserID)
	}

	if _, _, err := st.GetSession(ctx, uuid.NewString()); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("unknown session: err = %v, want ErrSessionNotFound", err)
	}
}

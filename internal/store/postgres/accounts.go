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
	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 24 * time.Hour

func (s *Store) Register(ctx context.Context, input store.RegisterInput) (models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	role := models.RoleUser
	if input.Role == models.RoleAdmin {
		role = models.RoleAdmin
	}

	userID := uuid.NewString()
	createdAt := time.Now().UTC()
	var user models.User
	var emailNull, phoneNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, name, email, phone, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING user_id, name, email, phone, role, created_at
	`, userID, input.Name, nullIfEmpty(input.Email), nullIfEmpty(input.Phone), string(hash), role, createdAt)
	if err := row.Scan(&user.UserID, &user.Name, &emailNull, &phoneNull, &user.Role, &user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return models.User{}, store.ErrUserExists
		}
		return models.User{}, err
	}
	user.Email = emailNull.String
	user.Phone = phoneNull.String
	return user, nil
}

func (s *Store) Login(ctx context.Context, input store.LoginInput) (models.Session, models.User, error) {
	query := `
		SELECT user_id, name, email, phone, password_hash, role, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`
	arg := input.Email
	if input.Email == "" {
		query = `
			SELECT user_id, name, email, phone, password_hash, role, created_at
			FROM users
			WHERE phone = $1
		`
		arg = input.Phone
	}

	var user models.User
	var emailNull, phoneNull sql.NullString
	var passwordHash string
	row := s.pool.QueryRow(ctx, query, arg)
	if err := row.Scan(&user.UserID, &user.Name, &emailNull, &phoneNull, &passwordHash, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.User{}, store.ErrInvalidCredentials
		}
		return models.Session{}, models.User{}, err
	}
	user.Email = emailNull.String
	user.Phone = phoneNull.String

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return models.Session{}, models.User{}, store.ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.UserID, time.Now().UTC().Add(sessionTTL))
	if err != nil {
		return models.Session{}, models.User{}, err
	}
	return session, user, nil
}

func (s *Store) createSession(ctx context.Context, userID string, expiresAt time.Time) (models.Session, error) {
	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	var session models.Session
	var user models.User
	var emailNull, phoneNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at,
		       u.user_id, u.name, u.email, u.phone, u.role, u.created_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW()
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&user.UserID, &user.Name, &emailNull, &phoneNull, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.User{}, store.ErrSessionNotFound
		}
		return models.Session{}, models.User{}, err
	}
	user.Email = emailNull.String
	user.Phone = phoneNull.String
	return session, user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	var emailNull, phoneNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, name, email, phone, role, created_at
		FROM users
		WHERE user_id = $1
	`, userID)
	if err := row.Scan(&user.UserID, &user.Name, &emailNull, &phoneNull, &user.Role, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	user.Email = emailNull.String
	user.Phone = phoneNull.String
	return user, nil
}

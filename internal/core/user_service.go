package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

type userService struct {
	pool *pgxpool.Pool
}

// NewUserService constructs a UserService backed by PostgreSQL.
func NewUserService(pool *pgxpool.Pool) UserService {
	return &userService{pool: pool}
}

const userColumns = `u.id, u.company_id, c.company_code, u.username, u.email, u.password_hash, u.role, u.is_active, u.created_at`

func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	err := row.Scan(&u.ID, &u.CompanyID, &u.CompanyCode, &u.Username, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	return u, err
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// insertUser writes a new user; a taken username is a conflict.
func insertUser(ctx context.Context, q querier, companyID int, username, email, password string, role Role) (int, error) {
	if err := validateCredentials(username, password); err != nil {
		return 0, err
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, err
	}
	var id int
	err = q.QueryRow(ctx, `
		INSERT INTO users (company_id, username, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, companyID, username, strings.ToLower(email), hash, string(role)).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, conflict("username %q is taken", username)
		}
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

func (s *userService) Create(ctx context.Context, companyCode, username, email, password string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, invalid("unknown role %q", role)
	}
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	id, err := insertUser(ctx, s.pool, companyID, strings.TrimSpace(username), strings.TrimSpace(email), password, role)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *userService) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	return u, nil
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u JOIN companies c ON c.id = u.company_id
		WHERE u.username = $1 AND u.is_active = true`,
		username,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("user %q", username)
		}
		return nil, fmt.Errorf("failed to load user %q: %w", username, err)
	}
	return u, nil
}

func (s *userService) GetByID(ctx context.Context, userID int) (*User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users u JOIN companies c ON c.id = u.company_id
		WHERE u.id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("user id=%d", userID)
		}
		return nil, fmt.Errorf("failed to load user id=%d: %w", userID, err)
	}
	return u, nil
}

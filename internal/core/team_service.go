package core

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type teamService struct {
	pool  *pgxpool.Pool
	users UserService
	now   func() time.Time
}

func NewTeamService(pool *pgxpool.Pool, users UserService) TeamService {
	return &teamService{pool: pool, users: users, now: time.Now}
}

func (s *teamService) ListMembers(ctx context.Context, companyCode string) ([]User, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users u JOIN companies c ON c.id = u.company_id
		WHERE u.company_id = $1 AND u.is_active
		ORDER BY u.created_at, u.id
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// lockMember locks an active member and returns their current role.
func lockMember(ctx context.Context, tx pgx.Tx, companyID, userID int) (Role, error) {
	var role Role
	err := tx.QueryRow(ctx,
		"SELECT role FROM users WHERE id = $1 AND company_id = $2 AND is_active FOR UPDATE",
		userID, companyID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", notFound("member %d", userID)
		}
		return "", fmt.Errorf("failed to lock member %d: %w", userID, err)
	}
	return role, nil
}

func countOwners(ctx context.Context, tx pgx.Tx, companyID int) (int, error) {
	var n int
	err := tx.QueryRow(ctx,
		"SELECT count(*) FROM users WHERE company_id = $1 AND role = 'owner' AND is_active", companyID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

func (s *teamService) ChangeRole(ctx context.Context, companyCode string, userID int, role Role) (*User, error) {
	if !role.Valid() {
		return nil, invalid("unknown role %q", role)
	}
	if role == RoleOwner {
		return nil, forbidden("the owner role cannot be assigned")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}
	current, err := lockMember(ctx, tx, companyID, userID)
	if err != nil {
		return nil, err
	}
	if current == RoleOwner {
		n, err := countOwners(ctx, tx, companyID)
		if err != nil {
			return nil, err
		}
		if n <= 1 {
			return nil, conflict("the last owner cannot be demoted")
		}
	}
	if _, err := tx.Exec(ctx, "UPDATE users SET role = $1 WHERE id = $2", string(role), userID); err != nil {
		return nil, fmt.Errorf("failed to change role of member %d: %w", userID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit role change: %w", err)
	}
	return s.users.GetByID(ctx, userID)
}

func (s *teamService) RemoveMember(ctx context.Context, companyCode string, userID int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return err
	}
	current, err := lockMember(ctx, tx, companyID, userID)
	if err != nil {
		return err
	}
	if current == RoleOwner {
		n, err := countOwners(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if n <= 1 {
			return conflict("the last owner cannot be removed")
		}
	}
	if _, err := tx.Exec(ctx, "UPDATE users SET is_active = false WHERE id = $1", userID); err != nil {
		return fmt.Errorf("failed to remove member %d: %w", userID, err)
	}
	return tx.Commit(ctx)
}

// normalizeEmail lowercases addr and checks it parses as a bare address.
func normalizeEmail(addr string) (string, error) {
	addr = strings.ToLower(strings.TrimSpace(addr))
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return "", invalid("%q is not a valid email address", addr)
	}
	return addr, nil
}

func (s *teamService) Invite(ctx context.Context, companyCode string, invitedBy int, email string, role Role) (*Invitation, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, invalid("unknown role %q", role)
	}
	if role == RoleOwner {
		return nil, forbidden("the owner role cannot be assigned")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	companyID, err := resolveCompanyID(ctx, tx, companyCode)
	if err != nil {
		return nil, err
	}

	var member bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE company_id = $1 AND lower(email) = $2 AND is_active)",
		companyID, email).Scan(&member); err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if member {
		return nil, conflict("%s is already a member", email)
	}

	now := s.now()
	// Lapsed invitations no longer block a new one.
	if _, err := tx.Exec(ctx, `
		UPDATE invitations SET status = 'revoked'
		WHERE company_id = $1 AND lower(email) = $2 AND status = 'pending' AND expires_at <= $3
	`, companyID, email, now); err != nil {
		return nil, fmt.Errorf("failed to expire old invitations: %w", err)
	}

	inv := &Invitation{
		CompanyID: companyID,
		Email:     email,
		Role:      role,
		Token:     uuid.NewString(),
		Status:    InvitationPending,
		ExpiresAt: now.Add(InvitationTTL),
	}
	var by *int
	if invitedBy > 0 {
		by = &invitedBy
		inv.InvitedBy = by
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO invitations (company_id, email, role, token, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, companyID, email, string(role), inv.Token, by, inv.ExpiresAt).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, conflict("%s already has a pending invitation", email)
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invitation: %w", err)
	}
	return inv, nil
}

const invitationColumns = `id, company_id, email, role, token, status, invited_by, expires_at, created_at, accepted_at`

func scanInvitation(row pgx.Row) (*Invitation, error) {
	inv := &Invitation{}
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.Email, &inv.Role, &inv.Token, &inv.Status,
		&inv.InvitedBy, &inv.ExpiresAt, &inv.CreatedAt, &inv.AcceptedAt)
	return inv, err
}

// ListInvitations omits tokens: they are only handed out once, on Invite.
func (s *teamService) ListInvitations(ctx context.Context, companyCode, status string) ([]Invitation, error) {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + invitationColumns + " FROM invitations WHERE company_id = $1"
	args := []any{companyID}
	if status != "" {
		switch status {
		case InvitationPending, InvitationAccepted, InvitationRevoked:
		default:
			return nil, invalid("unknown invitation status %q", status)
		}
		args = append(args, status)
		q += " AND status = $2"
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		inv.Token = ""
		out = append(out, *inv)
	}
	return out, rows.Err()
}

func (s *teamService) RevokeInvitation(ctx context.Context, companyCode string, invitationID int) error {
	companyID, err := resolveCompanyID(ctx, s.pool, companyCode)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE invitations SET status = 'revoked'
		WHERE id = $1 AND company_id = $2 AND status = 'pending'
	`, invitationID, companyID)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation %d: %w", invitationID, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("pending invitation %d", invitationID)
	}
	return nil
}

func (s *teamService) AcceptInvitation(ctx context.Context, token, username, password string) (*User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inv, err := scanInvitation(tx.QueryRow(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE token = $1 FOR UPDATE", strings.TrimSpace(token)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("invitation")
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}
	if inv.Status != InvitationPending {
		return nil, conflict("invitation is %s", inv.Status)
	}
	if !s.now().Before(inv.ExpiresAt) {
		return nil, conflict("invitation expired on %s", inv.ExpiresAt.Format(dateLayout))
	}

	id, err := insertUser(ctx, tx, inv.CompanyID, strings.TrimSpace(username), inv.Email, password, inv.Role)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		"UPDATE invitations SET status = 'accepted', accepted_at = now() WHERE id = $1", inv.ID); err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}
	return s.users.GetByID(ctx, id)
}

package core

import (
	"context"
	"time"
)

type Role string

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleViewer     Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleAccountant, RoleViewer:
		return true
	}
	return false
}

// rank orders roles by privilege; unknown roles rank below viewer.
func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleAccountant:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// AtLeast reports whether r carries at least the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank() && r.rank() > 0
}

// User is a team member of one company.
type User struct {
	ID           int       `json:"id"`
	CompanyID    int       `json:"company_id"`
	CompanyCode  string    `json:"company_code"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

const minPasswordLength = 8

func validateCredentials(username, password string) error {
	if n := len(username); n < 3 || n > 32 {
		return invalid("username must be 3-32 characters")
	}
	if len(password) < minPasswordLength {
		return invalid("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

type UserService interface {
	// Create adds an active user to the company with a bcrypt-hashed password.
	Create(ctx context.Context, companyCode, username, email, password string, role Role) (*User, error)
	// Authenticate returns the active user matching the credentials or ErrUnauthorized.
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, userID int) (*User, error)
}

// Invitation is a pending offer to join a company with a role.
type Invitation struct {
	ID         int        `json:"id"`
	CompanyID  int        `json:"company_id"`
	Email      string     `json:"email"`
	Role       Role       `json:"role"`
	Token      string     `json:"token,omitempty"`
	Status     string     `json:"status"`
	InvitedBy  *int       `json:"invited_by,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRevoked  = "revoked"
)

// InvitationTTL is how long an invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

type TeamService interface {
	ListMembers(ctx context.Context, companyCode string) ([]User, error)
	// ChangeRole sets a member's role. The owner role cannot be granted and the
	// last owner cannot be demoted.
	ChangeRole(ctx context.Context, companyCode string, userID int, role Role) (*User, error)
	// RemoveMember deactivates a member. The last owner cannot be removed.
	RemoveMember(ctx context.Context, companyCode string, userID int) error
	Invite(ctx context.Context, companyCode string, invitedBy int, email string, role Role) (*Invitation, error)
	ListInvitations(ctx context.Context, companyCode, status string) ([]Invitation, error)
	RevokeInvitation(ctx context.Context, companyCode string, invitationID int) error
	// AcceptInvitation creates the invited user and consumes the token.
	AcceptInvitation(ctx context.Context, token, username, password string) (*User, error)
}

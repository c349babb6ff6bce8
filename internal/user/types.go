// Package user holds end-customer accounts, scoped uniquely to
// (tenant, email), and the referral relation between them.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

var (
	ErrNotFound     = errors.New("user: not found")
	ErrEmailTaken   = errors.New("user: email already registered")
	ErrInvalidInput = errors.New("user: invalid input")
)

// User is an end customer of exactly one tenant.
type User struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenant_id"`
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	Phone        string `json:"phone,omitempty"`
	Active       bool   `json:"is_active"`
	ReferralCode string `json:"referral_code"`
	// ReferredBy links to another user of the same tenant; empty when the
	// account was not referred.
	ReferredBy string `json:"referred_by_user_id,omitempty"`

	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Registration is the signup payload. ReferralCode is the code of the
// referring user, if any.
type Registration struct {
	TenantID     string
	Email        string
	Password     string
	FullName     string
	Phone        string
	ReferralCode string
}

// Validate checks required fields before any storage work.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("%w: tenant is required", ErrInvalidInput)
	}
	email := strings.TrimSpace(r.Email)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if strings.TrimSpace(r.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	return nil
}

// Store is the persistence surface for accounts. Register performs the quota
// check, the insert, the users_count increment and the optional referral row
// inside one transaction.
type Store interface {
	Register(ctx context.Context, reg Registration, passwordHash string) (*User, error)
	UserByID(ctx context.Context, tenantID, id string) (*User, error)
	UserByEmail(ctx context.Context, tenantID, email string) (*User, error)
	ListUsers(ctx context.Context, tenantID string) ([]*User, error)
}

// NewReferralCode derives a shareable code from the holder's name: a
// three-letter prefix plus the last six digits of the timestamp.
func NewReferralCode(fullName string, now time.Time) string {
	prefix := make([]rune, 0, 3)
	for _, r := range strings.ToUpper(fullName) {
		if unicode.IsLetter(r) {
			prefix = append(prefix, r)
			if len(prefix) == 3 {
				break
			}
		}
	}
	for len(prefix) < 3 {
		prefix = append(prefix, 'X')
	}
	ms := fmt.Sprintf("%d", now.UnixMilli())
	return string(prefix) + ms[len(ms)-6:]
}

// Package order records challenge purchases. An order starts pending and is
// moved to completed or failed by the tenant admin; completed orders are the
// consistency boundary for revenue annotations and certificate eligibility.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("order: not found")
	ErrInvalidInput = errors.New("order: invalid input")
	// ErrNotPending is returned when settling an order that already left the
	// pending state.
	ErrNotPending = errors.New("order: payment already settled")
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

type Order struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	UserID        string          `json:"user_id"`
	ChallengeID   string          `json:"challenge_id"`
	FinalPrice    decimal.Decimal `json:"final_price"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Placement captures a purchase request. FinalPrice is the challenge entry
// fee at placement time; price changes after the fact do not reprice the
// order.
type Placement struct {
	TenantID    string
	UserID      string
	ChallengeID string
	FinalPrice  decimal.Decimal
}

func (p Placement) Validate() error {
	if p.TenantID == "" || p.UserID == "" || p.ChallengeID == "" {
		return fmt.Errorf("%w: tenant, user and challenge are required", ErrInvalidInput)
	}
	if p.FinalPrice.IsNegative() {
		return fmt.Errorf("%w: negative price", ErrInvalidInput)
	}
	return nil
}

// Store reads and writes orders scoped to one tenant. Ids from other tenants
// behave as absent.
type Store interface {
	Place(ctx context.Context, p Placement) (*Order, error)
	// Settle moves a pending order to completed or failed.
	Settle(ctx context.Context, tenantID, id string, status PaymentStatus) (*Order, error)
	OrderByID(ctx context.Context, tenantID, id string) (*Order, error)
	ListByUser(ctx context.Context, tenantID, userID string) ([]Order, error)
	ListByChallenge(ctx context.Context, tenantID, challengeID string) ([]Order, error)
}

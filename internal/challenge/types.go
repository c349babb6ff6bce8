// Package challenge owns the challenge configuration aggregate: a header row
// plus three child collections (ordered rule sections, one restrictions row,
// a market-segment set) that are only ever written together.
package challenge

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("challenge: not found")
	// ErrHasOrders blocks deletion; the actionable alternative is archiving.
	ErrHasOrders         = errors.New("challenge: has dependent orders")
	ErrInvalidTransition = errors.New("challenge: invalid status transition")
	ErrInvalidInput      = errors.New("challenge: invalid input")
)

// Status is the challenge lifecycle state. Transitions: draft→published
// (publish), draft→archived, published→archived. Nothing leaves archived.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// CanArchive reports whether the archive transition is allowed from s.
func (s Status) CanArchive() bool { return s == StatusDraft || s == StatusPublished }

// RuleSection is one ordered block of rules. Order is supplied by the caller
// and preserved verbatim on every read — it defines display and evaluation
// order.
type RuleSection struct {
	Name  string            `json:"section_name"`
	Order int               `json:"section_order"`
	Rules map[string]string `json:"rules"`
}

// Restrictions is the fixed set of trading-permission flags; exactly one row
// per challenge.
type Restrictions struct {
	NewsTrading      bool `json:"news_trading_allowed"`
	Scalping         bool `json:"scalping_allowed"`
	Hedging          bool `json:"hedging_allowed"`
	Martingale       bool `json:"martingale_allowed"`
	ExpertAdvisors   bool `json:"ea_allowed"`
	CopyTrading      bool `json:"copy_trading_allowed"`
	Grid             bool `json:"grid_allowed"`
	Arbitrage        bool `json:"arbitrage_allowed"`
	OvernightHolding bool `json:"overnight_holding_allowed"`
	WeekendHolding   bool `json:"weekend_holding_allowed"`
}

// DefaultRestrictions returns the documented defaults: common styles are
// permitted, high-risk styles (martingale, grid, arbitrage) are not.
func DefaultRestrictions() Restrictions {
	return Restrictions{
		NewsTrading:      true,
		Scalping:         true,
		Hedging:          true,
		ExpertAdvisors:   true,
		CopyTrading:      true,
		OvernightHolding: true,
		WeekendHolding:   true,
	}
}

// RestrictionsInput is the create-time payload: each omitted flag takes its
// documented default. Update payloads use Restrictions directly — the caller
// must supply the complete set there.
type RestrictionsInput struct {
	NewsTrading      *bool `json:"news_trading_allowed"`
	Scalping         *bool `json:"scalping_allowed"`
	Hedging          *bool `json:"hedging_allowed"`
	Martingale       *bool `json:"martingale_allowed"`
	ExpertAdvisors   *bool `json:"ea_allowed"`
	CopyTrading      *bool `json:"copy_trading_allowed"`
	Grid             *bool `json:"grid_allowed"`
	Arbitrage        *bool `json:"arbitrage_allowed"`
	OvernightHolding *bool `json:"overnight_holding_allowed"`
	WeekendHolding   *bool `json:"weekend_holding_allowed"`
}

// WithDefaults resolves omitted flags to their defaults.
func (in RestrictionsInput) WithDefaults() Restrictions {
	out := DefaultRestrictions()
	apply := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&out.NewsTrading, in.NewsTrading)
	apply(&out.Scalping, in.Scalping)
	apply(&out.Hedging, in.Hedging)
	apply(&out.Martingale, in.Martingale)
	apply(&out.ExpertAdvisors, in.ExpertAdvisors)
	apply(&out.CopyTrading, in.CopyTrading)
	apply(&out.Grid, in.Grid)
	apply(&out.Arbitrage, in.Arbitrage)
	apply(&out.OvernightHolding, in.OvernightHolding)
	apply(&out.WeekendHolding, in.WeekendHolding)
	return out
}

// Header is the challenge root row without its child collections.
type Header struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Name        string          `json:"challenge_name"`
	Type        string          `json:"challenge_type"`
	AccountSize decimal.Decimal `json:"account_size"`
	EntryFee    decimal.Decimal `json:"entry_fee"`
	Leverage    string          `json:"leverage"`
	Currency    string          `json:"currency"`
	Refundable  bool            `json:"is_refundable"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Challenge is the fully assembled aggregate.
type Challenge struct {
	Header
	Sections     []RuleSection `json:"rules_sections"`
	Restrictions Restrictions  `json:"restrictions"`
	Segments     []string      `json:"segments"`
}

// Draft is the caller-supplied aggregate payload for Create.
type Draft struct {
	Name         string            `json:"challenge_name"`
	Type         string            `json:"challenge_type"`
	AccountSize  decimal.Decimal   `json:"account_size"`
	EntryFee     decimal.Decimal   `json:"entry_fee"`
	Leverage     string            `json:"leverage"`
	Currency     string            `json:"currency"`
	Refundable   bool              `json:"is_refundable"`
	Sections     []RuleSection     `json:"rules_sections"`
	Restrictions RestrictionsInput `json:"restrictions"`
	Segments     []string          `json:"segments"`
}

// Update is the full-replace payload: sections and segments replace the
// existing sets wholesale; restrictions must be complete (no defaulting).
type Update struct {
	Name         string          `json:"challenge_name"`
	AccountSize  decimal.Decimal `json:"account_size"`
	EntryFee     decimal.Decimal `json:"entry_fee"`
	Leverage     string          `json:"leverage"`
	Currency     string          `json:"currency"`
	Refundable   bool            `json:"is_refundable"`
	Sections     []RuleSection   `json:"rules_sections"`
	Restrictions Restrictions    `json:"restrictions"`
	Segments     []string        `json:"segments"`
}

// Summary is a list row: the header annotated with completed-order sales and
// revenue. A read-side aggregation, not part of the write invariants.
type Summary struct {
	Header
	SalesCount   int             `json:"sales_count"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// ListFilter narrows List output.
type ListFilter struct {
	Status Status
}

// CopySuffix marks duplicated challenges' provenance in their name.
const CopySuffix = " (Copy)"

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: challenge name is required", ErrInvalidInput)
	}
	return nil
}

// ValidateDraft checks a create payload.
func ValidateDraft(d Draft) error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	if d.AccountSize.IsNegative() || d.EntryFee.IsNegative() {
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidInput)
	}
	return validateSections(d.Sections)
}

// ValidateUpdate checks a replace payload.
func ValidateUpdate(u Update) error {
	if err := validateName(u.Name); err != nil {
		return err
	}
	if u.AccountSize.IsNegative() || u.EntryFee.IsNegative() {
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidInput)
	}
	return validateSections(u.Sections)
}

func validateSections(sections []RuleSection) error {
	for _, s := range sections {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%w: rule section name is required", ErrInvalidInput)
		}
	}
	return nil
}

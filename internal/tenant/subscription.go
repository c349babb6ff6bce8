package tenant

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSubscriptionExpired blocks admin operations until the tenant renews.
	ErrSubscriptionExpired = errors.New("tenant: subscription expired")
	// ErrSuspended blocks admin operations until the platform operator intervenes.
	ErrSuspended = errors.New("tenant: account suspended")
)

// RenewalNoticeWindow is how close to the subscription end date an advisory
// warning is attached to otherwise-successful admin operations.
const RenewalNoticeWindow = 7 * 24 * time.Hour

// Advisory is a non-blocking warning attached to a result. It is never an
// error.
type Advisory struct {
	DaysRemaining int
}

func (a Advisory) String() string {
	return fmt.Sprintf("subscription expires in %d days", a.DaysRemaining)
}

// CheckSubscription gates an admin actor on live subscription state.
// Expired and suspended are distinct blocking failures; an active
// subscription ending within the notice window yields an advisory instead.
func CheckSubscription(t *Tenant, now time.Time) (*Advisory, error) {
	if t == nil {
		return nil, ErrNotFound
	}
	switch t.SubscriptionStatus {
	case SubscriptionExpired:
		return nil, ErrSubscriptionExpired
	case SubscriptionSuspended:
		return nil, ErrSuspended
	}

	if t.SubscriptionEnd.IsZero() {
		return nil, nil
	}
	remaining := t.SubscriptionEnd.Sub(now)
	if remaining > 0 && remaining <= RenewalNoticeWindow {
		days := int((remaining + 24*time.Hour - time.Nanosecond) / (24 * time.Hour))
		return &Advisory{DaysRemaining: days}, nil
	}
	return nil, nil
}

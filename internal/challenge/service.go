package challenge

import "context"

// Service is the aggregate manager contract. Every operation is tenant
// scoped: ids belonging to another tenant are indistinguishable from absent
// ones (ErrNotFound). Implementations must make each mutating operation
// atomic — the header and its three child collections are either all written
// or the prior state is intact.
type Service interface {
	// Create writes the header plus children in one transaction. Drafts are
	// free: quota is not consulted here.
	Create(ctx context.Context, tenantID string, d Draft) (*Challenge, error)

	// Get assembles header + ordered sections + restrictions (defaults when
	// the row is absent) + segment set.
	Get(ctx context.Context, tenantID, id string) (*Challenge, error)

	// List returns tenant-scoped summaries, newest first, annotated with
	// completed-order sales counts and revenue.
	List(ctx context.Context, tenantID string, f ListFilter) ([]Summary, error)

	// ListPublished is the public storefront view: published challenges with
	// participant counts.
	ListPublished(ctx context.Context, tenantID string) ([]Summary, error)

	// Update replaces the aggregate: header in place, sections and segments
	// delete-then-insert, restrictions field-by-field, one transaction.
	Update(ctx context.Context, tenantID, id string, u Update) (*Challenge, error)

	// Publish flips draft→published and increments the tenant's
	// challenges_used counter in the same transaction, subject to the plan's
	// challenge limit.
	Publish(ctx context.Context, tenantID, id string) error

	// Duplicate copies the aggregate under a new id with status draft and a
	// provenance-suffixed name; source rows are read inside the same
	// transaction that writes the copy.
	Duplicate(ctx context.Context, tenantID, id string) (*Challenge, error)

	// Archive moves draft or published to archived. Archiving never frees
	// quota.
	Archive(ctx context.Context, tenantID, id string) error

	// Delete removes the aggregate, permitted from any status only when no
	// orders reference it; otherwise ErrHasOrders.
	Delete(ctx context.Context, tenantID, id string) error
}

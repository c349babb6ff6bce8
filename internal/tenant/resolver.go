package tenant

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Lookup is the subset of Store the resolver needs.
type Lookup interface {
	TenantBySubdomain(ctx context.Context, label string) (*Tenant, error)
	TenantByDomain(ctx context.Context, host string) (*Tenant, error)
}

// Resolver maps an inbound request's host identity to a tenant. A miss is
// not an error: downstream operations that require a tenant check for its
// absence explicitly.
type Resolver struct {
	store Lookup
}

func NewResolver(store Lookup) *Resolver {
	return &Resolver{store: store}
}

// Resolve tries the first host label against registered subdomains, then the
// full host against custom domains. Subdomain wins if both would match.
// Only active tenants resolve; the store enforces that.
func (r *Resolver) Resolve(ctx context.Context, host string) (*Tenant, error) {
	host = normalizeHost(host)
	if host == "" {
		return nil, nil
	}

	if label := subdomainLabel(host); label != "" {
		t, err := r.store.TenantBySubdomain(ctx, label)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	t, err := r.store.TenantByDomain(ctx, host)
	if err == nil {
		return t, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return nil, err
}

// normalizeHost strips the port and lowercases the host.
func normalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return host
}

// subdomainLabel returns the first label of a multi-label host, or "" when
// there is nothing before the first dot.
func subdomainLabel(host string) string {
	idx := strings.IndexByte(host, '.')
	if idx <= 0 {
		return ""
	}
	return host[:idx]
}

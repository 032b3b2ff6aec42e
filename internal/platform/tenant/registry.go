package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// Known tenant names. Sessions and assignment tokens may only reference these.
const (
	Lagom   = "lagom"
	Insight = "insight"
)

var known = map[string]struct{}{
	Lagom:   {},
	Insight: {},
}

var ErrUnknownTenant = errors.New("unknown tenant")

// IsKnown reports whether name is one of the compiled-in tenants.
func IsKnown(name string) bool {
	_, ok := known[name]
	return ok
}

// Handle is the long-lived data access handle of one tenant.
type Handle struct {
	Name string
	DB   *sql.DB
}

type Resolver interface {
	Resolve(name string) (*Handle, error)
	Names() []string
}

// Registry maps tenant names to their handles. It is built once at start-up and only read afterwards.
type Registry struct {
	handles map[string]*Handle
}

func NewRegistry(dbs map[string]*sql.DB) (*Registry, error) {
	r := &Registry{handles: make(map[string]*Handle, len(dbs))}
	for name, db := range dbs {
		if !IsKnown(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTenant, name)
		}
		if db == nil {
			return nil, fmt.Errorf("tenant %q: nil database", name)
		}
		r.handles[name] = &Handle{Name: name, DB: db}
	}
	return r, nil
}

func (r *Registry) Resolve(name string) (*Handle, error) {
	h, ok := r.handles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTenant, name)
	}
	return h, nil
}

// Names returns the configured tenants in a stable order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handles))
	for name := range r.handles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Ping checks every tenant database.
func (r *Registry) Ping(ctx context.Context) map[string]error {
	out := make(map[string]error, len(r.handles))
	for name, h := range r.handles {
		out[name] = h.DB.PingContext(ctx)
	}
	return out
}

func (r *Registry) Close() error {
	var errs []error
	for _, h := range r.handles {
		if err := h.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", h.Name, err))
		}
	}
	return errors.Join(errs...)
}

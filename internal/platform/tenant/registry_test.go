package tenant

import (
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	_ "modernc.org/sqlite"
)

func openDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), name+".db"))
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRegistryResolve(t *testing.T) {
	lagom, insight := openDB(t, Lagom), openDB(t, Insight)
	r, err := NewRegistry(map[string]*sql.DB{Lagom: lagom, Insight: insight})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	h, err := r.Resolve(Lagom)
	if err != nil {
		t.Fatalf("Resolve(lagom): %v", err)
	}
	if h.DB != lagom || h.Name != Lagom {
		t.Fatalf("Resolve(lagom) returned the wrong handle: %+v", h)
	}
	if h, _ := r.Resolve(Insight); h.DB != insight {
		t.Fatalf("Resolve(insight) returned the lagom handle")
	}

	for _, name := range []string{"", "LAGOM", "other"} {
		if _, err := r.Resolve(name); !errors.Is(err, ErrUnknownTenant) {
			t.Errorf("Resolve(%q) = %v, want ErrUnknownTenant", name, err)
		}
	}

	if got, want := r.Names(), []string{Insight, Lagom}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	for name, err := range r.Ping(testContext(t)) {
		if err != nil {
			t.Errorf("Ping(%s): %v", name, err)
		}
	}
}

func TestNewRegistryRejectsUnknownTenant(t *testing.T) {
	_, err := NewRegistry(map[string]*sql.DB{"acme": openDB(t, "acme")})
	if !errors.Is(err, ErrUnknownTenant) {
		t.Fatalf("NewRegistry = %v, want ErrUnknownTenant", err)
	}
}

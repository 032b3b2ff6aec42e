package tokens

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"parc-backend/internal/platform/dbtest"
	"parc-backend/internal/platform/tenant"
)

func storeRecord(t *testing.T, db *sql.DB, l *Ledger, token string, issued, expires time.Time) *Record {
	t.Helper()
	r := &Record{
		TokenID:    "tok-" + token,
		Token:      token,
		EmployeeID: 5,
		Kind:       KindEquipment,
		ItemIDs:    []int64{1, 2},
		Tenant:     tenant.Lagom,
		IssuedAt:   issued,
		ExpiresAt:  expires,
	}
	if err := l.Store(testContext(t), db, tenant.Lagom, r); err != nil {
		t.Fatalf("Store: %v", err)
	}
	return r
}

func TestLedgerStoreAndLookup(t *testing.T) {
	db := dbtest.Open(t, tenant.Lagom)
	l := NewLedger()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	storeRecord(t, db, l, "abc", now, now.Add(DefaultTTL))

	r, err := l.Lookup(testContext(t), db, "abc")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if r.Status != StatusPending || r.EmployeeID != 5 || len(r.ItemIDs) != 2 || r.UsedAt != nil {
		t.Fatalf("record = %+v", r)
	}
	if !r.ExpiresAt.Equal(now.Add(DefaultTTL)) {
		t.Errorf("ExpiresAt = %v", r.ExpiresAt)
	}

	if _, err := l.Lookup(testContext(t), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup(missing) = %v, want ErrNotFound", err)
	}
}

func TestLedgerStoreRejectsTenantMismatch(t *testing.T) {
	db := dbtest.Open(t, tenant.Insight)
	r := &Record{TokenID: "x", Token: "x", EmployeeID: 1, Kind: KindLicense, ItemIDs: []int64{1}, Tenant: tenant.Lagom}
	if err := NewLedger().Store(testContext(t), db, tenant.Insight, r); !errors.Is(err, ErrTenantMatch) {
		t.Fatalf("Store = %v, want ErrTenantMatch", err)
	}
	if n := dbtest.Count(t, db, `SELECT COUNT(*) FROM assignment_tokens`); n != 0 {
		t.Fatalf("%d rows written to the wrong tenant", n)
	}
}

func TestLedgerConsumption(t *testing.T) {
	db := dbtest.Open(t, tenant.Lagom)
	l := NewLedger()
	now := time.Now().UTC()
	storeRecord(t, db, l, "abc", now, now.Add(time.Hour))

	consumed, err := l.IsConsumed(testContext(t), db, "abc")
	if err != nil || consumed {
		t.Fatalf("IsConsumed(pending) = %v, %v", consumed, err)
	}
	consumed, err = l.IsConsumed(testContext(t), db, "unknown")
	if err != nil || !consumed {
		t.Fatalf("IsConsumed(unknown) = %v, %v; unknown tokens must block", consumed, err)
	}

	if err := l.Transition(testContext(t), db, "abc", StatusAccepted, now); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := l.Transition(testContext(t), db, "abc", StatusRejected, now); !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("second Transition = %v, want ErrTokenUsed", err)
	}

	r, err := l.CheckPending(testContext(t), db, "abc")
	if !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("CheckPending = %v, want ErrTokenUsed", err)
	}
	if r.Status != StatusAccepted || r.UsedAt == nil {
		t.Fatalf("record after accept = %+v", r)
	}
}

func TestLedgerTransitionRejectsPendingTarget(t *testing.T) {
	db := dbtest.Open(t, tenant.Lagom)
	if err := NewLedger().Transition(testContext(t), db, "abc", StatusPending, time.Now()); err == nil {
		t.Fatal("Transition to PENDING succeeded")
	}
}

func TestLedgerListExpiredPending(t *testing.T) {
	db := dbtest.Open(t, tenant.Lagom)
	l := NewLedger()
	now := time.Date(2026, 6, 10, 2, 0, 0, 0, time.UTC)

	storeRecord(t, db, l, "old", now.Add(-9*24*time.Hour), now.Add(-2*24*time.Hour))
	storeRecord(t, db, l, "older", now.Add(-10*24*time.Hour), now.Add(-3*24*time.Hour))
	storeRecord(t, db, l, "fresh", now.Add(-time.Hour), now.Add(6*24*time.Hour))
	storeRecord(t, db, l, "used", now.Add(-10*24*time.Hour), now.Add(-3*24*time.Hour))
	if err := l.Transition(testContext(t), db, "used", StatusAccepted, now.Add(-5*24*time.Hour)); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := l.ListExpiredPending(testContext(t), db, now, Cursor{}, 10)
	if err != nil {
		t.Fatalf("ListExpiredPending: %v", err)
	}
	if len(got) != 2 || got[0].Token != "older" || got[1].Token != "old" {
		t.Fatalf("expired = %+v", got)
	}
}

func TestLedgerListExpiredPendingPages(t *testing.T) {
	db := dbtest.Open(t, tenant.Lagom)
	l := NewLedger()
	now := time.Date(2026, 6, 10, 2, 0, 0, 0, time.UTC)
	expiry := now.Add(-24 * time.Hour)
	for _, tok := range []string{"t1", "t2", "t3"} {
		storeRecord(t, db, l, tok, expiry.Add(-7*24*time.Hour), expiry)
	}
	storeRecord(t, db, l, "t4", now.Add(-8*24*time.Hour), now.Add(-time.Hour))

	var seen []string
	var after Cursor
	for page := 0; page < 10; page++ {
		got, err := l.ListExpiredPending(testContext(t), db, now, after, 2)
		if err != nil {
			t.Fatalf("ListExpiredPending: %v", err)
		}
		for _, r := range got {
			seen = append(seen, r.Token)
		}
		if len(got) < 2 {
			break
		}
		after = After(got[len(got)-1])
	}
	if len(seen) != 4 || seen[3] != "t4" {
		t.Fatalf("paged = %v, want every stale token once with t4 last", seen)
	}
	uniq := map[string]bool{}
	for _, tok := range seen {
		uniq[tok] = true
	}
	if len(uniq) != 4 {
		t.Errorf("paged = %v, duplicates across pages", seen)
	}
}

func TestLedgerListFilter(t *testing.T) {
	db := dbtest.Open(t, tenant.Lagom)
	l := NewLedger()
	now := time.Now().UTC()
	storeRecord(t, db, l, "a", now.Add(-2*time.Hour), now.Add(time.Hour))
	storeRecord(t, db, l, "b", now.Add(-time.Hour), now.Add(time.Hour))
	if err := l.Transition(testContext(t), db, "a", StatusRejected, now); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	all, err := l.List(testContext(t), db, Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].Token != "b" {
		t.Fatalf("List = %+v", all)
	}

	rejected := StatusRejected
	emp := int64(5)
	got, err := l.List(testContext(t), db, Filter{EmployeeID: &emp, Status: &rejected})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].Token != "a" {
		t.Fatalf("List(rejected) = %+v", got)
	}
}

func TestLedgerListLive(t *testing.T) {
	db := dbtest.Open(t, tenant.Lagom)
	l := NewLedger()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	storeRecord(t, db, l, "live", now, now.Add(time.Hour))
	storeRecord(t, db, l, "stale", now.Add(-DefaultTTL), now.Add(-time.Minute))
	storeRecord(t, db, l, "done", now, now.Add(time.Hour))
	if err := l.Transition(testContext(t), db, "done", StatusAccepted, now); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	live, err := l.ListLive(testContext(t), db, 5, KindEquipment, now)
	if err != nil {
		t.Fatalf("ListLive: %v", err)
	}
	if len(live) != 1 || live[0].Token != "live" {
		t.Fatalf("ListLive = %+v, want only the live token", live)
	}
	if !Covers(live, 2) || Covers(live, 3) {
		t.Errorf("Covers reports the wrong items for %v", live[0].ItemIDs)
	}
	if other, _ := l.ListLive(testContext(t), db, 5, KindLicense, now); len(other) != 0 {
		t.Errorf("ListLive(license) = %d records, want 0", len(other))
	}
}

package tokens

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parc-backend/internal/platform/tenant"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

func newTestCodec(clock *fixedClock) *Codec {
	return NewCodec([]byte("test-secret"), DefaultTTL, clock.Now)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)}
	codec := newTestCodec(clock)

	q := Quantities{}
	q.Set(1, 2)
	issued, err := codec.Issue(7, []int64{1, 4}, q, tenant.Lagom, KindEquipment)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if want := clock.t.Add(7 * 24 * time.Hour); !issued.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", issued.ExpiresAt, want)
	}

	claims, err := codec.Verify(issued.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.EmployeeID != 7 || claims.Database != tenant.Lagom || claims.Type != KindEquipment {
		t.Errorf("claims = %+v", claims)
	}
	if !reflect.DeepEqual(claims.ItemIDs(), []int64{1, 4}) || len(claims.LicenseIDs) != 0 {
		t.Errorf("item ids = %v / %v", claims.ActifIDs, claims.LicenseIDs)
	}
	if n, ok := claims.Quantities.For(1); !ok || n != 2 {
		t.Errorf("quantity for 1 = %d, %v", n, ok)
	}
	if _, ok := claims.Quantities.For(4); ok {
		t.Errorf("quantity for 4 should be absent")
	}
	if claims.TokenID() != issued.TokenID || claims.TokenID() == "" {
		t.Errorf("token id = %q, issued %q", claims.TokenID(), issued.TokenID)
	}
}

func TestIssueLicenseUsesLicenseIDs(t *testing.T) {
	codec := newTestCodec(&fixedClock{t: time.Now()})
	issued, err := codec.Issue(3, []int64{9}, nil, tenant.Insight, KindLicense)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := codec.Verify(issued.Token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(claims.ActifIDs) != 0 || !reflect.DeepEqual(claims.LicenseIDs, []int64{9}) {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestIssueRejectsBadInput(t *testing.T) {
	codec := newTestCodec(&fixedClock{t: time.Now()})
	tests := []struct {
		name   string
		ids    []int64
		tenant string
		kind   Kind
	}{
		{"empty_items", nil, tenant.Lagom, KindEquipment},
		{"unknown_tenant", []int64{1}, "acme", KindEquipment},
		{"unknown_kind", []int64{1}, tenant.Lagom, Kind("vehicle")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Issue(1, tt.ids, nil, tt.tenant, tt.kind); err == nil {
				t.Fatalf("Issue succeeded, want error")
			}
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	clock := &fixedClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	codec := newTestCodec(clock)
	issued, err := codec.Issue(1, []int64{1}, nil, tenant.Lagom, KindEquipment)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.t = clock.t.Add(7*24*time.Hour - time.Minute)
	if _, err := codec.Verify(issued.Token); err != nil {
		t.Fatalf("Verify inside window: %v", err)
	}

	clock.t = clock.t.Add(2 * time.Minute)
	if _, err := codec.Verify(issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Verify after expiry = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsForgedAndMalformed(t *testing.T) {
	clock := &fixedClock{t: time.Now()}
	codec := newTestCodec(clock)
	issued, err := codec.Issue(1, []int64{1}, nil, tenant.Lagom, KindEquipment)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other := NewCodec([]byte("other-secret"), DefaultTTL, clock.Now)
	forged, err := other.Issue(1, []int64{1}, nil, tenant.Lagom, KindEquipment)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, issued.Claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	mixed := &Claims{
		EmployeeID: 1,
		ActifIDs:   []int64{1},
		LicenseIDs: []int64{2},
		Type:       KindEquipment,
		Database:   tenant.Lagom,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "01J0000000000000000000000",
			ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour)),
		},
	}
	mixedToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mixed).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign mixed: %v", err)
	}

	foreign := *mixed
	foreign.LicenseIDs = nil
	foreign.Database = "acme"
	foreignToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &foreign).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign foreign: %v", err)
	}

	for name, tok := range map[string]string{
		"garbage":        "not-a-token",
		"empty":          "",
		"truncated":      issued.Token[:len(issued.Token)-4],
		"other_secret":   forged.Token,
		"alg_none":       noneAlg,
		"mixed_items":    mixedToken,
		"foreign_tenant": foreignToken,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Verify(tok)
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Verify = %v, want ErrInvalidToken", err)
			}
			if !strings.Contains(err.Error(), "invalid or expired") {
				t.Errorf("error text %q", err)
			}
		})
	}
}

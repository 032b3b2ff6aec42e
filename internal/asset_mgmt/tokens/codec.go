package tokens

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"parc-backend/internal/platform/tenant"
)

// ErrInvalidToken covers bad signatures, malformed payloads and expired tokens alike.
var ErrInvalidToken = errors.New("invalid or expired token")

// DefaultTTL is the validity window of an assignment token.
const DefaultTTL = 7 * 24 * time.Hour

// Claims grants "employee E may decide the fate of items [I...] in tenant T".
type Claims struct {
	EmployeeID int64      `json:"employeeId"`
	ActifIDs   []int64    `json:"actifIds,omitempty"`
	LicenseIDs []int64    `json:"licenseIds,omitempty"`
	Quantities Quantities `json:"quantities,omitempty"`
	Type       Kind       `json:"type"`
	Database   string     `json:"database"`
	jwt.RegisteredClaims
}

// ItemIDs returns the id list matching the token type.
func (c *Claims) ItemIDs() []int64 {
	if c.Type == KindLicense {
		return c.LicenseIDs
	}
	return c.ActifIDs
}

func (c *Claims) TokenID() string { return c.ID }

func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

type Issued struct {
	Token     string
	TokenID   string
	ExpiresAt time.Time
	Claims    *Claims
}

type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret []byte, ttl time.Duration, now func() time.Time) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, ttl: ttl, now: now}
}

// Issue signs a token for items of one kind. quantities may be nil.
func (c *Codec) Issue(employeeID int64, itemIDs []int64, quantities Quantities, tenantName string, kind Kind) (*Issued, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("issue token: unknown type %q", kind)
	}
	if len(itemIDs) == 0 {
		return nil, errors.New("issue token: empty item list")
	}
	if !tenant.IsKnown(tenantName) {
		return nil, fmt.Errorf("issue token: %w: %q", tenant.ErrUnknownTenant, tenantName)
	}

	now := c.now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	exp := now.Add(c.ttl).Truncate(time.Second)

	claims := &Claims{
		EmployeeID: employeeID,
		Quantities: quantities,
		Type:       kind,
		Database:   tenantName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.String(),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	ids := append([]int64(nil), itemIDs...)
	if kind == KindLicense {
		claims.LicenseIDs = ids
	} else {
		claims.ActifIDs = ids
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Issued{Token: signed, TokenID: claims.ID, ExpiresAt: exp, Claims: claims}, nil
}

// Verify decodes a token. Every failure is reported as ErrInvalidToken wrapping the cause.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := claims.check(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func (c *Claims) check() error {
	switch c.Type {
	case KindEquipment:
		if len(c.LicenseIDs) > 0 {
			return errors.New("equipment token carries license ids")
		}
	case KindLicense:
		if len(c.ActifIDs) > 0 {
			return errors.New("license token carries equipment ids")
		}
	default:
		return fmt.Errorf("unknown type %q", c.Type)
	}
	if !tenant.IsKnown(c.Database) {
		return fmt.Errorf("unknown database %q", c.Database)
	}
	if c.EmployeeID <= 0 {
		return errors.New("missing employeeId")
	}
	if c.ID == "" {
		return errors.New("missing token id")
	}
	return nil
}

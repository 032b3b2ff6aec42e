package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"parc-backend/internal/platform/tenant"
)

var (
	ErrAlreadyExists = errors.New("already exists")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrUnknownTenant = errors.New("unknown database")
)

const DefaultSessionTTL = 24 * time.Hour

// SessionClaims is the payload of a session token. Database is the tenant the user
// selected at login; every authenticated request is routed to it.
type SessionClaims struct {
	Role     string `json:"role"`
	Database string `json:"database"`
	jwt.RegisteredClaims
}

type Service struct {
	tenants tenant.Resolver
	store   *Store
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

func NewService(tenants tenant.Resolver, secret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{tenants: tenants, store: NewStore(), secret: secret, ttl: ttl, now: time.Now}
}

// Login checks id/password against the accounts of database and returns a signed session token.
func (s *Service) Login(ctx context.Context, database, id, password string) (string, error) {
	h, err := s.tenants.Resolve(database)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownTenant, database)
	}
	acct, err := s.store.GetByID(ctx, h.DB, id)
	if err != nil {
		return "", err
	}
	if acct == nil || acct.IsDisabled {
		return "", ErrAuthFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthFailed
	}

	now := s.now()
	claims := SessionClaims{
		Role:     acct.Role,
		Database: h.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Register creates an account in database.
func (s *Service) Register(ctx context.Context, database, id, password, role string) error {
	h, err := s.tenants.Resolve(database)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownTenant, database)
	}
	exists, err := s.store.GetByID(ctx, h.DB, id)
	if err != nil {
		return err
	}
	if exists != nil {
		return ErrAlreadyExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.Create(ctx, h.DB, &Account{
		ID:           id,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now(),
	})
}

// Secret is the session signing key, shared with RequireAuth.
func (s *Service) Secret() []byte { return s.secret }

package assignments

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	ulid "github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"

	"parc-backend/internal/asset_mgmt/tokens"
	"parc-backend/internal/platform/db"
	"parc-backend/internal/platform/mailer"
	"parc-backend/internal/platform/tenant"
)

// -------------- Clock & ID --------------

type Clock interface{ Now() time.Time }
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ NewULID(t time.Time) string }
type ulidGen struct{}

func (ulidGen) NewULID(t time.Time) string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// -------------- Service --------------

type Service struct {
	tenants tenant.Resolver
	codec   *tokens.Codec
	ledger  *tokens.Ledger
	store   *Store
	mail    mailer.Gateway
	clock   Clock
	id      IDGen
	log     logrus.FieldLogger
	baseURL string
}

func NewService(tenants tenant.Resolver, codec *tokens.Codec, mail mailer.Gateway, publicBaseURL string, log logrus.FieldLogger) *Service {
	return &Service{
		tenants: tenants,
		codec:   codec,
		ledger:  tokens.NewLedger(),
		store:   NewStore(),
		mail:    mail,
		clock:   realClock{},
		id:      ulidGen{},
		log:     log,
		baseURL: publicBaseURL,
	}
}

// opened is a token that passed every check not touching item state.
type opened struct {
	token  string
	claims *tokens.Claims
	handle *tenant.Handle
	spec   kindSpec
	ids    []int64
	log    logrus.FieldLogger
}

// open verifies token, routes to the tenant named in its claims and checks the ledger.
// Everything after open uses o.handle, never the caller's session.
func (s *Service) open(ctx context.Context, kind tokens.Kind, token string) (*opened, error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		s.log.WithError(err).WithField("kind", kind).Debug("token rejected")
		return nil, errInvalidToken()
	}
	log := s.log.WithFields(logrus.Fields{
		"tenant":      claims.Database,
		"token_id":    claims.TokenID(),
		"employee_id": claims.EmployeeID,
		"kind":        claims.Type,
	})
	if claims.Type != kind {
		log.Info("token type does not match the endpoint")
		return nil, errInvalidToken()
	}
	h, err := s.tenants.Resolve(claims.Database)
	if err != nil {
		log.WithError(err).Warn("token names a tenant that is not configured")
		return nil, errInvalidToken()
	}

	rec, err := s.ledger.CheckPending(ctx, h.DB, token)
	switch {
	case errors.Is(err, tokens.ErrNotFound):
		log.Info("token missing from ledger")
		return nil, errInvalidToken()
	case errors.Is(err, tokens.ErrTokenUsed):
		return nil, errTokenUsed()
	case err != nil:
		return nil, err
	}
	if rec.EmployeeID != claims.EmployeeID || rec.Kind != claims.Type || rec.Tenant != h.Name ||
		!slices.Equal(rec.ItemIDs, claims.ItemIDs()) {
		log.Warn("token claims disagree with ledger record")
		return nil, errInvalidToken()
	}
	if !s.clock.Now().Before(rec.ExpiresAt) {
		return nil, errInvalidToken()
	}

	ids := claims.ItemIDs()
	if len(ids) == 0 {
		return nil, ErrInvalid(msgNoItems)
	}
	return &opened{token: token, claims: claims, handle: h, spec: specs[kind], ids: ids, log: log}, nil
}

// checkRelations fails closed unless every id has a relation in the Reserved state.
func (s *Service) checkRelations(ctx context.Context, q db.DBTX, spec kindSpec, employeeID int64, ids []int64, reservedID int64) (map[int64]*Relation, error) {
	rels, err := s.store.ListRelations(ctx, q, spec, employeeID, ids)
	if err != nil {
		return nil, err
	}
	var missing, wrong []ItemState
	for _, id := range ids {
		r, ok := rels[id]
		switch {
		case !ok:
			missing = append(missing, ItemState{ItemID: id, Status: "absent"})
		case !r.StatusID.Valid || r.StatusID.Int64 != reservedID:
			wrong = append(wrong, ItemState{ItemID: id, Status: r.StatusName})
		}
	}
	if len(missing) > 0 {
		return nil, errMismatch(msgNotAssigned, missing)
	}
	if len(wrong) > 0 {
		return nil, errMismatch(msgNotReserved, wrong)
	}
	return rels, nil
}

// ItemView is an item of a token enriched for display.
type ItemView struct {
	Item             *Item
	Quantity         int
	AssignmentStatus string
	DisplayName      string
}

type Validation struct {
	Kind      tokens.Kind
	Employee  *Employee
	Items     []ItemView
	ExpiresAt time.Time
}

// Validate checks token against the ledger and the live relation state without changing anything.
func (s *Service) Validate(ctx context.Context, kind tokens.Kind, token string) (*Validation, error) {
	o, err := s.open(ctx, kind, token)
	if err != nil {
		return nil, err
	}
	q := o.handle.DB

	emp, err := s.store.GetEmployee(ctx, q, o.claims.EmployeeID)
	if err != nil {
		return nil, err
	}
	reservedID, err := s.store.StatusID(ctx, q, StatusReserved)
	if err != nil {
		return nil, err
	}
	rels, err := s.checkRelations(ctx, q, o.spec, emp.ID, o.ids, reservedID)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, q, o.spec, o.ids)
	if err != nil {
		return nil, err
	}

	out := &Validation{Kind: kind, Employee: emp, ExpiresAt: o.claims.Expiry(), Items: make([]ItemView, 0, len(o.ids))}
	for _, id := range o.ids {
		qty, ok := o.claims.Quantities.For(id)
		if !ok || qty <= 0 {
			qty = rels[id].Quantity
		}
		out.Items = append(out.Items, ItemView{
			Item:             items[id],
			Quantity:         qty,
			AssignmentStatus: rels[id].StatusName,
			DisplayName:      displayName(o.spec, items[id]),
		})
	}
	return out, nil
}

func (s *Service) loadItems(ctx context.Context, q db.DBTX, spec kindSpec, ids []int64) (map[int64]*Item, error) {
	items, err := s.store.GetItems(ctx, q, spec, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return nil, ErrNotFound(fmt.Sprintf("%s %d introuvable", spec.entityType, id))
		}
	}
	return items, nil
}

// displayName builds "Marque Modele (SN)" for equipment and "Nom Version" for licenses.
func displayName(spec kindSpec, it *Item) string {
	var parts []string
	if spec.kind == tokens.KindLicense {
		parts = []string{it.Nom, it.Version}
	} else {
		parts = []string{it.Marque, it.Modele}
	}
	name := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if spec.kind == tokens.KindEquipment && it.SerialNumber != "" {
		name += " (" + it.SerialNumber + ")"
	}
	if name == "" {
		name = fmt.Sprintf("%s #%d", spec.entityType, it.ID)
	}
	return norm.NFC.String(name)
}

// Outcome is the result of a terminal transition.
type Outcome struct {
	Kind       tokens.Kind
	TokenID    string
	EmployeeID int64
	ItemIDs    []int64
	EmailSent  bool
}

// Accept moves every reserved relation of the token to Assigned and consumes the token,
// all in one transaction. The confirmation mail is sent after commit.
func (s *Service) Accept(ctx context.Context, kind tokens.Kind, token string, acceptTerms bool) (*Outcome, error) {
	if !acceptTerms {
		return nil, ErrInvalid(msgTermsMissing)
	}
	o, err := s.open(ctx, kind, token)
	if err != nil {
		return nil, err
	}
	q := o.handle.DB

	st, err := s.store.Statuses(ctx, q)
	if err != nil {
		return nil, err
	}
	emp, err := s.store.GetEmployee(ctx, q, o.claims.EmployeeID)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, q, o.spec, o.ids)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = db.RunInTx(ctx, q, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := s.ledger.Transition(ctx, tx, token, tokens.StatusAccepted, now); err != nil {
			if errors.Is(err, tokens.ErrTokenUsed) {
				return errTokenUsed()
			}
			return err
		}
		if _, err := s.checkRelations(ctx, tx, o.spec, emp.ID, o.ids, st.Reserved); err != nil {
			return err
		}
		for _, id := range o.ids {
			if err := s.store.SetRelationStatus(ctx, tx, o.spec, emp.ID, id, st.Reserved, st.Assigned); err != nil {
				return err
			}
			if err := s.store.SyncItemStatus(ctx, tx, o.spec, id, st); err != nil {
				return err
			}
			if err := s.store.InsertActivity(ctx, tx, &Activity{
				LogID:      s.id.NewULID(now),
				EntityType: o.spec.entityType,
				EntityID:   id,
				Action:     ActionAccepted,
				Details:    fmt.Sprintf("attribution acceptée par l'employé %d", emp.ID),
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.log.Info("assignment accepted")

	out := &Outcome{Kind: kind, TokenID: o.claims.TokenID(), EmployeeID: emp.ID, ItemIDs: o.ids}
	err = s.mail.SendConfirmation(ctx, mailer.Confirmation{
		To:           emp.Email,
		EmployeeName: emp.FullName(),
		Kind:         string(kind),
		Items:        names(o.spec, o.ids, items),
	})
	if err != nil {
		o.log.WithError(err).Warn("confirmation mail failed")
	} else {
		out.EmailSent = true
	}
	return out, nil
}

// Reject releases every reserved relation of the token and consumes it. reason is logged,
// never returned.
func (s *Service) Reject(ctx context.Context, kind tokens.Kind, token, reason string) (*Outcome, error) {
	o, err := s.open(ctx, kind, token)
	if err != nil {
		return nil, err
	}
	q := o.handle.DB

	st, err := s.store.Statuses(ctx, q)
	if err != nil {
		return nil, err
	}
	emp, err := s.store.GetEmployee(ctx, q, o.claims.EmployeeID)
	if err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	details := fmt.Sprintf("attribution refusée par l'employé %d", emp.ID)
	if reason != "" {
		details += " : " + reason
	}

	now := s.clock.Now()
	err = db.RunInTx(ctx, q, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := s.ledger.Transition(ctx, tx, token, tokens.StatusRejected, now); err != nil {
			if errors.Is(err, tokens.ErrTokenUsed) {
				return errTokenUsed()
			}
			return err
		}
		if _, err := s.checkRelations(ctx, tx, o.spec, emp.ID, o.ids, st.Reserved); err != nil {
			return err
		}
		for _, id := range o.ids {
			if err := s.store.DeleteRelation(ctx, tx, o.spec, emp.ID, id); err != nil {
				return err
			}
			if err := s.store.SyncItemStatus(ctx, tx, o.spec, id, st); err != nil {
				return err
			}
			if err := s.store.InsertActivity(ctx, tx, &Activity{
				LogID:      s.id.NewULID(now),
				EntityType: o.spec.entityType,
				EntityID:   id,
				Action:     ActionRejected,
				Details:    details,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.log.WithField("reason", reason).Info("assignment rejected")
	return &Outcome{Kind: kind, TokenID: o.claims.TokenID(), EmployeeID: emp.ID, ItemIDs: o.ids}, nil
}

func names(spec kindSpec, ids []int64, items map[int64]*Item) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if it, ok := items[id]; ok {
			out = append(out, displayName(spec, it))
		}
	}
	return out
}

func (s *Service) link(spec kindSpec, token string) (string, error) {
	u, err := url.JoinPath(s.baseURL, "acceptation", spec.urlSegment, token)
	if err != nil {
		return "", ErrConfiguration("invalid public base url")
	}
	return u, nil
}

// sendInvitation mails the acceptance link of an issued token.
func (s *Service) sendInvitation(ctx context.Context, spec kindSpec, emp *Employee, items []string, issued *tokens.Issued) error {
	link, err := s.link(spec, issued.Token)
	if err != nil {
		return err
	}
	return s.mail.SendInvitation(ctx, mailer.Invitation{
		To:           emp.Email,
		EmployeeName: emp.FullName(),
		Kind:         string(spec.kind),
		Items:        items,
		Link:         link,
		ExpiresAt:    issued.ExpiresAt,
	})
}

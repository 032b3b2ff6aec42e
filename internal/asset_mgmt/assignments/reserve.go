package assignments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"parc-backend/internal/asset_mgmt/tokens"
	"parc-backend/internal/platform/db"
	"parc-backend/internal/platform/tenant"
)

type ReserveInput struct {
	EmployeeID int64
	ItemIDs    []int64
	// Quantities is optional; items without an entry reserve one unit.
	Quantities map[int64]int
}

// Reservation describes an issued token. Token is the raw credential and only leaves the
// process inside the invitation mail.
type Reservation struct {
	Kind       tokens.Kind
	TokenID    string
	Token      string
	EmployeeID int64
	ItemIDs    []int64
	ExpiresAt  time.Time
	EmailSent  bool
}

func (in ReserveInput) validate() error {
	if in.EmployeeID <= 0 {
		return ErrInvalid("employeeId requis")
	}
	if len(in.ItemIDs) == 0 {
		return ErrInvalid("au moins un élément est requis")
	}
	seen := make(map[int64]struct{}, len(in.ItemIDs))
	for _, id := range in.ItemIDs {
		if id <= 0 {
			return ErrInvalid(fmt.Sprintf("identifiant d'élément invalide : %d", id))
		}
		if _, dup := seen[id]; dup {
			return ErrInvalid(fmt.Sprintf("élément %d en double", id))
		}
		seen[id] = struct{}{}
	}
	for id, n := range in.Quantities {
		if _, ok := seen[id]; !ok {
			return ErrInvalid(fmt.Sprintf("quantité fournie pour un élément non demandé : %d", id))
		}
		if n <= 0 {
			return ErrInvalid(fmt.Sprintf("quantité invalide pour l'élément %d", id))
		}
	}
	return nil
}

// Reserve marks items Reserved for an employee in the session tenant, issues a token bound
// to that tenant, records it in the ledger and mails the acceptance link.
func (s *Service) Reserve(ctx context.Context, tenantName string, kind tokens.Kind, in ReserveInput) (*Reservation, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, ErrInvalid(fmt.Sprintf("type inconnu : %q", kind))
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	h, err := s.tenants.Resolve(tenantName)
	if err != nil {
		return nil, ErrConfiguration(fmt.Sprintf("base %q non configurée", tenantName))
	}
	q := h.DB

	emp, err := s.store.GetEmployee(ctx, q, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(emp.Email) == "" {
		return nil, ErrInvalid("l'employé n'a pas d'adresse e-mail")
	}
	items, err := s.loadItems(ctx, q, spec, in.ItemIDs)
	if err != nil {
		return nil, err
	}
	st, err := s.store.Statuses(ctx, q)
	if err != nil {
		return nil, err
	}

	var quantities tokens.Quantities
	if len(in.Quantities) > 0 {
		quantities = tokens.Quantities{}
		for id, n := range in.Quantities {
			quantities.Set(id, n)
		}
	}
	issued, err := s.codec.Issue(emp.ID, in.ItemIDs, quantities, h.Name, kind)
	if err != nil {
		return nil, fmt.Errorf("reserve: %w", err)
	}

	now := s.clock.Now()
	err = db.RunInTx(ctx, q, nil, func(ctx context.Context, tx db.DBTX) error {
		for _, id := range in.ItemIDs {
			qty := 1
			if n, ok := in.Quantities[id]; ok {
				qty = n
			}
			rel, err := s.store.GetRelation(ctx, tx, spec, emp.ID, id)
			if err != nil {
				return err
			}
			switch {
			case rel == nil:
				err = s.store.InsertRelation(ctx, tx, spec, &Relation{
					EmployeeID: emp.ID,
					ItemID:     id,
					Quantity:   qty,
					StatusID:   nullID(st.Reserved),
					AssignedAt: now,
				})
			case rel.StatusID.Valid && rel.StatusID.Int64 == st.Reserved:
				err = s.store.IncrementRelation(ctx, tx, spec, emp.ID, id, qty)
			default:
				return ErrConflict(fmt.Sprintf("%s %d déjà attribué à l'employé %d (%s)", spec.entityType, id, emp.ID, rel.StatusName))
			}
			if err != nil {
				return err
			}
			if err := s.store.SyncItemStatus(ctx, tx, spec, id, st); err != nil {
				return err
			}
			if err := s.store.InsertActivity(ctx, tx, &Activity{
				LogID:      s.id.NewULID(now),
				EntityType: spec.entityType,
				EntityID:   id,
				Action:     ActionReserved,
				Details:    fmt.Sprintf("réservé pour l'employé %d (quantité %d)", emp.ID, qty),
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return s.ledger.Store(ctx, tx, h.Name, &tokens.Record{
			TokenID:    issued.TokenID,
			Token:      issued.Token,
			EmployeeID: emp.ID,
			Kind:       kind,
			ItemIDs:    in.ItemIDs,
			Tenant:     h.Name,
			IssuedAt:   now,
			ExpiresAt:  issued.ExpiresAt,
		})
	})
	if err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"tenant":      h.Name,
		"token_id":    issued.TokenID,
		"employee_id": emp.ID,
		"kind":        kind,
	})
	log.Info("items reserved")

	out := &Reservation{
		Kind:       kind,
		TokenID:    issued.TokenID,
		Token:      issued.Token,
		EmployeeID: emp.ID,
		ItemIDs:    in.ItemIDs,
		ExpiresAt:  issued.ExpiresAt,
	}
	if err := s.sendInvitation(ctx, spec, emp, names(spec, in.ItemIDs, items), issued); err != nil {
		log.WithError(err).Warn("invitation mail failed")
	} else {
		out.EmailSent = true
	}
	return out, nil
}

type ResendInput struct {
	EmployeeID int64
	ItemID     int64
	// Database overrides the session tenant when set.
	Database string
}

// Resend issues a fresh token for one relation that is still Reserved and mails it.
// Earlier tokens for the relation stay valid until they are consumed or expire.
func (s *Service) Resend(ctx context.Context, sessionTenant string, kind tokens.Kind, in ResendInput) (*Reservation, error) {
	spec, ok := specs[kind]
	if !ok {
		return nil, ErrInvalid(fmt.Sprintf("type inconnu : %q", kind))
	}
	if in.EmployeeID <= 0 || in.ItemID <= 0 {
		return nil, ErrInvalid("employeeId et identifiant d'élément requis")
	}
	tenantName := sessionTenant
	if in.Database != "" {
		if !tenant.IsKnown(in.Database) {
			return nil, ErrInvalid(fmt.Sprintf("base inconnue : %q", in.Database))
		}
		tenantName = in.Database
	}
	h, err := s.tenants.Resolve(tenantName)
	if err != nil {
		return nil, ErrConfiguration(fmt.Sprintf("base %q non configurée", tenantName))
	}
	q := h.DB

	emp, err := s.store.GetEmployee(ctx, q, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, q, spec, []int64{in.ItemID})
	if err != nil {
		return nil, err
	}
	reservedID, err := s.store.StatusID(ctx, q, StatusReserved)
	if err != nil {
		return nil, err
	}
	rels, err := s.checkRelations(ctx, q, spec, emp.ID, []int64{in.ItemID}, reservedID)
	if err != nil {
		return nil, err
	}

	quantities := tokens.Quantities{}
	quantities.Set(in.ItemID, rels[in.ItemID].Quantity)
	issued, err := s.codec.Issue(emp.ID, []int64{in.ItemID}, quantities, h.Name, kind)
	if err != nil {
		return nil, fmt.Errorf("resend: %w", err)
	}
	now := s.clock.Now()
	if err := s.ledger.Store(ctx, q, h.Name, &tokens.Record{
		TokenID:    issued.TokenID,
		Token:      issued.Token,
		EmployeeID: emp.ID,
		Kind:       kind,
		ItemIDs:    []int64{in.ItemID},
		Tenant:     h.Name,
		IssuedAt:   now,
		ExpiresAt:  issued.ExpiresAt,
	}); err != nil {
		return nil, err
	}

	log := s.log.WithFields(logrus.Fields{
		"tenant":      h.Name,
		"token_id":    issued.TokenID,
		"employee_id": emp.ID,
		"kind":        kind,
	})
	out := &Reservation{
		Kind:       kind,
		TokenID:    issued.TokenID,
		Token:      issued.Token,
		EmployeeID: emp.ID,
		ItemIDs:    []int64{in.ItemID},
		ExpiresAt:  issued.ExpiresAt,
	}
	if err := s.sendInvitation(ctx, spec, emp, names(spec, []int64{in.ItemID}, items), issued); err != nil {
		log.WithError(err).Warn("resent invitation mail failed")
		return out, &APIError{Code: CodeNotification, Message: "Le lien a été régénéré mais l'e-mail n'a pas pu être envoyé"}
	}
	out.EmailSent = true
	log.Info("invitation resent")
	return out, nil
}

// ListTokens returns ledger rows of one tenant for audit.
func (s *Service) ListTokens(ctx context.Context, tenantName string, f tokens.Filter) ([]tokens.Record, error) {
	h, err := s.tenants.Resolve(tenantName)
	if err != nil {
		return nil, ErrConfiguration(fmt.Sprintf("base %q non configurée", tenantName))
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, ErrInvalid(fmt.Sprintf("statut inconnu : %q", *f.Status))
	}
	if f.Kind != nil && !f.Kind.Valid() {
		return nil, ErrInvalid(fmt.Sprintf("type inconnu : %q", *f.Kind))
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	return s.ledger.List(ctx, h.DB, f)
}

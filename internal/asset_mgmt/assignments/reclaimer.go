package assignments

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"parc-backend/internal/asset_mgmt/tokens"
	"parc-backend/internal/platform/db"
	"parc-backend/internal/platform/tenant"
)

// SweepResult counts what one sweep did in one tenant.
type SweepResult struct {
	Tenant  string `json:"tenant"`
	Scanned int    `json:"scanned"`
	Expired int    `json:"expired"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

// Reclaimer expires PENDING tokens past their expiry and releases what they reserved.
type Reclaimer struct {
	tenants tenant.Resolver
	ledger  *tokens.Ledger
	store   *Store
	clock   Clock
	id      IDGen
	log     logrus.FieldLogger
	batch   int
}

func NewReclaimer(tenants tenant.Resolver, log logrus.FieldLogger) *Reclaimer {
	return &Reclaimer{
		tenants: tenants,
		ledger:  tokens.NewLedger(),
		store:   NewStore(),
		clock:   realClock{},
		id:      ulidGen{},
		log:     log,
		batch:   500,
	}
}

// SweepAll sweeps every configured tenant. A failing tenant does not stop the others.
func (r *Reclaimer) SweepAll(ctx context.Context) []SweepResult {
	names := r.tenants.Names()
	out := make([]SweepResult, 0, len(names))
	for _, name := range names {
		res, err := r.SweepTenant(ctx, name)
		if err != nil {
			res.Error = err.Error()
			r.log.WithError(err).WithField("tenant", name).Error("expiry sweep failed")
		}
		out = append(out, res)
	}
	return out
}

// SweepTenant expires the stale tokens of one tenant, each in its own transaction.
func (r *Reclaimer) SweepTenant(ctx context.Context, name string) (SweepResult, error) {
	res := SweepResult{Tenant: name}
	h, err := r.tenants.Resolve(name)
	if err != nil {
		return res, err
	}
	st, err := r.store.Statuses(ctx, h.DB)
	if err != nil {
		return res, err
	}

	now := r.clock.Now()
	var after tokens.Cursor
	for {
		stale, err := r.ledger.ListExpiredPending(ctx, h.DB, now, after, r.batch)
		if err != nil {
			return res, err
		}
		for i := range stale {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			rec := &stale[i]
			res.Scanned++
			log := r.log.WithFields(logrus.Fields{
				"tenant":      name,
				"token_id":    rec.TokenID,
				"employee_id": rec.EmployeeID,
				"kind":        rec.Kind,
			})
			err := r.expire(ctx, h, rec, st)
			switch {
			case err == nil:
				res.Expired++
				log.Info("token expired")
			case errors.Is(err, tokens.ErrTokenUsed):
				res.Skipped++
			default:
				res.Failed++
				log.WithError(err).Error("token expiry failed")
			}
		}
		// failed tokens stay PENDING: page past them
		if len(stale) < r.batch {
			break
		}
		after = tokens.After(stale[len(stale)-1])
	}
	if res.Scanned > 0 {
		r.log.WithFields(logrus.Fields{
			"tenant":  name,
			"scanned": res.Scanned,
			"expired": res.Expired,
			"skipped": res.Skipped,
			"failed":  res.Failed,
		}).Info("expiry sweep done")
	}
	return res, nil
}

// expire consumes rec and deletes the relations it still holds in Reserved. Relations that
// moved on, or that another live token also covers, are left alone.
func (r *Reclaimer) expire(ctx context.Context, h *tenant.Handle, rec *tokens.Record, st Statuses) error {
	spec, ok := specs[rec.Kind]
	if !ok {
		return fmt.Errorf("token %s: unknown type %q", rec.TokenID, rec.Kind)
	}
	now := r.clock.Now()
	days := int(rec.ExpiresAt.Sub(rec.IssuedAt).Hours() / 24)
	details := fmt.Sprintf("réservation expirée automatiquement après %d jours sans réponse de l'employé %d", days, rec.EmployeeID)

	return db.RunInTx(ctx, h.DB, nil, func(ctx context.Context, tx db.DBTX) error {
		if err := r.ledger.Transition(ctx, tx, rec.Token, tokens.StatusExpired, now); err != nil {
			return err
		}
		live, err := r.ledger.ListLive(ctx, tx, rec.EmployeeID, rec.Kind, now)
		if err != nil {
			return err
		}
		rels, err := r.store.ListRelations(ctx, tx, spec, rec.EmployeeID, rec.ItemIDs)
		if err != nil {
			return err
		}
		for _, id := range rec.ItemIDs {
			rel, ok := rels[id]
			if !ok || !rel.StatusID.Valid || rel.StatusID.Int64 != st.Reserved || tokens.Covers(live, id) {
				continue
			}
			if err := r.store.DeleteRelation(ctx, tx, spec, rec.EmployeeID, id); err != nil {
				return err
			}
			if err := r.store.SyncItemStatus(ctx, tx, spec, id, st); err != nil {
				return err
			}
			if err := r.store.InsertActivity(ctx, tx, &Activity{
				LogID:      r.id.NewULID(now),
				EntityType: spec.entityType,
				EntityID:   id,
				Action:     ActionExpired,
				Details:    details,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

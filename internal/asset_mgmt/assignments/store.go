package assignments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"parc-backend/internal/asset_mgmt/tokens"
	"parc-backend/internal/platform/db"
)

// Store runs the item/relation SQL. It holds no connection: every call receives the
// executor of the tenant the caller routed to.
type Store struct{}

func NewStore() *Store { return &Store{} }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// StatusID resolves a status lookup row. A missing row is a tenant configuration error.
func (s *Store) StatusID(ctx context.Context, q db.DBTX, name string) (int64, error) {
	const query = `SELECT status_id FROM statuses WHERE name = ?`
	var id int64
	if err := q.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConfiguration(fmt.Sprintf("status %q is missing from the statuses table", name))
		}
		return 0, fmt.Errorf("status %q: %w", name, err)
	}
	return id, nil
}

// Statuses holds the lookup ids the assignment flow moves items between.
type Statuses struct {
	Available int64
	Reserved  int64
	Assigned  int64
}

func (s *Store) Statuses(ctx context.Context, q db.DBTX) (Statuses, error) {
	var st Statuses
	var err error
	if st.Available, err = s.StatusID(ctx, q, StatusAvailable); err != nil {
		return Statuses{}, err
	}
	if st.Reserved, err = s.StatusID(ctx, q, StatusReserved); err != nil {
		return Statuses{}, err
	}
	if st.Assigned, err = s.StatusID(ctx, q, StatusAssigned); err != nil {
		return Statuses{}, err
	}
	return st, nil
}

func (s *Store) GetEmployee(ctx context.Context, q db.DBTX, id int64) (*Employee, error) {
	const query = `SELECT employee_id, nom, prenom, email FROM employees WHERE employee_id = ?`
	var e Employee
	if err := q.QueryRowContext(ctx, query, id).Scan(&e.ID, &e.Nom, &e.Prenom, &e.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound("employé introuvable")
		}
		return nil, fmt.Errorf("get employee %d: %w", id, err)
	}
	return &e, nil
}

// GetItems returns the existing items among ids, keyed by id.
func (s *Store) GetItems(ctx context.Context, q db.DBTX, spec kindSpec, ids []int64) (map[int64]*Item, error) {
	if len(ids) == 0 {
		return map[int64]*Item{}, nil
	}
	var cols string
	if spec.kind == tokens.KindLicense {
		cols = `i.nom, i.editeur, i.version`
	} else {
		cols = `i.marque, i.modele, i.serial_number, i.type`
	}
	query := fmt.Sprintf(`
	SELECT i.%[1]s, i.status_id, COALESCE(st.name, ''), %[2]s
	FROM %[3]s i
	LEFT JOIN statuses st ON st.status_id = i.status_id
	WHERE i.%[1]s IN (%[4]s)`, spec.itemIDCol, cols, spec.itemTable, placeholders(len(ids)))

	rows, err := q.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", spec.itemTable, err)
	}
	defer rows.Close()

	out := make(map[int64]*Item, len(ids))
	for rows.Next() {
		var it Item
		dest := []any{&it.ID, &it.StatusID, &it.StatusName}
		if spec.kind == tokens.KindLicense {
			dest = append(dest, &it.Nom, &it.Editeur, &it.Version)
		} else {
			dest = append(dest, &it.Marque, &it.Modele, &it.SerialNumber, &it.Type)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.itemTable, err)
		}
		out[it.ID] = &it
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get %s: %w", spec.itemTable, err)
	}
	return out, nil
}

// ListRelations returns the employee's relations to ids, keyed by item id.
func (s *Store) ListRelations(ctx context.Context, q db.DBTX, spec kindSpec, employeeID int64, ids []int64) (map[int64]*Relation, error) {
	if len(ids) == 0 {
		return map[int64]*Relation{}, nil
	}
	query := fmt.Sprintf(`
	SELECT r.employee_id, r.%[1]s, r.quantity, r.status_id, COALESCE(st.name, ''), r.assigned_at
	FROM %[2]s r
	LEFT JOIN statuses st ON st.status_id = r.status_id
	WHERE r.employee_id = ? AND r.%[1]s IN (%[3]s)`, spec.itemIDCol, spec.relTable, placeholders(len(ids)))

	args := append([]any{employeeID}, int64Args(ids)...)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", spec.relTable, err)
	}
	defer rows.Close()

	out := make(map[int64]*Relation, len(ids))
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.EmployeeID, &r.ItemID, &r.Quantity, &r.StatusID, &r.StatusName, &r.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.relTable, err)
		}
		out[r.ItemID] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", spec.relTable, err)
	}
	return out, nil
}

// GetRelation returns nil, nil when the employee holds no relation to the item.
func (s *Store) GetRelation(ctx context.Context, q db.DBTX, spec kindSpec, employeeID, itemID int64) (*Relation, error) {
	rels, err := s.ListRelations(ctx, q, spec, employeeID, []int64{itemID})
	if err != nil {
		return nil, err
	}
	return rels[itemID], nil
}

func (s *Store) InsertRelation(ctx context.Context, q db.DBTX, spec kindSpec, r *Relation) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (employee_id, %s, quantity, status_id, assigned_at)
	VALUES (?, ?, ?, ?, ?)`, spec.relTable, spec.itemIDCol)
	if _, err := q.ExecContext(ctx, query, r.EmployeeID, r.ItemID, r.Quantity, r.StatusID, r.AssignedAt.UTC()); err != nil {
		return fmt.Errorf("insert %s: %w", spec.relTable, err)
	}
	return nil
}

func (s *Store) IncrementRelation(ctx context.Context, q db.DBTX, spec kindSpec, employeeID, itemID int64, delta int) error {
	query := fmt.Sprintf(`UPDATE %s SET quantity = quantity + ? WHERE employee_id = ? AND %s = ?`, spec.relTable, spec.itemIDCol)
	return execOne(ctx, q, spec.relTable, query, delta, employeeID, itemID)
}

// SetRelationStatus moves one relation from status `from` to `to`; zero affected rows means
// the relation changed underneath and the caller must abort.
func (s *Store) SetRelationStatus(ctx context.Context, q db.DBTX, spec kindSpec, employeeID, itemID, from, to int64) error {
	query := fmt.Sprintf(`UPDATE %s SET status_id = ? WHERE employee_id = ? AND %s = ? AND status_id = ?`, spec.relTable, spec.itemIDCol)
	return execOne(ctx, q, spec.relTable, query, to, employeeID, itemID, from)
}

func (s *Store) DeleteRelation(ctx context.Context, q db.DBTX, spec kindSpec, employeeID, itemID int64) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE employee_id = ? AND %s = ?`, spec.relTable, spec.itemIDCol)
	return execOne(ctx, q, spec.relTable, query, employeeID, itemID)
}

// SyncItemStatus recomputes the status mirrored on the item from its remaining relations:
// Assigné if any relation is assigned, else Réservé if any is reserved, else Disponible.
// Relations in any other status keep the item's current value. Writing the stored value again
// is not an error.
func (s *Store) SyncItemStatus(ctx context.Context, q db.DBTX, spec kindSpec, itemID int64, st Statuses) error {
	query := fmt.Sprintf(`
	UPDATE %[1]s SET status_id = CASE
		WHEN EXISTS (SELECT 1 FROM %[3]s r WHERE r.%[2]s = ? AND r.status_id = ?) THEN ?
		WHEN EXISTS (SELECT 1 FROM %[3]s r WHERE r.%[2]s = ? AND r.status_id = ?) THEN ?
		WHEN EXISTS (SELECT 1 FROM %[3]s r WHERE r.%[2]s = ?) THEN status_id
		ELSE ?
	END
	WHERE %[2]s = ?`, spec.itemTable, spec.itemIDCol, spec.relTable)
	args := []any{
		itemID, st.Assigned, st.Assigned,
		itemID, st.Reserved, st.Reserved,
		itemID,
		st.Available,
		itemID,
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sync %s %d: %w", spec.itemTable, itemID, err)
	}
	return nil
}

func (s *Store) InsertActivity(ctx context.Context, q db.DBTX, a *Activity) error {
	const query = `
	INSERT INTO activity_logs (log_id, entity_type, entity_id, action, details, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := q.ExecContext(ctx, query, a.LogID, a.EntityType, a.EntityID, a.Action, a.Details, a.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("insert activity_logs: %w", err)
	}
	return nil
}

func execOne(ctx context.Context, q db.DBTX, table, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n != 1 {
		return fmt.Errorf("update %s: %w", table, errRowChanged)
	}
	return nil
}

var errRowChanged = errors.New("row changed concurrently")

func nullID(id int64) sql.NullInt64 { return sql.NullInt64{Int64: id, Valid: true} }

package assignments

import (
	"database/sql"
	"time"

	"parc-backend/internal/asset_mgmt/tokens"
)

// Status lookup names. Every tenant must carry these rows in statuses.
const (
	StatusAvailable = "Disponible"
	StatusReserved  = "Réservé"
	StatusAssigned  = "Assigné"
)

// kindSpec holds the fixed table layout of one item kind. Identifiers come from this
// table only, never from input, so they can be placed in SQL text.
type kindSpec struct {
	kind       tokens.Kind
	itemTable  string
	itemIDCol  string
	relTable   string
	entityType string
	urlSegment string
}

var specs = map[tokens.Kind]kindSpec{
	tokens.KindEquipment: {
		kind:       tokens.KindEquipment,
		itemTable:  "actifs",
		itemIDCol:  "actif_id",
		relTable:   "employee_actifs",
		entityType: "actif",
		urlSegment: "actifs",
	},
	tokens.KindLicense: {
		kind:       tokens.KindLicense,
		itemTable:  "licences",
		itemIDCol:  "licence_id",
		relTable:   "employee_licences",
		entityType: "licence",
		urlSegment: "licences",
	},
}

type Employee struct {
	ID     int64
	Nom    string
	Prenom string
	Email  string
}

func (e *Employee) FullName() string {
	if e.Prenom == "" {
		return e.Nom
	}
	return e.Prenom + " " + e.Nom
}

// Item is an equipment (actif) or a license. Only the fields of its kind are filled.
type Item struct {
	ID         int64
	StatusID   sql.NullInt64
	StatusName string

	Marque       string
	Modele       string
	SerialNumber string
	Type         string

	Nom     string
	Editeur string
	Version string
}

// Relation is one employee <-> item custody row.
type Relation struct {
	EmployeeID int64
	ItemID     int64
	Quantity   int
	StatusID   sql.NullInt64
	StatusName string
	AssignedAt time.Time
}

type Activity struct {
	LogID      string
	EntityType string
	EntityID   int64
	Action     string
	Details    string
	CreatedAt  time.Time
}

const (
	ActionReserved = "assignment_reserved"
	ActionAccepted = "assignment_accepted"
	ActionRejected = "assignment_rejected"
	ActionExpired  = "assignment_expired"
)

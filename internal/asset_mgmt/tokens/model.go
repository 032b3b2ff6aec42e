package tokens

import (
	"strconv"
	"time"
)

// Kind separates equipment tokens from license tokens; the two are independent token spaces.
type Kind string

const (
	KindEquipment Kind = "equipment"
	KindLicense   Kind = "license"
)

func (k Kind) Valid() bool { return k == KindEquipment || k == KindLicense }

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
	StatusExpired  Status = "EXPIRED"
)

func (s Status) Terminal() bool { return s != StatusPending }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Record is one row of assignment_tokens.
type Record struct {
	TokenID    string
	Token      string
	EmployeeID int64
	Kind       Kind
	ItemIDs    []int64
	Tenant     string
	Status     Status
	IssuedAt   time.Time
	ExpiresAt  time.Time
	UsedAt     *time.Time
}

// Quantities maps item id (decimal string, as JSON object keys) to a unit count.
type Quantities map[string]int

func (q Quantities) For(itemID int64) (int, bool) {
	n, ok := q[strconv.FormatInt(itemID, 10)]
	return n, ok
}

func (q Quantities) Set(itemID int64, n int) {
	q[strconv.FormatInt(itemID, 10)] = n
}

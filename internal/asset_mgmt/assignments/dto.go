package assignments

import (
	"time"

	"parc-backend/internal/asset_mgmt/tokens"
)

// ---------- requests ----------

type AcceptRequest struct {
	AcceptTerms bool `json:"acceptTerms"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

type ReserveActifsRequest struct {
	EmployeeID int64         `json:"employeeId" binding:"required"`
	ActifIDs   []int64       `json:"actifIds" binding:"required"`
	Quantities map[int64]int `json:"quantities"`
}

type ReserveLicensesRequest struct {
	EmployeeID int64         `json:"employeeId" binding:"required"`
	LicenseIDs []int64       `json:"licenseIds" binding:"required"`
	Quantities map[int64]int `json:"quantities"`
}

type ResendActifRequest struct {
	EmployeeID int64  `json:"employeeId" binding:"required"`
	ActifID    int64  `json:"actifId" binding:"required"`
	Database   string `json:"database"`
}

type ResendLicenseRequest struct {
	EmployeeID int64  `json:"employeeId" binding:"required"`
	LicenseID  int64  `json:"licenseId" binding:"required"`
	Database   string `json:"database"`
}

// ---------- responses ----------

type EmployeeDTO struct {
	ID     int64  `json:"id"`
	Nom    string `json:"nom"`
	Prenom string `json:"prenom,omitempty"`
	Email  string `json:"email"`
}

type ActifDTO struct {
	ActifID          int64  `json:"actifId"`
	Marque           string `json:"marque"`
	Modele           string `json:"modele"`
	SerialNumber     string `json:"serialNumber"`
	Type             string `json:"type"`
	Quantity         int    `json:"quantity"`
	AssignmentStatus string `json:"assignmentStatus"`
	DisplayName      string `json:"displayName"`
}

type LicenseDTO struct {
	LicenseID        int64  `json:"licenseId"`
	Nom              string `json:"nom"`
	Editeur          string `json:"editeur"`
	Version          string `json:"version"`
	Quantity         int    `json:"quantity"`
	AssignmentStatus string `json:"assignmentStatus"`
	DisplayName      string `json:"displayName"`
}

type ValidateActifsResponse struct {
	Valid     bool        `json:"valid"`
	Employee  EmployeeDTO `json:"employee"`
	Actifs    []ActifDTO  `json:"actifs"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

type ValidateLicensesResponse struct {
	Valid     bool         `json:"valid"`
	Employee  EmployeeDTO  `json:"employee"`
	Licenses  []LicenseDTO `json:"licenses"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type TokenDTO struct {
	TokenID    string     `json:"tokenId"`
	EmployeeID int64      `json:"employeeId"`
	Type       string     `json:"type"`
	ItemIDs    []int64    `json:"itemIds"`
	Database   string     `json:"database"`
	Status     string     `json:"status"`
	IssuedAt   time.Time  `json:"issuedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	UsedAt     *time.Time `json:"usedAt,omitempty"`
}

type failureDTO struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    Code        `json:"code"`
	Items   []ItemState `json:"items,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type invalidDTO struct {
	Valid   bool        `json:"valid"`
	Message string      `json:"message"`
	Code    Code        `json:"code"`
	Items   []ItemState `json:"items,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// itemsKey is the JSON key that carries item ids for a kind.
func itemsKey(kind tokens.Kind) string {
	if kind == tokens.KindLicense {
		return "licenseIds"
	}
	return "actifIds"
}

func employeeDTO(e *Employee) EmployeeDTO {
	return EmployeeDTO{ID: e.ID, Nom: e.Nom, Prenom: e.Prenom, Email: e.Email}
}

func toActifs(v *Validation) []ActifDTO {
	out := make([]ActifDTO, 0, len(v.Items))
	for _, it := range v.Items {
		out = append(out, ActifDTO{
			ActifID:          it.Item.ID,
			Marque:           it.Item.Marque,
			Modele:           it.Item.Modele,
			SerialNumber:     it.Item.SerialNumber,
			Type:             it.Item.Type,
			Quantity:         it.Quantity,
			AssignmentStatus: it.AssignmentStatus,
			DisplayName:      it.DisplayName,
		})
	}
	return out
}

func toLicenses(v *Validation) []LicenseDTO {
	out := make([]LicenseDTO, 0, len(v.Items))
	for _, it := range v.Items {
		out = append(out, LicenseDTO{
			LicenseID:        it.Item.ID,
			Nom:              it.Item.Nom,
			Editeur:          it.Item.Editeur,
			Version:          it.Item.Version,
			Quantity:         it.Quantity,
			AssignmentStatus: it.AssignmentStatus,
			DisplayName:      it.DisplayName,
		})
	}
	return out
}

func toTokenDTO(r tokens.Record) TokenDTO {
	return TokenDTO{
		TokenID:    r.TokenID,
		EmployeeID: r.EmployeeID,
		Type:       string(r.Kind),
		ItemIDs:    r.ItemIDs,
		Database:   r.Tenant,
		Status:     string(r.Status),
		IssuedAt:   r.IssuedAt,
		ExpiresAt:  r.ExpiresAt,
		UsedAt:     r.UsedAt,
	}
}

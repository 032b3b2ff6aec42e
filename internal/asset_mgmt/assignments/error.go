package assignments

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeInvalidToken    Code = "INVALID_TOKEN"
	CodeTokenUsed       Code = "TOKEN_USED"
	CodeStateMismatch   Code = "STATE_MISMATCH"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeNotification    Code = "NOTIFICATION_FAILED"
	CodeConfiguration   Code = "CONFIGURATION"
	CodeInternal        Code = "INTERNAL"
)

// ItemState names an item whose relation is missing or not in the expected state.
type ItemState struct {
	ItemID int64  `json:"itemId"`
	Status string `json:"status"`
}

type APIError struct {
	Code    Code
	Message string
	Items   []ItemState
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError       { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError      { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError      { return &APIError{Code: CodeConflict, Message: msg} }
func ErrConfiguration(msg string) *APIError { return &APIError{Code: CodeConfiguration, Message: msg} }
func ErrInternal(msg string) *APIError      { return &APIError{Code: CodeInternal, Message: msg} }

const (
	msgInvalidLink  = "Lien invalide ou expiré"
	msgUsedLink     = "Ce lien a déjà été utilisé"
	msgNotAssigned  = "Certains éléments ne vous sont plus attribués"
	msgNotReserved  = "Certains éléments ne sont plus en attente de validation"
	msgTermsMissing = "Vous devez accepter les conditions d'utilisation"
	msgNoItems      = "Aucun élément associé à ce lien"
)

func errInvalidToken() *APIError { return &APIError{Code: CodeInvalidToken, Message: msgInvalidLink} }
func errTokenUsed() *APIError    { return &APIError{Code: CodeTokenUsed, Message: msgUsedLink} }

func errMismatch(msg string, items []ItemState) *APIError {
	return &APIError{Code: CodeStateMismatch, Message: msg, Items: items}
}

func ToHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument, CodeInvalidToken, CodeTokenUsed, CodeStateMismatch:
			return http.StatusBadRequest
		case CodeNotFound:
			return http.StatusNotFound
		case CodeConflict:
			return http.StatusConflict
		case CodeNotification:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

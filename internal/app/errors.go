package app

import (
	"fmt"
	"net/http"
)

// Error codes returned in the "code" field of API error bodies.
const (
	CodeLocked            = "LOCKED"
	CodeInvalidPasscode   = "INVALID_PASSCODE"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNodeNotFound      = "NODE_NOT_FOUND"
	CodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	CodeExportUnavailable = "EXPORT_UNAVAILABLE"
)

// DomainError is an error the API reports verbatim to clients.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Code + ": " + e.Message
}

func errLocked() *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: CodeLocked, Message: "Access is locked"}
}

func errInvalidPasscode() *DomainError {
	return &DomainError{Status: http.StatusUnauthorized, Code: CodeInvalidPasscode, Message: "Código inválido."}
}

func errValidation(format string, args ...any) *DomainError {
	return &DomainError{Status: http.StatusUnprocessableEntity, Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func errNodeNotFound(id string) *DomainError {
	return &DomainError{
		Status:  http.StatusNotFound,
		Code:    CodeNodeNotFound,
		Message: "Node not found",
		Details: map[string]string{"id": id},
	}
}

func errUnsupportedFormat(message string) *DomainError {
	return &DomainError{Status: http.StatusBadRequest, Code: CodeUnsupportedFormat, Message: message}
}

func errExportUnavailable(message string) *DomainError {
	return &DomainError{Status: http.StatusServiceUnavailable, Code: CodeExportUnavailable, Message: message}
}

func writeDomainError(w http.ResponseWriter, err *DomainError) {
	writeError(w, err.Status, err.Code, err.Message, err.Details)
}

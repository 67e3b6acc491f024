package authclient

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeNetworkFailure        = "NETWORK_FAILURE"
	TextCodeInvalidCredential     = "INVALID_CREDENTIAL"
	TextCodeInsufficientPrivilege = "INSUFFICIENT_PRIVILEGE"
	TextCodeRateLimited           = "RATE_LIMITED"
	TextCodeMalformedPayload      = "MALFORMED_PAYLOAD"
	TextCodeRequestFailed         = "REQUEST_FAILED"
	TextCodeInvalidInput          = "INVALID_INPUT"
	TextCodeStorageUnavailable    = "STORAGE_UNAVAILABLE"
	TextCodeCredentialNotFound    = "CREDENTIAL_NOT_FOUND"
	TextCodeNotAuthenticated      = "NOT_AUTHENTICATED"
	TextCodeInvalidTransition     = "INVALID_SESSION_TRANSITION"
)

// ErrCredentialNotFound is returned by a CredentialStore for missing keys
var ErrCredentialNotFound = goerrors.New("credential not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeCredentialNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNotAuthenticated is returned when a transition needs a session and there is none
var ErrNotAuthenticated = goerrors.New("no authenticated session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrMalformedPayload is returned when a user payload lacks its identifier
var ErrMalformedPayload = goerrors.New("server payload is missing the user identifier", goerrors.CategoryBadInput).
	WithTextCode(TextCodeMalformedPayload).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidTransition is returned when a status change is not part of the session graph
var ErrInvalidTransition = goerrors.New("invalid session transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// NewNetworkError wraps a transport failure (no response received).
func NewNetworkError(err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "network request failed").
		WithTextCode(TextCodeNetworkFailure)
}

// NewStorageError wraps a credential store failure.
func NewStorageError(err error, op string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "credential storage unavailable").
		WithTextCode(TextCodeStorageUnavailable).
		WithMetadata(map[string]any{"operation": op})
}

// NewMalformedPayloadError wraps a decode failure of a server response.
func NewMalformedPayloadError(err error, resource string) *goerrors.Error {
	if err == nil {
		err = errors.New("empty payload")
	}
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed server payload").
		WithTextCode(TextCodeMalformedPayload).
		WithMetadata(map[string]any{"resource": resource})
}

func newValidationError(err error, message string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithTextCode(TextCodeInvalidInput).
		WithCode(goerrors.CodeBadRequest)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// IsInvalidCredential reports a dead bearer or session token.
func IsInvalidCredential(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredential)
}

// IsPrivilegeFailure reports an operation denied while the session stays valid.
func IsPrivilegeFailure(err error) bool {
	return hasTextCode(err, TextCodeInsufficientPrivilege)
}

// IsRateLimited reports a 429 response.
func IsRateLimited(err error) bool {
	return hasTextCode(err, TextCodeRateLimited)
}

// IsNetworkFailure reports a request that never got a response.
func IsNetworkFailure(err error) bool {
	return hasTextCode(err, TextCodeNetworkFailure)
}

// IsMalformedPayload reports a response that could not be used.
func IsMalformedPayload(err error) bool {
	return hasTextCode(err, TextCodeMalformedPayload)
}

// IsValidationError reports rejected local input.
func IsValidationError(err error) bool {
	return hasTextCode(err, TextCodeInvalidInput)
}

// IsCredentialNotFound reports a missing credential key.
func IsCredentialNotFound(err error) bool {
	return hasTextCode(err, TextCodeCredentialNotFound)
}

// IsStorageUnavailable reports a credential store failure.
func IsStorageUnavailable(err error) bool {
	return hasTextCode(err, TextCodeStorageUnavailable)
}

// ErrorMessage returns the text a UI should display for err.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}
	return err.Error()
}

// withMetadata copies a sentinel so package level errors are never mutated.
func withMetadata(base *goerrors.Error, meta map[string]any) *goerrors.Error {
	return goerrors.New(base.Message, base.Category).
		WithTextCode(base.TextCode).
		WithCode(base.Code).
		WithMetadata(meta)
}

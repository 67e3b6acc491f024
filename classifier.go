package authclient

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// FailureKind is the outcome of classifying a failed request.
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureNetwork
	FailureInvalidCredential
	FailurePrivilege
	FailureRateLimited
	FailureMalformedPayload
	FailureRequest
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureInvalidCredential:
		return "invalid_credential"
	case FailurePrivilege:
		return "insufficient_privilege"
	case FailureRateLimited:
		return "rate_limited"
	case FailureMalformedPayload:
		return "malformed_payload"
	case FailureRequest:
		return "request_failed"
	default:
		return "none"
	}
}

// RevokesCredential reports whether the stored token must be cleared.
func (k FailureKind) RevokesCredential() bool {
	return k == FailureInvalidCredential
}

// ClassifierRules holds the keyword lists used to read 401 responses.
// Matching is case-insensitive. Codes match exactly, keywords match as
// substrings of the server message.
type ClassifierRules struct {
	PrivilegeKeywords      []string `mapstructure:"privilege_keywords" json:"privilege_keywords"`
	SessionExpiredCodes    []string `mapstructure:"session_expired_codes" json:"session_expired_codes"`
	SessionExpiredKeywords []string `mapstructure:"session_expired_keywords" json:"session_expired_keywords"`
	InvalidTokenKeywords   []string `mapstructure:"invalid_token_keywords" json:"invalid_token_keywords"`
}

// DefaultClassifierRules returns the keyword set matching the backend's
// current messages.
func DefaultClassifierRules() ClassifierRules {
	return ClassifierRules{
		PrivilegeKeywords: []string{
			"forbidden",
			"not authorized",
			"not allowed",
			"permission",
			"access denied",
			"insufficient",
			"scope",
			"church mismatch",
			"different church",
		},
		SessionExpiredCodes: []string{
			"CSRF_TOKEN_EXPIRED",
			"CSRF_INVALID",
			"SESSION_EXPIRED",
			"EBADCSRFTOKEN",
		},
		SessionExpiredKeywords: []string{
			"session expired",
			"session has expired",
			"csrf",
		},
		InvalidTokenKeywords: []string{
			"invalid token",
			"token expired",
			"jwt expired",
			"jwt malformed",
			"invalid signature",
			"not authenticated",
			"no token",
			"token is required",
			"unauthenticated",
		},
	}
}

// ResponseFailure is what the classifier sees of a failed response.
type ResponseFailure struct {
	Status  int
	Code    string
	Message string
}

// Classifier maps failed responses onto FailureKind. The zero value is not
// usable, use NewClassifier.
type Classifier struct {
	privilege      []string
	sessionCodes   []string
	sessionExpired []string
	invalidToken   []string
}

// NewClassifier builds a classifier from rules, used as given.
func NewClassifier(rules ClassifierRules) *Classifier {
	return &Classifier{
		privilege:      lowerAll(rules.PrivilegeKeywords),
		sessionCodes:   lowerAll(rules.SessionExpiredCodes),
		sessionExpired: lowerAll(rules.SessionExpiredKeywords),
		invalidToken:   lowerAll(rules.InvalidTokenKeywords),
	}
}

// DefaultClassifier uses DefaultClassifierRules.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultClassifierRules())
}

// Classify only inspects 401 and 429. A session-expired code revokes the
// session, then privilege keywords win over revocation keywords. An
// unrecognized 401 never revokes the session.
func (c *Classifier) Classify(f ResponseFailure) FailureKind {
	switch {
	case f.Status == 0:
		return FailureNetwork
	case f.Status == http.StatusTooManyRequests:
		return FailureRateLimited
	case f.Status == http.StatusUnauthorized:
		return c.classifyUnauthorized(f)
	case f.Status >= http.StatusBadRequest:
		return FailureRequest
	default:
		return FailureNone
	}
}

func (c *Classifier) classifyUnauthorized(f ResponseFailure) FailureKind {
	message := strings.ToLower(f.Message)
	code := strings.ToLower(strings.TrimSpace(f.Code))

	if code != "" && equalsAny(code, c.sessionCodes) {
		return FailureInvalidCredential
	}

	if containsAny(message, c.privilege) {
		return FailurePrivilege
	}

	if containsAny(message, c.sessionExpired) {
		return FailureInvalidCredential
	}

	if containsAny(message, c.invalidToken) {
		return FailureInvalidCredential
	}

	return FailurePrivilege
}

// Error builds the taxonomy error for a classified failure.
func (c *Classifier) Error(kind FailureKind, f ResponseFailure) *goerrors.Error {
	meta := map[string]any{
		"status": f.Status,
		"kind":   kind.String(),
	}
	if f.Code != "" {
		meta["code"] = f.Code
	}

	switch kind {
	case FailureInvalidCredential:
		return goerrors.New(messageOr(f.Message, "session is no longer valid"), goerrors.CategoryAuth).
			WithTextCode(TextCodeInvalidCredential).
			WithCode(f.Status).
			WithMetadata(meta)
	case FailurePrivilege:
		return goerrors.New(messageOr(f.Message, "not authorized for this operation"), goerrors.CategoryAuthz).
			WithTextCode(TextCodeInsufficientPrivilege).
			WithCode(f.Status).
			WithMetadata(meta)
	case FailureRateLimited:
		return goerrors.New(messageOr(f.Message, "too many requests, try again later"), goerrors.CategoryRateLimit).
			WithTextCode(TextCodeRateLimited).
			WithCode(f.Status).
			WithMetadata(meta)
	default:
		return goerrors.New(messageOr(f.Message, http.StatusText(f.Status)), categoryForStatus(f.Status)).
			WithTextCode(TextCodeRequestFailed).
			WithCode(f.Status).
			WithMetadata(meta)
	}
}

func categoryForStatus(status int) goerrors.Category {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return goerrors.CategoryBadInput
	case http.StatusForbidden:
		return goerrors.CategoryAuthz
	case http.StatusNotFound:
		return goerrors.CategoryNotFound
	case http.StatusConflict:
		return goerrors.CategoryConflict
	default:
		return goerrors.CategoryInternal
	}
}

func messageOr(message, fallback string) string {
	if strings.TrimSpace(message) == "" {
		return fallback
	}
	return message
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func equalsAny(s string, values []string) bool {
	for _, v := range values {
		if s == v {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

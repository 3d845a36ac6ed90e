package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorConfiguration       = "SOCIAL_CONFIGURATION_ERROR"
	ErrorValidation          = "SOCIAL_VALIDATION_ERROR"
	ErrorDecryption          = "SOCIAL_DECRYPTION_ERROR"
	ErrorOAuthStateInvalid   = "SOCIAL_OAUTH_STATE_INVALID"
	ErrorExternalAPI         = "SOCIAL_EXTERNAL_API_ERROR"
	ErrorTokenInvalid        = "SOCIAL_TOKEN_INVALID"
	ErrorNotFound            = "SOCIAL_NOT_FOUND"
	ErrorCredentialsMissing  = "SOCIAL_CREDENTIALS_NOT_CONFIGURED"
	ErrorAccountNotConnected = "SOCIAL_ACCOUNT_NOT_CONNECTED"
	ErrorRateLimited         = "SOCIAL_RATE_LIMITED"
	ErrorConflict            = "SOCIAL_CONFLICT"
	ErrorInternal            = "SOCIAL_INTERNAL_ERROR"
)

// NewConfigurationError reports a missing or unusable setup, such as an absent
// master secret or a tenant without credentials.
func NewConfigurationError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorConfiguration).
		WithSeverity(goerrors.SeverityCritical)
}

func NewValidationError(message string, fields ...goerrors.FieldError) *goerrors.Error {
	if strings.TrimSpace(message) == "" {
		message = "validation failed"
	}
	return goerrors.NewValidation(message, fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

func NewFieldValidationError(field string, message string) *goerrors.Error {
	return NewValidationError("validation failed", goerrors.FieldError{
		Field:   field,
		Message: message,
	})
}

// NewDecryptionError never carries the underlying cause text, which could leak
// details about the ciphertext.
func NewDecryptionError(tenantID string) *goerrors.Error {
	return goerrors.New("stored credentials could not be decrypted", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorDecryption).
		WithSeverity(goerrors.SeverityCritical).
		WithMetadata(map[string]any{"tenant_id": tenantID})
}

func NewStateError(reason string) *goerrors.Error {
	message := "oauth state is invalid"
	if reason = strings.TrimSpace(reason); reason != "" {
		message = "oauth state is invalid: " + reason
	}
	return goerrors.New(message, goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(ErrorOAuthStateInvalid)
}

type ExternalAPIFailure struct {
	Operation  string
	Message    string
	Type       string
	StatusCode int
	Code       int
	Subcode    int
}

func NewExternalAPIError(failure ExternalAPIFailure) *goerrors.Error {
	message := strings.TrimSpace(failure.Message)
	if message == "" {
		message = fmt.Sprintf("provider request failed with status %d", failure.StatusCode)
	}
	metadata := map[string]any{
		"operation":   failure.Operation,
		"status_code": failure.StatusCode,
	}
	if failure.Code != 0 {
		metadata["provider_code"] = failure.Code
	}
	if failure.Subcode != 0 {
		metadata["provider_subcode"] = failure.Subcode
	}
	if failure.Type != "" {
		metadata["provider_type"] = failure.Type
	}

	category := goerrors.CategoryExternal
	textCode := ErrorExternalAPI
	switch {
	case isGraphRateLimitCode(failure.Code), failure.StatusCode == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
		textCode = ErrorRateLimited
	case failure.Code == graphCodeInvalidToken, failure.StatusCode == http.StatusUnauthorized:
		textCode = ErrorTokenInvalid
	}
	return goerrors.New(message, category).
		WithCode(http.StatusBadGateway).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

func NewNotFoundError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorNotFound)
}

func NewCredentialsMissingError(tenantID string) *goerrors.Error {
	return goerrors.New("no active credentials configured for tenant", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorCredentialsMissing).
		WithMetadata(map[string]any{"tenant_id": tenantID})
}

func NewAccountNotConnectedError(tenantID string) *goerrors.Error {
	return goerrors.New("no external account connected for tenant", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(ErrorAccountNotConnected).
		WithMetadata(map[string]any{"tenant_id": tenantID})
}

func NewRateLimitedError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(ErrorRateLimited)
}

func NewConflictError(message string) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryConflict).
		WithCode(http.StatusConflict).
		WithTextCode(ErrorConflict)
}

func NewInternalError(err error, message string) *goerrors.Error {
	if err == nil {
		err = errors.New(message)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(ErrorInternal)
}

const graphCodeInvalidToken = 190

func isGraphRateLimitCode(code int) bool {
	switch code {
	case 4, 17, 32, 613:
		return true
	}
	return code >= 80001 && code <= 80014
}

func textCodeOf(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return strings.TrimSpace(richErr.TextCode)
	}
	return ""
}

func categoryOf(err error) goerrors.Category {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category
	}
	return ""
}

func IsConfigurationError(err error) bool { return textCodeOf(err) == ErrorConfiguration }

func IsValidationError(err error) bool {
	if textCodeOf(err) == ErrorValidation {
		return true
	}
	return categoryOf(err) == goerrors.CategoryValidation
}

func IsDecryptionError(err error) bool { return textCodeOf(err) == ErrorDecryption }

func IsStateError(err error) bool { return textCodeOf(err) == ErrorOAuthStateInvalid }

func IsExternalAPIError(err error) bool {
	switch textCodeOf(err) {
	case ErrorExternalAPI, ErrorTokenInvalid:
		return true
	}
	return categoryOf(err) == goerrors.CategoryExternal
}

func IsTokenInvalid(err error) bool { return textCodeOf(err) == ErrorTokenInvalid }

func IsNotFound(err error) bool {
	switch textCodeOf(err) {
	case ErrorNotFound, ErrorCredentialsMissing, ErrorAccountNotConnected:
		return true
	}
	if errors.Is(err, ErrRecordNotFound) {
		return true
	}
	return categoryOf(err) == goerrors.CategoryNotFound
}

func IsRateLimited(err error) bool {
	return textCodeOf(err) == ErrorRateLimited || categoryOf(err) == goerrors.CategoryRateLimit
}

// ClassifyFailure tells callers whether to ask for setup, ask the tenant to
// reconnect, retry later, or fix their input.
func ClassifyFailure(err error) FailureClass {
	switch {
	case err == nil:
		return ""
	case IsConfigurationError(err), IsDecryptionError(err), textCodeOf(err) == ErrorCredentialsMissing:
		return FailureNotConfigured
	case IsStateError(err), IsTokenInvalid(err), textCodeOf(err) == ErrorAccountNotConnected:
		return FailureNeedsReconnect
	case IsRateLimited(err), IsExternalAPIError(err):
		return FailureTransient
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTransient
	case IsValidationError(err):
		return FailureInvalidInput
	case IsNotFound(err):
		return FailureInvalidInput
	default:
		return FailureInternal
	}
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrRecordNotFound):
		return NewNotFoundError(err.Error())
	case errors.Is(err, ErrAccountVersionConflict), errors.Is(err, ErrContentOwnership), errors.Is(err, ErrLockHeld):
		return NewConflictError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return goerrors.Wrap(err, goerrors.CategoryExternal, "provider request timed out").
			WithCode(http.StatusGatewayTimeout).
			WithTextCode(ErrorExternalAPI)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorValidation
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorOAuthStateInvalid
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorExternalAPI
	default:
		return ErrorInternal
	}
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError converts any error into the service envelope.
func MapError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}
